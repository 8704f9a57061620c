package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the evstore client.
// It registers the events and aggregates command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "evstore",
		Short: "evstore client commands",
	}
	root.AddCommand(NewEventsCommand())
	root.AddCommand(NewAggregatesCommand(baseURL))
	return root
}
