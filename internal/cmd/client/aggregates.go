package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

type aggregateRow struct {
	DateTime     *string `json:"dateTime,omitempty"`
	User         string  `json:"user"`
	Transactions uint32  `json:"transactions"`
}

type aggregatePage struct {
	Results   []aggregateRow `json:"results"`
	PageCount uint32         `json:"pageCount"`
}

// NewAggregatesCommand constructs the `aggregates` subcommand. It uses the
// HTTP API since the aggregation query is not exposed over gRPC.
func NewAggregatesCommand(baseURL BaseURLFunc) *cobra.Command {
	aggCmd := &cobra.Command{
		Use:   "aggregates",
		Short: "Show per-user transaction counts for a day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, _ := cmd.Flags().GetString("date")
			grouping, _ := cmd.Flags().GetString("grouping")
			page, _ := cmd.Flags().GetInt("page")

			u := fmt.Sprintf("%s/aggregated-data/%s/%s?page=%s",
				baseURL(), url.PathEscape(date), url.PathEscape(grouping), strconv.Itoa(page))
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, u, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode == http.StatusNotFound {
				_, _ = io.Copy(io.Discard, resp.Body)
				return fmt.Errorf("no aggregation for date %q and grouping %q", date, grouping)
			}
			if resp.StatusCode >= 300 {
				_, _ = io.Copy(io.Discard, resp.Body)
				return fmt.Errorf("http error: %s", resp.Status)
			}
			var data aggregatePage
			if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(data)
		},
	}
	aggCmd.Flags().String("date", "", "Day to query (YYYY-MM-DD)")
	aggCmd.Flags().String("grouping", "daily", "daily|hourly")
	aggCmd.Flags().Int("page", 0, "Page number; 0 returns only the page count")
	_ = aggCmd.MarkFlagRequired("date")
	return aggCmd
}
