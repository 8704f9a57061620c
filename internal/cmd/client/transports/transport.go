// Package transports provides pluggable transport implementations for the CLI.
package transports

import (
	"context"

	"github.com/rzbill/evstore/pkg/consumer"
	"github.com/rzbill/evstore/pkg/events"
	"github.com/rzbill/evstore/pkg/producer"
)

// EventsTransport abstracts the transport used by the CLI.
type EventsTransport interface {
	PushEvents(ctx context.Context, batch []events.IdempotentEvent) error
	Events(ctx context.Context, args events.EventsArgs) (events.EventsResponse, error)
	RemoveEvents(ctx context.Context, upToInclusive uint64) (removed uint64, err error)
	Allowlists(ctx context.Context) (events.Allowlists, error)
}

var (
	_ EventsTransport    = (*GrpcTransport)(nil)
	_ producer.Transport = (*GrpcTransport)(nil)
	_ consumer.Reader    = (*GrpcTransport)(nil)
)
