package transports

import (
	"context"

	grpcserver "github.com/rzbill/evstore/internal/server/grpc"
	"github.com/rzbill/evstore/pkg/events"
	"google.golang.org/grpc"
)

// GrpcTransport implements EventsTransport over gRPC. Each call dials,
// so a GrpcTransport is cheap to keep around between commands.
type GrpcTransport struct {
	dial   func(ctx context.Context) (*grpc.ClientConn, error)
	caller string
}

// NewGrpcTransport constructs a GrpcTransport that identifies as caller.
func NewGrpcTransport(dial func(ctx context.Context) (*grpc.ClientConn, error), caller string) *GrpcTransport {
	return &GrpcTransport{dial: dial, caller: caller}
}

func (t *GrpcTransport) withClient(ctx context.Context, fn func(cli *grpcserver.Client) error) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	return fn(grpcserver.NewClient(conn, t.caller))
}

// PushEvents sends one batch.
func (t *GrpcTransport) PushEvents(ctx context.Context, batch []events.IdempotentEvent) error {
	return t.withClient(ctx, func(cli *grpcserver.Client) error {
		_, err := cli.PushEvents(ctx, &events.PushEventsArgs{Events: batch})
		return err
	})
}

// Events reads a window of stored events.
func (t *GrpcTransport) Events(ctx context.Context, args events.EventsArgs) (events.EventsResponse, error) {
	var out events.EventsResponse
	err := t.withClient(ctx, func(cli *grpcserver.Client) error {
		resp, err := cli.Events(ctx, &args)
		if err != nil {
			return err
		}
		out = *resp
		return nil
	})
	return out, err
}

// RemoveEvents deletes stored events up to and including upToInclusive.
func (t *GrpcTransport) RemoveEvents(ctx context.Context, upToInclusive uint64) (uint64, error) {
	var removed uint64
	err := t.withClient(ctx, func(cli *grpcserver.Client) error {
		resp, err := cli.RemoveEvents(ctx, &events.RemoveEventsArgs{UpToInclusive: upToInclusive})
		if err != nil {
			return err
		}
		removed = resp.Removed
		return nil
	})
	return removed, err
}

// Allowlists returns the server's allow-lists.
func (t *GrpcTransport) Allowlists(ctx context.Context) (events.Allowlists, error) {
	var out events.Allowlists
	err := t.withClient(ctx, func(cli *grpcserver.Client) error {
		resp, err := cli.Allowlists(ctx)
		if err != nil {
			return err
		}
		out = *resp
		return nil
	})
	return out, err
}
