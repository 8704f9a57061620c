package grpcserver

import (
	"context"

	"github.com/rzbill/evstore/pkg/events"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Client is a typed EventsService client. Every call carries the caller
// principal in the x-caller header.
type Client struct {
	cc     grpc.ClientConnInterface
	caller string
}

// NewClient wraps cc. An empty caller sends no x-caller header.
func NewClient(cc grpc.ClientConnInterface, caller string) *Client {
	return &Client{cc: cc, caller: caller}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	if c.caller != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, CallerHeader, c.caller)
	}
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *Client) PushEvents(ctx context.Context, in *events.PushEventsArgs, opts ...grpc.CallOption) (*events.PushEventsResponse, error) {
	out := new(events.PushEventsResponse)
	if err := c.invoke(ctx, MethodPushEvents, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Events(ctx context.Context, in *events.EventsArgs, opts ...grpc.CallOption) (*events.EventsResponse, error) {
	out := new(events.EventsResponse)
	if err := c.invoke(ctx, MethodEvents, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Allowlists(ctx context.Context, opts ...grpc.CallOption) (*events.Allowlists, error) {
	out := new(events.Allowlists)
	if err := c.invoke(ctx, MethodAllowlists, &events.AllowlistsArgs{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RemoveEvents(ctx context.Context, in *events.RemoveEventsArgs, opts ...grpc.CallOption) (*events.RemoveEventsResponse, error) {
	out := new(events.RemoveEventsResponse)
	if err := c.invoke(ctx, MethodRemoveEvents, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Health(ctx context.Context, opts ...grpc.CallOption) (*events.HealthResponse, error) {
	out := new(events.HealthResponse)
	if err := c.invoke(ctx, MethodHealth, &events.HealthArgs{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
