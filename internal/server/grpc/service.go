package grpcserver

import (
	"context"

	eventsvc "github.com/rzbill/evstore/internal/services/events"
	"github.com/rzbill/evstore/pkg/events"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "evstore.v1.EventsService"

// CallerHeader carries the caller principal in request metadata.
const CallerHeader = "x-caller"

// Full method names.
const (
	MethodPushEvents   = "/" + ServiceName + "/PushEvents"
	MethodEvents       = "/" + ServiceName + "/Events"
	MethodAllowlists   = "/" + ServiceName + "/Allowlists"
	MethodRemoveEvents = "/" + ServiceName + "/RemoveEvents"
	MethodHealth       = "/" + ServiceName + "/Health"
)

// EventsServer is the server API for EventsService.
type EventsServer interface {
	PushEvents(context.Context, *events.PushEventsArgs) (*events.PushEventsResponse, error)
	Events(context.Context, *events.EventsArgs) (*events.EventsResponse, error)
	Allowlists(context.Context, *events.AllowlistsArgs) (*events.Allowlists, error)
	RemoveEvents(context.Context, *events.RemoveEventsArgs) (*events.RemoveEventsResponse, error)
	Health(context.Context, *events.HealthArgs) (*events.HealthResponse, error)
}

// RegisterEventsServer registers srv on s.
func RegisterEventsServer(s grpc.ServiceRegistrar, srv EventsServer) {
	s.RegisterService(&eventsServiceDesc, srv)
}

var eventsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EventsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("PushEvents", EventsServer.PushEvents),
		unary("Events", EventsServer.Events),
		unary("Allowlists", EventsServer.Allowlists),
		unary("RemoveEvents", EventsServer.RemoveEvents),
		unary("Health", EventsServer.Health),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "evstore/v1/events",
}

func unary[Req, Resp any](name string, call func(EventsServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(EventsServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(EventsServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// callerFrom returns the first x-caller metadata value, or "".
func callerFrom(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(CallerHeader); len(v) > 0 {
		return v[0]
	}
	return ""
}

type eventsSvc struct {
	svc *eventsvc.Service
}

func (s *eventsSvc) PushEvents(ctx context.Context, req *events.PushEventsArgs) (*events.PushEventsResponse, error) {
	resp, err := s.svc.PushEvents(ctx, callerFrom(ctx), *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return &resp, nil
}

func (s *eventsSvc) Events(ctx context.Context, req *events.EventsArgs) (*events.EventsResponse, error) {
	resp, err := s.svc.Events(ctx, callerFrom(ctx), *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return &resp, nil
}

func (s *eventsSvc) Allowlists(ctx context.Context, _ *events.AllowlistsArgs) (*events.Allowlists, error) {
	lists := s.svc.Allowlists(ctx)
	return &lists, nil
}

func (s *eventsSvc) RemoveEvents(ctx context.Context, req *events.RemoveEventsArgs) (*events.RemoveEventsResponse, error) {
	resp, err := s.svc.RemoveEvents(ctx, callerFrom(ctx), *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return &resp, nil
}

func (s *eventsSvc) Health(ctx context.Context, _ *events.HealthArgs) (*events.HealthResponse, error) {
	if err := s.svc.Health(ctx); err != nil {
		return &events.HealthResponse{Status: "not_serving"}, nil
	}
	return &events.HealthResponse{Status: "ok"}, nil
}
