package grpcserver

import (
	"context"
	"net"

	"github.com/rzbill/evstore/internal/runtime"
	eventsvc "github.com/rzbill/evstore/internal/services/events"
	"github.com/rzbill/evstore/pkg/id"
	logpkg "github.com/rzbill/evstore/pkg/log"
	"google.golang.org/grpc"
)

// Server owns the gRPC server instance and runtime.
type Server struct {
	rt   *runtime.Runtime
	svc  *eventsvc.Service
	grpc *grpc.Server
	lis  net.Listener
}

// New constructs a gRPC server and registers EventsService.
func New(rt *runtime.Runtime, logger logpkg.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	logger = logger.With(logpkg.Component("grpc"))
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(observe(logger, rt.Metrics(), id.NewGenerator()))}, opts...)
	s := &Server{rt: rt, svc: eventsvc.New(rt, logger), grpc: grpc.NewServer(opts...)}
	RegisterEventsServer(s.grpc, &eventsSvc{svc: s.svc})
	return s
}

// Serve accepts connections on l until it is closed or Close is called.
func (s *Server) Serve(l net.Listener) error {
	s.lis = l
	return s.grpc.Serve(l)
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(l) }()
	select {
	case <-ctx.Done():
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
