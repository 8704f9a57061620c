package grpcserver

import (
	"context"
	"time"

	"github.com/rzbill/evstore/internal/metrics"
	"github.com/rzbill/evstore/pkg/id"
	logpkg "github.com/rzbill/evstore/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDHeader carries the call's request id in both directions. A
// client-supplied value is kept; otherwise the server assigns one.
const RequestIDHeader = "x-request-id"

func requestID(ctx context.Context, ids *id.Generator) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(RequestIDHeader); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return ids.Next().String()
}

// observe stamps a request id, logs each call and counts it by method and
// status code.
func observe(logger logpkg.Logger, m *metrics.Metrics, ids *id.Generator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		rid := requestID(ctx, ids)
		ctx = logpkg.ContextWithRequestID(ctx, rid)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, rid))
		resp, err := handler(ctx, req)
		code := status.Code(err)
		m.IncRequest(info.FullMethod, code.String())
		fields := []logpkg.Field{
			logpkg.Str(logpkg.RequestIDKey, rid),
			logpkg.Str(logpkg.OperationKey, info.FullMethod),
			logpkg.Str(logpkg.CallerKey, callerFrom(ctx)),
			logpkg.Str("code", code.String()),
			logpkg.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			logger.Warn("rpc failed", append(fields, logpkg.Err(err))...)
		} else {
			logger.Debug("rpc", fields...)
		}
		return resp, err
	}
}
