package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"unicode/utf8"

	transports "github.com/rzbill/evstore/internal/cmd/client/transports"
	grpcserver "github.com/rzbill/evstore/internal/server/grpc"
	"github.com/rzbill/evstore/pkg/events"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// grpcAddrFromEnv returns the gRPC server address from EVSTORE_GRPC or a default.
func grpcAddrFromEnv() string {
	if addr := os.Getenv("EVSTORE_GRPC"); addr != "" {
		return addr
	}
	return "127.0.0.1:50051"
}

// dialGRPCContext connects to the evstore gRPC endpoint with insecure
// transport for local/dev and the JSON codec selected for every call.
func dialGRPCContext(_ context.Context) (*grpc.ClientConn, error) {
	return grpc.NewClient(grpcAddrFromEnv(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpcserver.CallOption()))
}

func getTransport(caller string) transports.EventsTransport {
	return transports.NewGrpcTransport(dialGRPCContext, caller)
}

// decodedEvent renders an event with its payload as payload_json,
// payload_text or payload_b64, whichever fits first.
func decodedEvent(ev events.IndexedEvent) map[string]any {
	out := map[string]any{
		"index":     ev.Index,
		"name":      ev.Name,
		"timestamp": ev.Timestamp,
	}
	if ev.User != nil {
		out["user"] = *ev.User
	}
	if ev.Source != nil {
		out["source"] = *ev.Source
	}
	payload := ev.Payload
	if len(payload) == 0 {
		return out
	}
	if payload[0] == '{' || payload[0] == '[' {
		var v any
		if json.Unmarshal(payload, &v) == nil {
			out["payload_json"] = v
			return out
		}
	}
	if utf8.Valid(payload) {
		out["payload_text"] = string(payload)
		return out
	}
	out["payload_b64"] = base64.StdEncoding.EncodeToString(payload)
	return out
}
