// Package grpcserver hosts the evstore.v1.EventsService gRPC service and
// its typed client. Messages are the JSON forms of the pkg/events types,
// carried by a codec registered under the "json" content subtype, so no
// generated stubs are involved.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	s := grpcserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":50051")
package grpcserver
