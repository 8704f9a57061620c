// Package httpserver provides the HTTP surface of an evstore instance: the
// aggregation query, JSON push/read/remove endpoints, allow-lists, health
// and Prometheus metrics, routed with chi.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
