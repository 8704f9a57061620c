// Package runtime wires storage, config and the event store into a
// single-node instance.
//
// All store work goes through Read and Mutate, which run closures one at a
// time on a dedicated executor goroutine. The executor installs the
// anonymization salt before serving its first request. A heartbeat on the
// runtime clock advances legacy migration and drains deferred events.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	defer rt.Close()
//	_ = rt.Mutate(ctx, func(s *eventstore.Store) error {
//		_, err := s.Push(ctx, evs)
//		return err
//	})
package runtime
