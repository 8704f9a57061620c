// Package pebblestore wraps Pebble with an fsync policy, prefix scans and a
// metrics hook. Every durable structure in evstore (event logs, intern table,
// dedup window, aggregation buckets, deployment args) lives in one DB.
//
//	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(ctx, b)
//	b.Close()
package pebblestore
