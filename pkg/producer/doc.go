// Package producer batches events on the client side and pushes them to an
// evstore instance.
//
// Push assigns each event a random idempotency token and buffers it. A
// batch is sent when MaxBatchSize events are waiting or FlushDelay after
// the first buffered event, whichever comes first. Only one batch is in
// flight at a time. A batch that fails with a retryable error goes back to
// the front of the buffer and is retried after RetryDelay. The server drops
// duplicates by token, so a retry of a batch that was in fact stored is
// harmless. A permanent failure, such as the caller missing from the push
// allow-list, drops the batch.
//
//	p := producer.New(transport, producer.Options{FlushDelay: time.Minute})
//	defer p.Close()
//	p.Push(events.Event{Name: "signup", Timestamp: uint64(time.Now().UnixMilli())})
package producer
