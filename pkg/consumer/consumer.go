// Package consumer polls an evstore instance for new events in index order.
package consumer

import (
	"context"
	"sync"

	"github.com/rzbill/evstore/pkg/events"
)

// DefaultBatchSize is the read window requested per NextBatch.
const DefaultBatchSize = 1000

// Reader serves range reads.
type Reader interface {
	Events(ctx context.Context, args events.EventsArgs) (events.EventsResponse, error)
}

type Options struct {
	BatchSize uint64
	// WaitMs makes NextBatch long-poll for up to this long when nothing new
	// is stored.
	WaitMs int64
}

// Consumer tracks the highest index it has returned. It is safe for
// concurrent use, but concurrent NextBatch calls may return the same events.
type Consumer struct {
	r    Reader
	opts Options

	mu     sync.Mutex
	synced *uint64
}

func New(r Reader, opts Options) *Consumer {
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Consumer{r: r, opts: opts}
}

// NextBatch reads the events after the synced index, or from index 0 when
// nothing has been synced, and advances the synced index to the last one
// returned. Indices the server has already removed are skipped.
func (c *Consumer) NextBatch(ctx context.Context) ([]events.IndexedEvent, error) {
	c.mu.Lock()
	var start uint64
	if c.synced != nil {
		start = *c.synced + 1
	}
	c.mu.Unlock()

	resp, err := c.r.Events(ctx, events.EventsArgs{
		Start:  start,
		Length: c.opts.BatchSize,
		WaitMs: c.opts.WaitMs,
	})
	if err != nil {
		return nil, err
	}
	if n := len(resp.Events); n > 0 {
		last := resp.Events[n-1].Index
		c.mu.Lock()
		if c.synced == nil || last > *c.synced {
			c.synced = &last
		}
		c.mu.Unlock()
	}
	return resp.Events, nil
}

// SetSyncedUpTo moves the synced index, for example to resume from a
// checkpoint.
func (c *Consumer) SetSyncedUpTo(index uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.synced = &index
}

// SyncedUpTo returns the synced index and whether one is set.
func (c *Consumer) SyncedUpTo() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.synced == nil {
		return 0, false
	}
	return *c.synced, true
}
