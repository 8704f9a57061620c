package eventstore

import (
	"context"
	"time"

	"github.com/rzbill/evstore/internal/migration"
	"github.com/rzbill/evstore/pkg/events"
)

// Stats describes the readable range.
type Stats struct {
	Earliest *uint64
	Latest   *uint64
}

// Get returns up to length events starting at start. A start below the
// earliest stored index reads from the earliest; a start past the end yields
// nothing. Records that cannot be decoded come back named UnknownName so the
// window stays contiguous.
func (s *Store) Get(start, length uint64) []events.IndexedEvent {
	legacy := !s.legacyRetired.Load()
	items := s.active().Get(start, length)
	out := make([]events.IndexedEvent, 0, len(items))
	for _, it := range items {
		if legacy {
			out = append(out, migration.DecodeLegacy(it))
			continue
		}
		out = append(out, s.hydrate(it))
	}
	return out
}

// Stats returns the readable range in O(1).
func (s *Store) Stats() Stats {
	st := s.active().Stats()
	return Stats{Earliest: st.Earliest, Latest: st.Latest}
}

// WaitForAppend blocks until an event with index >= after exists, the
// timeout passes, or ctx ends. It only touches the logs' own locks and may be
// called outside the runtime executor. A wait that starts on the legacy
// stream moves to the current stream when the legacy stream retires.
func (s *Store) WaitForAppend(ctx context.Context, after uint64, timeout time.Duration) bool {
	if s.legacyRetired.Load() {
		return s.current.WaitForAppend(ctx, after, timeout)
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	wctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.retired:
			cancel()
		case <-wctx.Done():
		}
	}()
	ok := s.legacy.WaitForAppend(wctx, after, timeout)
	cancel()
	if ok || ctx.Err() != nil || !s.legacyRetired.Load() {
		return ok
	}
	if timeout > 0 {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return false
		}
	}
	return s.current.WaitForAppend(ctx, after, timeout)
}
