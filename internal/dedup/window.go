// Package dedup keeps a bounded, time-windowed record of accepted
// idempotency tokens.
//
// A token seen inside the window is rejected. Entries older than the window
// are pruned at most once per half-window, so memory stays near one window of
// traffic; a token reused after its entry was pruned is accepted again.
package dedup

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/cockroachdb/pebble"
	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
	"github.com/rzbill/evstore/pkg/id"
)

// DefaultWindow is the retention used when none is configured.
const DefaultWindow = time.Hour

var tokenPrefix = []byte("dedup/")

func tokenKey(tok id.Token) []byte {
	return append(append(make([]byte, 0, len(tokenPrefix)+16), tokenPrefix...), tok[:]...)
}

// Window is not safe for concurrent use.
type Window struct {
	db         *pebblestore.DB
	windowMs   uint64
	seen       map[id.Token]uint64
	lastPruned uint64
}

// Open loads persisted entries still inside the window at nowMs and deletes
// the rest.
func Open(ctx context.Context, db *pebblestore.DB, window time.Duration, nowMs uint64) (*Window, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	w := &Window{db: db, windowMs: uint64(window.Milliseconds()), seen: map[id.Token]uint64{}}
	cutoff := sub(nowMs, w.windowMs)

	b := db.NewBatch()
	defer b.Close()
	err := db.ScanPrefix(tokenPrefix, func(k, v []byte) error {
		if len(k) != len(tokenPrefix)+16 || len(v) < 8 {
			return b.Delete(k, nil)
		}
		ts := binary.BigEndian.Uint64(v)
		if ts <= cutoff {
			return b.Delete(k, nil)
		}
		var tok id.Token
		copy(tok[:], k[len(tokenPrefix):])
		w.seen[tok] = ts
		return nil
	})
	if err != nil {
		return nil, err
	}
	if b.Count() > 0 {
		if err := db.CommitBatch(ctx, b); err != nil {
			return nil, err
		}
	}
	w.lastPruned = nowMs
	return w, nil
}

// TryAccept reports whether tok is new inside the window. Accepted tokens are
// recorded in memory immediately and staged into b; if b fails to commit the
// caller must Forget the token. A due prune commits its deletions in a batch
// of its own before tok is checked.
func (w *Window) TryAccept(ctx context.Context, b *pebble.Batch, tok id.Token, nowMs uint64) (bool, error) {
	if err := w.pruneIfDue(ctx, nowMs); err != nil {
		return false, err
	}
	if _, ok := w.seen[tok]; ok {
		return false, nil
	}
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], nowMs)
	if err := b.Set(tokenKey(tok), v[:], nil); err != nil {
		return false, err
	}
	w.seen[tok] = nowMs
	return true, nil
}

// Forget drops tok from memory after a failed commit.
func (w *Window) Forget(tok id.Token) { delete(w.seen, tok) }

// Len returns the number of tokens currently held.
func (w *Window) Len() int { return len(w.seen) }

func (w *Window) pruneIfDue(ctx context.Context, nowMs uint64) error {
	if sub(nowMs, w.lastPruned) <= w.windowMs/2 {
		return nil
	}
	cutoff := sub(nowMs, w.windowMs)
	var expired []id.Token
	for tok, ts := range w.seen {
		if ts <= cutoff {
			expired = append(expired, tok)
		}
	}
	if len(expired) > 0 {
		b := w.db.NewBatch()
		defer b.Close()
		for _, tok := range expired {
			if err := b.Delete(tokenKey(tok), nil); err != nil {
				return err
			}
		}
		if err := w.db.CommitBatch(ctx, b); err != nil {
			return err
		}
		for _, tok := range expired {
			delete(w.seen, tok)
		}
	}
	w.lastPruned = nowMs
	return nil
}

func sub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
