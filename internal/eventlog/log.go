package eventlog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
)

// ErrCorruptMeta is returned by OpenLog when the meta key cannot be decoded.
var ErrCorruptMeta = errors.New("eventlog: corrupt stream metadata")

// Record is a single appendable entry.
type Record struct {
	Header  []byte
	Payload []byte
}

// Log is an append-only, gapless sequence of records in one stream. Indices
// start at 0 and are never reused, including after head trims.
type Log struct {
	db     *pebblestore.DB
	stream string

	mu       sync.Mutex
	next     uint64
	earliest uint64
	notifyCh chan struct{}
	trimHook TrimHook
}

// OpenLog loads stream metadata (if any) and returns the Log.
func OpenLog(db *pebblestore.DB, stream string) (*Log, error) {
	l := &Log{db: db, stream: stream, notifyCh: make(chan struct{}), trimHook: noopTrimHook{}}
	meta, err := db.Get(KeyLogMeta(stream))
	switch {
	case err == nil:
		if len(meta) < 16 {
			return nil, fmt.Errorf("%w: stream %q", ErrCorruptMeta, stream)
		}
		l.next = binary.BigEndian.Uint64(meta[:8])
		l.earliest = binary.BigEndian.Uint64(meta[8:16])
	case pebblestore.IsNotFound(err):
	default:
		return nil, err
	}
	return l, nil
}

// Stream returns the stream name.
func (l *Log) Stream() string { return l.stream }

// SetTrimHook installs a hook invoked after each committed trim batch.
func (l *Log) SetTrimHook(h TrimHook) {
	if h == nil {
		h = noopTrimHook{}
	}
	l.trimHook = h
}

func encodeMeta(next, earliest uint64) []byte {
	var meta [16]byte
	binary.BigEndian.PutUint64(meta[:8], next)
	binary.BigEndian.PutUint64(meta[8:], earliest)
	return meta[:]
}

// Stage writes rec into b at the next index and returns that index. The
// in-memory state is unchanged until Applied is called after b commits, so a
// failed commit leaves the log untouched. Stage may be called repeatedly on
// one batch; indices continue from the previous staged record.
func (l *Log) Stage(b *pebble.Batch, staged int, rec Record) (uint64, error) {
	l.mu.Lock()
	index := l.next + uint64(staged)
	earliest := l.earliest
	l.mu.Unlock()
	if err := b.Set(KeyLogEntry(l.stream, index), EncodeRecord(rec.Header, rec.Payload), nil); err != nil {
		return 0, err
	}
	if err := b.Set(KeyLogMeta(l.stream), encodeMeta(index+1, earliest), nil); err != nil {
		return 0, err
	}
	return index, nil
}

// Applied publishes records staged up to and including index and wakes waiters.
func (l *Log) Applied(index uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index+1 <= l.next {
		return
	}
	l.next = index + 1
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
}

// Append appends recs as one atomic batch and returns their indices.
func (l *Log) Append(ctx context.Context, recs []Record) ([]uint64, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	b := l.db.NewBatch()
	defer b.Close()

	indices := make([]uint64, len(recs))
	for i, r := range recs {
		idx, err := l.Stage(b, i, r)
		if err != nil {
			return nil, err
		}
		indices[i] = idx
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	l.Applied(indices[len(indices)-1])
	return indices, nil
}

// Stats describes the stored range. Earliest and Latest are nil when empty.
type Stats struct {
	Earliest *uint64
	Latest   *uint64
	// Next is the index the next append receives.
	Next uint64
}

// Stats returns the stored range from memory.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Stats{Next: l.next}
	if l.next > 0 {
		latest := l.next - 1
		s.Latest = &latest
	}
	if l.earliest < l.next {
		earliest := l.earliest
		s.Earliest = &earliest
	}
	return s
}

// Next returns the index the next append receives.
func (l *Log) Next() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next
}

// Len returns the number of records currently stored.
func (l *Log) Len() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next - l.earliest
}

// ErrNotEmpty is returned by StartAt once the log has received appends.
var ErrNotEmpty = errors.New("eventlog: log is not empty")

// StartAt positions an empty log so its first append receives index. It is
// a no-op when the log already starts there.
func (l *Log) StartAt(ctx context.Context, index uint64) error {
	b := l.db.NewBatch()
	defer b.Close()
	if err := l.StageStartAt(b, index); err != nil {
		return err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return err
	}
	l.StartedAt(index)
	return nil
}

// StageStartAt writes the meta key positioning an empty log at index into b.
// Call StartedAt once b commits.
func (l *Log) StageStartAt(b *pebble.Batch, index uint64) error {
	l.mu.Lock()
	next, earliest := l.next, l.earliest
	l.mu.Unlock()
	if next == index && earliest == index {
		return nil
	}
	if next != 0 || earliest != 0 {
		return fmt.Errorf("%w: stream %q next=%d", ErrNotEmpty, l.stream, next)
	}
	return b.Set(KeyLogMeta(l.stream), encodeMeta(index, index), nil)
}

// StartedAt applies a committed StageStartAt.
func (l *Log) StartedAt(index uint64) {
	l.mu.Lock()
	l.next, l.earliest = index, index
	l.mu.Unlock()
}
