package eventlog

import (
	"context"
)

// TrimHook observes committed head trims.
type TrimHook interface {
	EmitTrimRange(stream string, minIndex, maxIndex uint64)
}

type noopTrimHook struct{}

func (noopTrimHook) EmitTrimRange(string, uint64, uint64) {}

// TrimThrough deletes every stored entry with index <= upToInclusive,
// committing at most batchLimit deletions per batch. The meta key records the
// new earliest index in the same batch as each deletion range. Trims are
// irreversible and never change the index of surviving entries.
func (l *Log) TrimThrough(ctx context.Context, upToInclusive uint64, batchLimit int) (int, error) {
	if batchLimit <= 0 {
		batchLimit = 1024
	}
	removed := 0
	for {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		l.mu.Lock()
		earliest, next := l.earliest, l.next
		l.mu.Unlock()
		if earliest >= next || earliest > upToInclusive {
			return removed, nil
		}
		last := upToInclusive
		if last >= next {
			last = next - 1
		}
		if last-earliest+1 > uint64(batchLimit) {
			last = earliest + uint64(batchLimit) - 1
		}

		b := l.db.NewBatch()
		if err := b.DeleteRange(KeyLogEntry(l.stream, earliest), KeyLogEntry(l.stream, last+1), nil); err != nil {
			b.Close()
			return removed, err
		}
		if err := b.Set(KeyLogMeta(l.stream), encodeMeta(next, last+1), nil); err != nil {
			b.Close()
			return removed, err
		}
		if err := l.db.CommitBatch(ctx, b); err != nil {
			b.Close()
			return removed, err
		}
		b.Close()

		l.mu.Lock()
		l.earliest = last + 1
		l.mu.Unlock()
		removed += int(last - earliest + 1)
		l.trimHook.EmitTrimRange(l.stream, earliest, last)
	}
}

// CompactTrimmed asks Pebble to reclaim space below the earliest index.
func (l *Log) CompactTrimmed() error {
	l.mu.Lock()
	earliest := l.earliest
	l.mu.Unlock()
	if earliest == 0 {
		return nil
	}
	return l.db.CompactRange(KeyLogEntry(l.stream, 0), KeyLogEntry(l.stream, earliest))
}
