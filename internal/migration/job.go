package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/rzbill/evstore/internal/eventlog"
	"github.com/rzbill/evstore/internal/metrics"
	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
	"github.com/rzbill/evstore/pkg/events"
	logpkg "github.com/rzbill/evstore/pkg/log"
)

// DefaultBatchSize is the number of events copied per tick.
const DefaultBatchSize = 1000

const (
	cursorName  = "migrated"
	retiredName = "retired"
)

// ErrCursorMismatch means the target's next index disagrees with the
// migration cursor; copying would break index continuity.
var ErrCursorMismatch = errors.New("migration: target index does not match cursor")

// Target receives migrated events.
type Target interface {
	// NextIndex is the index the target's next event receives.
	NextIndex() uint64
	// StartAt positions an empty target at index.
	StartAt(ctx context.Context, index uint64) error
	// StageMigrated writes ev into b as the n-th event of the batch.
	StageMigrated(b *pebble.Batch, n int, ev *events.IndexedEvent) error
	// CommitMigrated publishes staged events after b commits.
	CommitMigrated(last uint64)
	// RollbackMigrated discards staged events after a failed commit.
	RollbackMigrated()
	// RetireLegacy is called once the legacy stream is fully copied.
	RetireLegacy()
}

// Options tunes a Job.
type Options struct {
	BatchSize int
	Logger    logpkg.Logger
	Metrics   *metrics.Metrics
}

// Job is not safe for concurrent use; the runtime calls Tick from its
// executor.
type Job struct {
	db        *pebblestore.DB
	legacy    *eventlog.Log
	target    Target
	batchSize int
	logger    logpkg.Logger
	metrics   *metrics.Metrics

	cursor  uint64
	retired bool
}

// Retired reports whether legacy has been fully migrated.
func Retired(legacy *eventlog.Log) bool {
	v, ok := legacy.GetCursor(retiredName)
	return ok && v == 1
}

// New loads the persisted cursor of legacy.
func New(db *pebblestore.DB, legacy *eventlog.Log, target Target, opts Options) *Job {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	j := &Job{
		db:        db,
		legacy:    legacy,
		target:    target,
		batchSize: opts.BatchSize,
		logger:    opts.Logger.With(logpkg.Component("migration")),
		metrics:   opts.Metrics,
		retired:   Retired(legacy),
	}
	j.cursor, _ = legacy.GetCursor(cursorName)
	return j
}

// Cursor returns the next legacy index to copy.
func (j *Job) Cursor() uint64 { return j.cursor }

// Done reports whether the legacy stream is retired.
func (j *Job) Done() bool { return j.retired }

// Tick copies up to BatchSize events. done is true once the legacy stream
// is retired.
func (j *Job) Tick(ctx context.Context) (migrated int, done bool, err error) {
	if j.retired {
		return 0, true, nil
	}
	st := j.legacy.Stats()
	earliest := st.Next
	if st.Earliest != nil {
		earliest = *st.Earliest
	}
	if j.cursor < earliest {
		if j.target.NextIndex() != j.cursor {
			return 0, false, fmt.Errorf("%w: cursor=%d target=%d", ErrCursorMismatch, j.cursor, j.target.NextIndex())
		}
		if err := j.target.StartAt(ctx, earliest); err != nil {
			return 0, false, err
		}
		if err := j.legacy.CommitCursor(cursorName, earliest); err != nil {
			return 0, false, err
		}
		j.logger.Info("legacy head was trimmed; skipping ahead", logpkg.Uint64("from", j.cursor), logpkg.Uint64("to", earliest))
		j.cursor = earliest
	}
	if j.target.NextIndex() != j.cursor {
		return 0, false, fmt.Errorf("%w: cursor=%d target=%d", ErrCursorMismatch, j.cursor, j.target.NextIndex())
	}

	items := j.legacy.Get(j.cursor, uint64(j.batchSize))
	b := j.db.NewBatch()
	defer b.Close()
	for i, it := range items {
		if it.Index != j.cursor+uint64(i) {
			j.target.RollbackMigrated()
			return 0, false, fmt.Errorf("migration: legacy gap at %d", j.cursor+uint64(i))
		}
		ev := DecodeLegacy(it)
		if err := j.target.StageMigrated(b, i, &ev); err != nil {
			j.target.RollbackMigrated()
			return 0, false, err
		}
	}
	next := j.cursor + uint64(len(items))
	caughtUp := next >= st.Next
	if err := j.legacy.StageCursor(b, cursorName, next); err != nil {
		j.target.RollbackMigrated()
		return 0, false, err
	}
	if caughtUp {
		if err := j.legacy.StageCursor(b, retiredName, 1); err != nil {
			j.target.RollbackMigrated()
			return 0, false, err
		}
	}
	if err := j.db.CommitBatch(ctx, b); err != nil {
		j.target.RollbackMigrated()
		return 0, false, err
	}
	if len(items) > 0 {
		j.target.CommitMigrated(next - 1)
	}
	j.cursor = next
	j.metrics.AddMigrated(len(items))
	if caughtUp {
		j.retired = true
		j.target.RetireLegacy()
		j.logger.Info("legacy stream retired", logpkg.Uint64("events", next))
	} else if len(items) > 0 {
		j.logger.Debug("migrated legacy events", logpkg.Int("count", len(items)), logpkg.Uint64("cursor", next))
	}
	return len(items), j.retired, nil
}
