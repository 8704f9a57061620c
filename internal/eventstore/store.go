package eventstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/rzbill/evstore/internal/aggregation"
	"github.com/rzbill/evstore/internal/anonymize"
	"github.com/rzbill/evstore/internal/dedup"
	"github.com/rzbill/evstore/internal/eventlog"
	"github.com/rzbill/evstore/internal/interner"
	"github.com/rzbill/evstore/internal/metrics"
	"github.com/rzbill/evstore/internal/migration"
	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
	logpkg "github.com/rzbill/evstore/pkg/log"
)

// Stream names.
const (
	LegacyStream   = "v1"
	CurrentStream  = "v2"
	DeferredStream = "deferred"
)

const drainCursor = "drain"

// ErrMigrationInProgress is returned by Remove while the legacy stream is
// still being migrated.
var ErrMigrationInProgress = errors.New("eventstore: legacy migration in progress")

// Options configures a Store.
type Options struct {
	// GranularityMs buckets timestamps down to a multiple of itself. Zero
	// keeps timestamps as pushed.
	GranularityMs uint64
	DedupWindow   time.Duration
	// HourlyCap overrides the number of hourly aggregation buckets kept.
	HourlyCap int
	Clock     quartz.Clock
	Metrics   *metrics.Metrics
	Logger    logpkg.Logger
}

// Store is the state of one instance.
type Store struct {
	db            *pebblestore.DB
	granularityMs uint64
	clock         quartz.Clock
	metrics       *metrics.Metrics
	logger        logpkg.Logger

	legacy   *eventlog.Log
	current  *eventlog.Log
	deferred *eventlog.Log
	interner *interner.Interner
	dedup    *dedup.Window
	salt     *anonymize.SaltProvider
	agg      *aggregation.Index

	legacyRetired atomic.Bool
	// retired is closed once the legacy stream is retired.
	retired    chan struct{}
	retireOnce sync.Once
	drained    uint64
}

// Open loads every component from db.
func Open(ctx context.Context, db *pebblestore.DB, opts Options) (*Store, error) {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	s := &Store{
		db:            db,
		granularityMs: opts.GranularityMs,
		clock:         opts.Clock,
		metrics:       opts.Metrics,
		logger:        opts.Logger.With(logpkg.Component("eventstore")),
	}
	var err error
	if s.legacy, err = eventlog.OpenLog(db, LegacyStream); err != nil {
		return nil, err
	}
	if s.current, err = eventlog.OpenLog(db, CurrentStream); err != nil {
		return nil, err
	}
	s.current.SetTrimHook(opts.Metrics)
	if s.deferred, err = eventlog.OpenLog(db, DeferredStream); err != nil {
		return nil, err
	}
	if s.interner, err = interner.Open(db); err != nil {
		return nil, err
	}
	if s.dedup, err = dedup.Open(ctx, db, opts.DedupWindow, s.nowMs()); err != nil {
		return nil, err
	}
	if s.salt, err = anonymize.OpenSaltProvider(db); err != nil {
		return nil, err
	}
	if s.agg, err = aggregation.Open(db, aggregation.Options{HourlyCap: opts.HourlyCap, Logger: opts.Logger}); err != nil {
		return nil, err
	}
	s.retired = make(chan struct{})
	if migration.Retired(s.legacy) {
		s.markRetired()
	}
	if v, ok := s.deferred.GetCursor(drainCursor); ok {
		s.drained = v
	} else if st := s.deferred.Stats(); st.Earliest != nil {
		s.drained = *st.Earliest
	}
	s.refreshGauges()
	s.logger.Info("event store opened",
		logpkg.Uint64("next_index", s.active().Next()),
		logpkg.Bool("legacy_retired", s.legacyRetired.Load()),
		logpkg.Uint64("deferred_pending", s.DeferredPending()),
		logpkg.Int("interned", s.interner.Len()))
	return s, nil
}

func (s *Store) nowMs() uint64 {
	return uint64(s.clock.Now().UnixMilli())
}

// active is the stream live events go to and reads come from.
func (s *Store) active() *eventlog.Log {
	if s.legacyRetired.Load() {
		return s.current
	}
	return s.legacy
}

// Legacy returns the legacy stream for the migration job.
func (s *Store) Legacy() *eventlog.Log { return s.legacy }

// DB returns the underlying database.
func (s *Store) DB() *pebblestore.DB { return s.db }

// LegacyRetired reports whether the legacy stream has been fully migrated.
func (s *Store) LegacyRetired() bool { return s.legacyRetired.Load() }

func (s *Store) markRetired() {
	s.retireOnce.Do(func() {
		s.legacyRetired.Store(true)
		close(s.retired)
	})
}

// SaltReady reports whether anonymization can run.
func (s *Store) SaltReady() bool { return s.salt.Ready() }

// DeferredPending returns the number of events waiting for the salt.
func (s *Store) DeferredPending() uint64 {
	next := s.deferred.Next()
	if next <= s.drained {
		return 0
	}
	return next - s.drained
}

// Aggregates returns one page of per-user counts for day.
func (s *Store) Aggregates(g aggregation.Grouping, day aggregation.Day, page int) aggregation.Page {
	return s.agg.Query(g, day, page)
}

func (s *Store) refreshGauges() {
	if st := s.active().Stats(); st.Latest != nil {
		s.metrics.SetLatestIndex(*st.Latest)
	}
	s.metrics.SetInternEntries(s.interner.Len())
	s.metrics.SetDedupEntries(s.dedup.Len())
	s.metrics.SetHourlyBuckets(s.agg.HourlyBuckets())
	s.metrics.SetDeferredPending(s.DeferredPending())
}
