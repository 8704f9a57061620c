package runtime

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/coder/quartz"
	cfgpkg "github.com/rzbill/evstore/internal/config"
	"github.com/rzbill/evstore/internal/deployment"
	"github.com/rzbill/evstore/internal/eventstore"
	"github.com/rzbill/evstore/internal/metrics"
	"github.com/rzbill/evstore/internal/migration"
	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
	logpkg "github.com/rzbill/evstore/pkg/log"
)

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("runtime: closed")

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// Clock drives the heartbeat and event timestamps. Defaults to the real clock.
	Clock   quartz.Clock
	Metrics *metrics.Metrics
	Logger  logpkg.Logger
	// SaltSource feeds salt generation. Defaults to crypto/rand.
	SaltSource io.Reader
}

// Runtime owns the store of a single instance and runs every operation on
// it from one executor goroutine.
type Runtime struct {
	db      *pebblestore.DB
	config  cfgpkg.Config
	init    deployment.InitArgs
	store   *eventstore.Store
	job     *migration.Job
	clock   quartz.Clock
	metrics *metrics.Metrics
	logger  logpkg.Logger
	salt    io.Reader

	ctx       context.Context
	cancel    context.CancelFunc
	reqs      chan func()
	done      chan struct{}
	heartbeat quartz.Waiter
}

// Open initializes storage, loads the store and starts the executor and
// heartbeat.
func Open(opts Options) (*Runtime, error) {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger.With(logpkg.Component("runtime"))

	var hook pebblestore.MetricsHook
	if opts.Metrics != nil {
		hook = opts.Metrics.StorageHook()
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Metrics:       hook,
	})
	if err != nil {
		return nil, err
	}

	cfg := opts.Config
	wanted := deployment.InitArgs{
		PushAllowlist:   cfg.Init.PushAllowlist,
		ReadAllowlist:   cfg.Init.ReadAllowlist,
		RemoveAllowlist: cfg.Init.RemoveAllowlist,
		GranularityMs:   cfg.Init.GranularityMs,
		RemovalEnabled:  cfg.Init.Removal.Enabled,
	}
	initArgs, created, err := deployment.Ensure(db, wanted, opts.Clock.Now().UnixMilli())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if created {
		logger.Info("deployment initialized",
			logpkg.Int("push", len(initArgs.PushAllowlist)),
			logpkg.Int("read", len(initArgs.ReadAllowlist)),
			logpkg.Uint64("granularity_ms", initArgs.GranularityMs),
			logpkg.Bool("removal", initArgs.RemovalEnabled))
	} else if !initArgs.Equal(wanted) {
		logger.Warn("init settings differ from the stored deployment; keeping stored values")
	}

	ctx, cancel := context.WithCancel(context.Background())
	store, err := eventstore.Open(ctx, db, eventstore.Options{
		GranularityMs: initArgs.GranularityMs,
		DedupWindow:   cfg.DedupWindow(),
		Clock:         opts.Clock,
		Metrics:       opts.Metrics,
		Logger:        opts.Logger,
	})
	if err != nil {
		cancel()
		_ = db.Close()
		return nil, err
	}

	r := &Runtime{
		db:      db,
		config:  cfg,
		init:    initArgs,
		store:   store,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		logger:  logger,
		salt:    opts.SaltSource,
		ctx:     ctx,
		cancel:  cancel,
		reqs:    make(chan func()),
		done:    make(chan struct{}),
	}
	r.job = migration.New(db, store.Legacy(), store, migration.Options{
		BatchSize: cfg.MigrationBatchSize,
		Logger:    opts.Logger,
		Metrics:   opts.Metrics,
	})
	go r.loop()
	r.heartbeat = r.clock.TickerFunc(ctx, cfg.HeartbeatInterval(), r.tick, "runtime", "heartbeat")
	return r, nil
}

// loop installs the salt before serving any request, then runs requests
// one at a time until Close.
func (r *Runtime) loop() {
	defer close(r.done)
	if installed, err := r.store.EnsureSalt(r.ctx, r.salt); err != nil {
		r.logger.Error("salt installation failed", logpkg.Err(err))
	} else if installed {
		r.logger.Info("salt generated")
	}
	for {
		select {
		case fn := <-r.reqs:
			fn()
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Runtime) tick() error {
	err := r.Mutate(r.ctx, func(s *eventstore.Store) error {
		if !r.job.Done() {
			if _, _, err := r.job.Tick(r.ctx); err != nil {
				r.logger.Error("migration tick failed", logpkg.Err(err), logpkg.Uint64("cursor", r.job.Cursor()))
			}
		}
		if s.SaltReady() && s.DeferredPending() > 0 {
			if _, err := s.DrainDeferred(r.ctx, r.config.MigrationBatchSize); err != nil {
				r.logger.Error("draining deferred events failed", logpkg.Err(err))
			}
		}
		return nil
	})
	if err != nil && r.ctx.Err() == nil {
		r.logger.Warn("heartbeat skipped", logpkg.Err(err))
	}
	// Returning an error would stop the ticker.
	return nil
}

func (r *Runtime) do(ctx context.Context, fn func(*eventstore.Store) error) error {
	errCh := make(chan error, 1)
	req := func() { errCh <- fn(r.store) }
	select {
	case r.reqs <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrClosed
	}
	return <-errCh
}

// Read runs fn on the executor. fn must not modify the store.
func (r *Runtime) Read(ctx context.Context, fn func(*eventstore.Store) error) error {
	return r.do(ctx, fn)
}

// Mutate runs fn on the executor.
func (r *Runtime) Mutate(ctx context.Context, fn func(*eventstore.Store) error) error {
	return r.do(ctx, fn)
}

// WaitForAppend blocks until an event with index >= after exists, the
// timeout passes, or ctx ends. It does not occupy the executor.
func (r *Runtime) WaitForAppend(ctx context.Context, after uint64, timeout time.Duration) bool {
	return r.store.WaitForAppend(ctx, after, timeout)
}

// Close stops the heartbeat and executor and closes the database.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	r.cancel()
	if err := r.heartbeat.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("heartbeat stopped with error", logpkg.Err(err))
	}
	<-r.done
	err := r.db.Close()
	r.db = nil
	return err
}

// CheckHealth verifies the database is readable and the executor responds.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	if err := it.Close(); err != nil {
		return err
	}
	return r.Read(ctx, func(*eventstore.Store) error { return nil })
}

// InitArgs returns the deployment's write-once settings.
func (r *Runtime) InitArgs() deployment.InitArgs { return r.init }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Metrics returns the collectors, which may be nil.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }
