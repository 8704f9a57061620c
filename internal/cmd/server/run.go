package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	cfgpkg "github.com/rzbill/evstore/internal/config"
	"github.com/rzbill/evstore/internal/metrics"
	"github.com/rzbill/evstore/internal/runtime"
	grpcserver "github.com/rzbill/evstore/internal/server/grpc"
	httpserver "github.com/rzbill/evstore/internal/server/http"
	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
	logpkg "github.com/rzbill/evstore/pkg/log"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	DataDir       string
	GRPCAddr      string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
}

// storeDir is where the Pebble database lives under a data directory.
func storeDir(dataDir string) string {
	if dataDir == "" {
		dataDir = cfgpkg.DefaultDataDir()
	}
	return filepath.Join(dataDir, "store")
}

// Run starts the gRPC and HTTP servers and blocks until ctx is cancelled or
// a server fails.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := opts.Logger
	if logger == nil {
		l, err := logpkg.ApplyConfig(&opts.Config.Log)
		if err != nil {
			return fmt.Errorf("log config: %w", err)
		}
		logger = l
	}
	// Pebble logs through the standard library logger.
	logpkg.RedirectStdLog(logger)

	rt, err := runtime.Open(runtime.Options{
		DataDir:       storeDir(opts.DataDir),
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
		Metrics:       metrics.New(),
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("Starting evstore server",
		logpkg.Str("grpc", opts.GRPCAddr),
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("level", opts.Config.Log.Level),
		logpkg.Str("format", opts.Config.Log.Format),
		logpkg.Duration("heartbeat", opts.Config.HeartbeatInterval()),
		logpkg.Duration("dedup_window", opts.Config.DedupWindow()),
	)

	gsrv := grpcserver.New(rt, logger)
	hsrv := httpserver.New(rt, logger)

	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error {
		if err := gsrv.ListenAndServe(gctx, opts.GRPCAddr); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := hsrv.ListenAndServe(gctx, opts.HTTPAddr); err != nil {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	err = g.Wait()
	// Servers are stopped before the deferred runtime Close.
	gsrv.Close()
	hsrv.Close()
	if err != nil {
		logger.Error("server stopped", logpkg.Err(err))
	}
	return err
}
