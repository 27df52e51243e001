package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pantrylab/pantryd/internal/api"
	"github.com/pantrylab/pantryd/internal/app/dispatcher"
	"github.com/pantrylab/pantryd/internal/app/refresh"
	"github.com/pantrylab/pantryd/internal/habit"
	"github.com/pantrylab/pantryd/internal/infra/sqlite"
	"github.com/pantrylab/pantryd/internal/scheduler"
)

// Daemon is the assembled service.
type Daemon struct {
	cfg Config
	log zerolog.Logger

	db        *sqlite.DB
	worker    *dispatcher.Worker
	server    *http.Server
	scheduler *scheduler.Scheduler
}

// NewLogger builds the zerolog logger from the log config.
func NewLogger(cfg LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if cfg.File == "" {
		return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}).Level(level).With().Timestamp().Logger()
}

// New assembles a daemon from the config. The caller owns the lifecycle via
// Run.
func New(cfg Config) (*Daemon, error) {
	log := NewLogger(cfg.Log)

	if dir := filepath.Dir(cfg.DB.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sqlite.Open(cfg.DB.Path, cfg.DB.BusyTimeout())
	if err != nil {
		return nil, err
	}

	return &Daemon{cfg: cfg, log: log, db: db}, nil
}

// Run starts the HTTP server and the background jobs and blocks until ctx
// is cancelled or a component fails fatally.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.db.Close()

	resolver := habit.NewResolver(d.db, d.log)
	disp := dispatcher.New(d.db, resolver, d.log)
	d.worker = dispatcher.NewWorker(ctx, disp, d.cfg.Dispatch.MaxConcurrent, d.log)
	refresher := refresh.New(d.db, resolver, d.log)
	d.scheduler = scheduler.New(d.db, resolver, d.log)

	srv := api.NewServer(d.db, disp, d.worker, refresher, resolver, d.log)
	if d.cfg.API.Metrics {
		srv.EnableMetrics()
	}
	d.server = &http.Server{
		Addr:    d.cfg.API.Addr(),
		Handler: srv.Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d.log.Info().Str("addr", d.cfg.API.Addr()).Msg("http server listening")
		if err := d.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if d.cfg.Scheduler.DecayEnabled {
		g.Go(func() error {
			err := d.scheduler.RunDecayLoop(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	if d.cfg.Scheduler.WeeklyEnabled {
		g.Go(func() error {
			err := d.scheduler.RunWeeklyLoop(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	// Shutdown hook: stop accepting requests, then drain background work.
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.log.Warn().Err(err).Msg("http shutdown")
		}
		d.worker.Wait()
		return nil
	})

	return g.Wait()
}

// DB exposes the store for CLI subcommands that run one-off operations.
func (d *Daemon) DB() *sqlite.DB { return d.db }

// Logger exposes the daemon logger.
func (d *Daemon) Logger() zerolog.Logger { return d.log }
