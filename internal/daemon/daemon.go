// Package daemon wires the store, Redis, the board service and the HTTP
// server into one long-running process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/guildboard/guildboard/internal/api"
	"github.com/guildboard/guildboard/internal/app/board"
	"github.com/guildboard/guildboard/internal/app/dispatch"
	"github.com/guildboard/guildboard/internal/infra/observability"
	"github.com/guildboard/guildboard/internal/infra/redisx"
	"github.com/guildboard/guildboard/internal/infra/sqlite"
)

const shutdownTimeout = 10 * time.Second

// Daemon is a fully wired process.
type Daemon struct {
	Config  Config
	Log     *log.Logger
	DB      *sqlite.DB
	Redis   *redis.Client // nil when disabled
	Tracer  *observability.Tracer
	Board   *board.Service
	Server  *api.Server
	Publish *redisx.Publisher
	Events  *dispatch.Dispatcher
}

// New validates cfg, opens storage, connects Redis if configured, and builds
// the service and HTTP server. Redis failures disable publishing instead of
// failing.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if logger == nil {
		logger = cfg.NewLogger()
	}
	ttl, _ := cfg.DedupeTTL()
	timeout, _ := cfg.APITimeout()

	db, err := sqlite.Open(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	rc := redisx.ConnectOrDisable(ctx, cfg.Redis.URL, logger)
	pub := redisx.NewPublisher(rc, cfg.Redis.Channel, logger)
	events := dispatch.New(dispatch.DefaultConfig(), pub, logger)
	tracer := observability.NewTracer(observability.DefaultTracerConfig())

	svc := board.NewService(db, logger,
		board.WithPublisher(events),
		board.WithTracer(tracer),
		board.WithRewards(cfg.BoardRewards()),
	)

	srv := api.NewServer(svc, logger)
	if cfg.API.Metrics {
		srv.EnableMetrics()
	}
	srv.SetTracer(tracer)
	srv.SetDispatcher(events)
	srv.SetDeduper(redisx.NewDeduper(rc, ttl))
	srv.SetTimeout(timeout)

	return &Daemon{
		Config:  cfg,
		Log:     logger,
		DB:      db,
		Redis:   rc,
		Tracer:  tracer,
		Board:   svc,
		Server:  srv,
		Publish: pub,
		Events:  events,
	}, nil
}

// Close drains pending events, then releases Redis and storage.
func (d *Daemon) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	errs = append(errs, d.Events.Close(ctx))
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	errs = append(errs, d.DB.Close())
	return errors.Join(errs...)
}

// Run serves HTTP until ctx is cancelled or the process receives SIGINT or
// SIGTERM, then shuts down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              d.Config.Addr(),
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		d.Log.WithFields(log.Fields{
			"addr":      srv.Addr,
			"storage":   d.DB.Path(),
			"publisher": d.Publish.Enabled(),
		}).Info("server starting")
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
	case sig := <-sigCh:
		d.Log.WithField("signal", sig.String()).Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
