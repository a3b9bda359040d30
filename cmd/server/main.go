// Package main is the entrypoint for the renderhub API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kiranshivaraju/renderhub/internal/api"
	"github.com/kiranshivaraju/renderhub/internal/api/handler"
	mw "github.com/kiranshivaraju/renderhub/internal/api/middleware"
	"github.com/kiranshivaraju/renderhub/internal/balancer"
	"github.com/kiranshivaraju/renderhub/internal/cache"
	"github.com/kiranshivaraju/renderhub/internal/config"
	"github.com/kiranshivaraju/renderhub/internal/monitor"
	"github.com/kiranshivaraju/renderhub/internal/queue"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout  = 30 * time.Second
	redisConnectWait = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel,
	}))
	slog.SetDefault(logger)
	slog.Info("config loaded", "env", cfg.Server.Env,
		"max_workers", cfg.Balancer.MaxWorkers, "max_jobs_per_worker", cfg.Balancer.MaxJobsPerWorker)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to the metrics store
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := waitForRedis(ctx, redisCache); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 3. Build the scheduling core
	backend := queue.NewMemoryBackend()
	defer backend.Close()

	jobs := queue.New(backend, redisCache)
	mon := monitor.New(cfg.Monitor, monitor.NewHostSource(cfg.Monitor.DiskPath), jobs, redisCache)
	bal := balancer.New(cfg.Balancer, jobs, mon)

	// 4. Build router with dependencies
	router := api.NewRouter(api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute),
		Recorder:  mon,

		Workers:  bal,
		Jobs:     jobs,
		Dispatch: bal,
		Queue:    jobs,
		Nodes:    bal,
		Metrics:  mon,

		HealthHandler: handler.NewHealthHandler(redisCache),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 5. Run the server and the background loops until a signal arrives
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return jobs.Run(gctx) })
	g.Go(func() error { return bal.Run(gctx) })
	g.Go(func() error { return mon.Run(gctx) })

	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("server stopped gracefully")
	return nil
}

// waitForRedis pings the store with exponential backoff until it answers or
// redisConnectWait elapses.
func waitForRedis(ctx context.Context, p handler.Pinger) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = redisConnectWait

	return backoff.RetryNotify(func() error {
		return p.Ping(ctx)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		slog.Warn("redis not ready, retrying", "error", err, "retry_in", next)
	})
}
