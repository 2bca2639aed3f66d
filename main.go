package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	httpapi "github.com/yourorg/inventory-api/http"
	"github.com/yourorg/inventory-api/internal/app"
	"github.com/yourorg/inventory-api/internal/auth"
	"github.com/yourorg/inventory-api/internal/config"
	"github.com/yourorg/inventory-api/internal/events"
	"github.com/yourorg/inventory-api/internal/feed"
	"github.com/yourorg/inventory-api/internal/jobs"
	"github.com/yourorg/inventory-api/internal/logger"
	"github.com/yourorg/inventory-api/internal/metrics"
	"github.com/yourorg/inventory-api/internal/processor"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := config.Load()

	log, err := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Name: "inventory-api"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("inventory-api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	if err := cfg.ValidateAPI(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	pub := events.NewInMemory(256)
	go events.Log(ctx, pub, log.Named("events"), func(events.ImageOptimized) {
		metrics.ImagesOptimizedEvents.Inc()
	})

	proc, err := app.NewProcessor(cfg, deps, pub, log)
	if err != nil {
		return err
	}
	queue := jobs.New(256, cfg.JobWorkers, 2*time.Minute, func(ctx context.Context, j jobs.Job) {
		if err := proc.Process(ctx, j.ImageID); err != nil && !processor.IsDeferred(err) {
			log.Warn("queued image job failed", zap.String("image_id", j.ImageID), zap.Error(err))
		}
	})
	defer queue.Close()

	adminAuth, err := auth.NewAuthenticator("admin", cfg.AdminAPIKey, log)
	if err != nil {
		return fmt.Errorf("ADMIN_API_KEY: %w", err)
	}

	feedDeps := httpapi.FeedDeps{RateLimit: cfg.FeedRateLimit, Log: log}
	if feedAuth, err := auth.NewAuthenticator("feed", cfg.FeedAPIKey, log); err != nil {
		log.Error("FEED_API_KEY is not configured, the DMS feed will answer CONFIG_ERROR")
	} else {
		gen, err := feed.NewGenerator(deps.Store, feed.Config{BaseURL: cfg.PublicBaseURL}, log)
		if err != nil {
			return err
		}
		feedDeps.Auth, feedDeps.Generator = feedAuth, gen
	}

	checks := map[string]httpapi.Check{"postgres": deps.Store.Ping}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis.Ping
	}

	router := BuildRouter(RouterDeps{
		Log:       log,
		AdminAuth: adminAuth,
		Feed:      feedDeps,
		Inventory: httpapi.InventoryDeps{Store: deps.Store, Bucket: deps.Bucket, Queue: queue, Log: log},
		Health:    httpapi.HealthDeps{Checks: checks},
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("inventory-api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
