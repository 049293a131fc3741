package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/DeafMist/pagemap-facets/internal/config"
	"github.com/DeafMist/pagemap-facets/internal/logger"
	"github.com/DeafMist/pagemap-facets/internal/store"
	"github.com/DeafMist/pagemap-facets/internal/wiring"
)

const maxConnectAttempts = 10

var errNoRetention = errors.New("store backend does not support retention")

func main() {
	_ = godotenv.Load()

	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	purger, closeStore, err := connect(ctx, log, cfg)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("connect store", slog.Any("err", err))
		os.Exit(1)
	}
	defer closeStore()

	log.Info("retention job running",
		slog.String("store", cfg.StoreBackend),
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	// Run immediately on start; a failing run is retried on the next tick.
	runOnce(ctx, log, purger, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, purger, cfg)
		}
	}
}

// connect opens the configured store with exponential backoff until it
// answers a ping.
func connect(ctx context.Context, log *slog.Logger, cfg *config.Retention) (store.Purger, func() error, error) {
	retryDelay := 2 * time.Second
	var lastErr error

	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		purger, closeStore, err := open(ctx, log, cfg)
		if errors.Is(err, errNoRetention) {
			return nil, nil, err
		}
		if err == nil {
			log.Info("connected to store", slog.Int("attempt", attempt))
			return purger, closeStore, nil
		}
		lastErr = err

		log.Warn("store unavailable, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", maxConnectAttempts),
			slog.Duration("retry_in", retryDelay),
		)

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
		retryDelay = min(retryDelay*2, 30*time.Second)
	}

	return nil, nil, lastErr
}

func open(ctx context.Context, log *slog.Logger, cfg *config.Retention) (store.Purger, func() error, error) {
	st, closeStore, err := wiring.OpenStore(ctx, cfg.Common, log)
	if err != nil {
		return nil, nil, err
	}

	purger, ok := st.(store.Purger)
	if !ok {
		_ = closeStore()
		return nil, nil, errNoRetention
	}

	if pinger, ok := st.(store.Pinger); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pinger.Ping(pingCtx); err != nil {
			_ = closeStore()
			return nil, nil, err
		}
	}
	return purger, closeStore, nil
}

func runOnce(ctx context.Context, log *slog.Logger, purger store.Purger, cfg *config.Retention) {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	deleted, err := purger.DeleteOlderThan(subCtx, cfg.MaxAge, cfg.BatchSize)
	if err != nil {
		log.Warn("retention run failed (will retry on next interval)", slog.Any("err", err))
		return
	}

	if deleted > 0 {
		log.Info("retention run completed", slog.Int64("deleted", deleted))
	} else {
		log.Debug("retention run completed, no expired items found")
	}
}
