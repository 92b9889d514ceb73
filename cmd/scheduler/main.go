// Command scheduler runs CORE's reminder reconciliation loop: it polls
// the state store for active reminders, tracks their one-shot or cron
// schedule in memory, and emits a trigger envelope onto the inbound
// stream the orchestrator consumes whenever one comes due.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/haasonsaas/assistant-core/internal/appconfig"
	"github.com/haasonsaas/assistant-core/internal/obslog"
	"github.com/haasonsaas/assistant-core/internal/scheduler"
	"github.com/haasonsaas/assistant-core/internal/statestore"
	"github.com/haasonsaas/assistant-core/internal/stream"
)

func main() {
	if err := run(); err != nil {
		slog.Error("scheduler exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(baseLogger)
	obs := obslog.New(baseLogger, "scheduler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	store := statestore.New(cfg.StateStoreBaseURL, statestore.WithHTTPClient(&http.Client{Timeout: cfg.StateStoreTimeout}))
	streamIn := stream.New(rdb, cfg.StreamIn, cfg.StreamGroup, cfg.ConsumerName)

	sched := scheduler.New(scheduler.Deps{
		Store:        store,
		StreamIn:     streamIn,
		PollInterval: cfg.SchedulerPollInterval,
		Logger:       baseLogger,
	})

	obs.Event(ctx, obslog.EventJobStart, "scheduler starting", "poll_interval", cfg.SchedulerPollInterval.String())
	if err := sched.Run(ctx); err != nil {
		return fmt.Errorf("run reconcile loop: %w", err)
	}
	obs.Event(ctx, obslog.EventJobEnd, "scheduler stopped")
	return nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
