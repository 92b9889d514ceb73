// Command memoryextractor runs CORE's batch memory-extraction worker: on
// each interval it finds conversations with enough new messages, submits
// one provider batch covering all of them, and on completion dedupes and
// persists the extracted facts as memories.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/haasonsaas/assistant-core/internal/appconfig"
	"github.com/haasonsaas/assistant-core/internal/llmclient"
	"github.com/haasonsaas/assistant-core/internal/memoryextract"
	"github.com/haasonsaas/assistant-core/internal/obslog"
	"github.com/haasonsaas/assistant-core/internal/statestore"
)

func main() {
	if err := run(); err != nil {
		slog.Error("memoryextractor exited with error", "error", err)
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
	obs := obslog.New(baseLogger, "memoryextractor")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := statestore.New(cfg.StateStoreBaseURL, statestore.WithHTTPClient(&http.Client{Timeout: cfg.StateStoreTimeout}))

	batchClient, err := llmclient.NewAnthropicClient(llmclient.AnthropicConfig{
		APIKey: cfg.AnthropicAPIKey,
		Model:  cfg.AnthropicModel,
	})
	if err != nil {
		return fmt.Errorf("construct anthropic client: %w", err)
	}

	embedder := memoryextract.NewOpenAIEmbedder(cfg.OpenAIAPIKey, "")

	extractor := memoryextract.New(memoryextract.Deps{
		Store:        store,
		Batch:        batchClient,
		Embedder:     embedder,
		Interval:     cfg.MemoryExtractionInterval,
		PollInterval: cfg.MemoryExtractionBatchPollInterval,
		MemoryCap:    cfg.MemoryPerUserCap,
		Logger:       baseLogger,
	})

	obs.Event(ctx, obslog.EventJobStart, "memory extractor starting", "interval", cfg.MemoryExtractionInterval.String())
	if err := extractor.Run(ctx); err != nil {
		return fmt.Errorf("run extraction loop: %w", err)
	}
	obs.Event(ctx, obslog.EventJobEnd, "memory extractor stopped")
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
