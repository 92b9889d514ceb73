// Command orchestrator runs CORE's inbound dispatch loop: it consumes
// envelopes off the inbound Redis stream, seeds and runs the conversation
// graph for the addressed assistant, and publishes the reply (or routes
// the failure to retry/DLQ). Bootstrap follows the usual long-running
// service shape: config load, signal-aware context, structured
// startup/shutdown logging.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haasonsaas/assistant-core/internal/appconfig"
	"github.com/haasonsaas/assistant-core/internal/convgraph"
	"github.com/haasonsaas/assistant-core/internal/llmclient"
	"github.com/haasonsaas/assistant-core/internal/memoryextract"
	"github.com/haasonsaas/assistant-core/internal/memorysearch"
	"github.com/haasonsaas/assistant-core/internal/obslog"
	"github.com/haasonsaas/assistant-core/internal/orchestrator"
	"github.com/haasonsaas/assistant-core/internal/rcache"
	"github.com/haasonsaas/assistant-core/internal/statestore"
	"github.com/haasonsaas/assistant-core/internal/stream"
	"github.com/haasonsaas/assistant-core/internal/toolkit"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

func main() {
	if err := run(); err != nil {
		slog.Error("orchestrator exited with error", "error", err)
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
	obs := obslog.New(baseLogger, "orchestrator")

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
	streamOut := stream.New(rdb, cfg.StreamOut, cfg.StreamGroup, cfg.ConsumerName)
	retry := stream.NewRetryTracker(rdb, "core:retry", 24*time.Hour)

	embedder := memoryextract.NewOpenAIEmbedder(cfg.OpenAIAPIKey, "")
	memory := memorysearch.New(store, embedder)

	toolFactory := toolkit.NewFactory(toolkit.Deps{
		Store:  store,
		Memory: memory,
		Logger: baseLogger,
	})

	llmClient, err := llmclient.NewAnthropicClient(llmclient.AnthropicConfig{
		APIKey: cfg.AnthropicAPIKey,
		Model:  cfg.AnthropicModel,
	})
	if err != nil {
		return fmt.Errorf("construct anthropic client: %w", err)
	}

	graph := convgraph.New(convgraph.Deps{
		Store:  store,
		LLM:    llmClient,
		Memory: memory,
		Logger: baseLogger,
	})

	assistants := rcache.New[*coremodels.Assistant](rcache.Options{TTL: 5 * time.Minute, MaxSize: 1000})
	toolDefs := rcache.New[[]coremodels.ToolDefinition](rcache.Options{TTL: 5 * time.Minute, MaxSize: 1000})

	orch := orchestrator.New(orchestrator.Deps{
		StreamIn:    streamIn,
		StreamOut:   streamOut,
		Retry:       retry,
		Store:       store,
		Graph:       graph,
		ToolFactory: toolFactory,
		Assistants:  assistants,
		ToolDefs:    toolDefs,
		MaxRetries:  cfg.OrchestratorMaxRetries,
		RetryDelays: cfg.OrchestratorRetryDelays,
		Logger:      baseLogger,
	})

	// The sub-assistant delegation tool needs an invoker that itself
	// depends on a fully-built tool factory, so it's wired in after
	// both sides exist rather than threaded through construction.
	toolFactory.SetSubAssistantInvoker(orch)

	obs.Event(ctx, obslog.EventJobStart, "orchestrator starting", "consumer_count", cfg.ConsumerCount)
	if err := orch.Run(ctx, cfg.ConsumerCount); err != nil {
		return fmt.Errorf("run dispatch loop: %w", err)
	}
	obs.Event(ctx, obslog.EventJobEnd, "orchestrator stopped")
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
