// Package appconfig loads CORE's per-service configuration from the
// process environment (plus an optional .env file via
// github.com/joho/godotenv), applying defaults and validating required
// fields the same way a Load/applyDefaults/validate split usually does —
// flattened to scalar env vars rather than a nested YAML tree, since each
// CORE binary only takes a handful of settings.
package appconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting shared across the
// orchestrator, scheduler, and memory-extractor binaries. Each cmd/ entry
// point reads only the fields relevant to it.
type Config struct {
	// RedisAddr is the stream broker and retry-counter store.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// StateStoreBaseURL is the REST API backing users/assistants/messages/etc.
	StateStoreBaseURL string
	StateStoreTimeout time.Duration

	// StreamIn/StreamOut/StreamGroup name the Redis Streams CORE consumes
	// from and publishes to.
	StreamIn      string
	StreamOut     string
	StreamGroup   string
	ConsumerName  string
	ConsumerCount int

	// OrchestratorMaxRetries and OrchestratorRetryDelays implement the
	// inbound retry-then-DLQ policy.
	OrchestratorMaxRetries  int
	OrchestratorRetryDelays []time.Duration

	// SchedulerPollInterval is the reconcile-loop cadence.
	SchedulerPollInterval time.Duration

	// AnthropicAPIKey and AnthropicModel configure the assistant LLM and the
	// memory extractor's batch provider.
	AnthropicAPIKey string
	AnthropicModel  string

	// OpenAIAPIKey optionally configures an OpenAI-compatible embeddings
	// provider for memory dedup.
	OpenAIAPIKey string

	// MemoryExtractionBatchPollInterval paces the batch worker's polling and
	// MemoryExtractionInterval is the worker's run cadence (default 24h).
	// MemoryExtractionMinMessages is loaded but not passed to the worker,
	// which takes its minimum from the global settings row.
	MemoryExtractionMinMessages       int
	MemoryExtractionBatchPollInterval time.Duration
	MemoryExtractionInterval          time.Duration
	MemoryPerUserCap                  int

	// LogLevel is one of debug/info/warn/error.
	LogLevel string
}

// Load reads .env (if present, ignored if missing) then populates Config
// from the environment, applying defaults and validating required fields.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RedisAddr:          getenv("CORE_REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("CORE_REDIS_PASSWORD"),
		StateStoreBaseURL:  os.Getenv("CORE_STATE_STORE_URL"),
		StreamIn:           getenv("CORE_STREAM_IN", "stream:in"),
		StreamOut:          getenv("CORE_STREAM_OUT", "stream:out"),
		StreamGroup:        getenv("CORE_STREAM_GROUP", "core-consumers"),
		ConsumerName:       os.Getenv("CORE_CONSUMER_NAME"),
		AnthropicAPIKey:    os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:     getenv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		LogLevel:           getenv("CORE_LOG_LEVEL", "info"),
	}

	var err error
	if cfg.RedisDB, err = getenvInt("CORE_REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.ConsumerCount, err = getenvInt("CORE_CONSUMER_COUNT", 4); err != nil {
		return nil, err
	}
	if cfg.OrchestratorMaxRetries, err = getenvInt("CORE_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.MemoryExtractionMinMessages, err = getenvInt("CORE_MEMORY_MIN_MESSAGES", 6); err != nil {
		return nil, err
	}
	if cfg.MemoryPerUserCap, err = getenvInt("CORE_MEMORY_PER_USER_CAP", 1000); err != nil {
		return nil, err
	}
	if cfg.StateStoreTimeout, err = getenvDuration("CORE_STATE_STORE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.SchedulerPollInterval, err = getenvDuration("CORE_SCHEDULER_POLL_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.MemoryExtractionBatchPollInterval, err = getenvDuration("CORE_MEMORY_BATCH_POLL_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.MemoryExtractionInterval, err = getenvDuration("CORE_MEMORY_EXTRACTION_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}
	cfg.OrchestratorRetryDelays = []time.Duration{1 * time.Second, 5 * time.Second, 15 * time.Second}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ConsumerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "consumer"
		}
		cfg.ConsumerName = hostname
	}
}

func validate(cfg *Config) error {
	if cfg.StateStoreBaseURL == "" {
		return fmt.Errorf("appconfig: CORE_STATE_STORE_URL is required")
	}
	if cfg.ConsumerCount < 1 {
		return fmt.Errorf("appconfig: CORE_CONSUMER_COUNT must be >= 1, got %d", cfg.ConsumerCount)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("appconfig: invalid int for %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("appconfig: invalid duration for %s: %w", key, err)
	}
	return d, nil
}
