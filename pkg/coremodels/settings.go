package coremodels

import "time"

// GlobalSettings is the singleton settings row CORE reads to gate optional
// subsystems, including memory extraction. It is read from the state store
// on each use; no cache holds it.
type GlobalSettings struct {
	MemoryExtractionEnabled      bool    `json:"memory_extraction_enabled"`
	MemoryExtractionMinMessages  int     `json:"memory_extraction_min_messages"`
	MemoryExtractionDedupeThresh float64 `json:"memory_extraction_dedupe_threshold"`
	DefaultHistoryLimit          int     `json:"default_history_limit"`
	UpdatedAt                    time.Time `json:"updated_at"`
}

// UserFact is a single durable fact about a user surfaced to the
// conversation graph's load_user_facts node, distinct from a PendingFact
// (the trimmed copy of a fact row that load_context carries in GraphState).
type UserFact struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// QueueLogEntry records one stream-processing attempt (success or
// failure) for operator visibility into orchestrator throughput and the
// DLQ pipeline, independent of the per-turn JobExecution rows the
// scheduler writes.
type QueueLogEntry struct {
	ID            int64     `json:"id"`
	MessageID     string    `json:"message_id"`
	Stream        string    `json:"stream"`
	UserID        int64     `json:"user_id"`
	Outcome       string    `json:"outcome"` // "success" | "retry" | "dlq"
	ErrorType     string    `json:"error_type,omitempty"`
	RetryCount    int       `json:"retry_count"`
	CorrelationID string    `json:"correlation_id"`
	CreatedAt     time.Time `json:"created_at"`
}
