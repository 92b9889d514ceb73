package coremodels

import "time"

// MemoryType is the closed set of memory record classifications.
type MemoryType string

const (
	MemoryTypeUserFact           MemoryType = "user_fact"
	MemoryTypePreference         MemoryType = "preference"
	MemoryTypeEvent              MemoryType = "event"
	MemoryTypeConversationInsight MemoryType = "conversation_insight"
)

// Memory is a persisted, embedding-indexed fact retrieved by similarity at
// turn time. Embeddings are provider-generated and opaque to the CORE; it
// only carries the vector and forwards it to the memory-search collaborator.
//
// Invariant: duplicates within a cosine-similarity threshold against the
// same user collapse to a single record on ingest (see internal/memoryextract).
type Memory struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	AssistantID *string    `json:"assistant_id,omitempty"` // nil = shared
	Text        string     `json:"text"`
	Type        MemoryType `json:"memory_type"`
	Importance  int        `json:"importance"` // 1-10
	Embedding   []float32  `json:"embedding,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ScoredMemory pairs a Memory with the similarity score it was retrieved at.
type ScoredMemory struct {
	Memory
	Score float64 `json:"score"`
}

// BatchJobStatus is the closed lifecycle of a memory-extraction batch.
type BatchJobStatus string

const (
	BatchJobStatusSubmitted BatchJobStatus = "submitted"
	BatchJobStatusRunning   BatchJobStatus = "running"
	BatchJobStatusCompleted BatchJobStatus = "completed"
	BatchJobStatusFailed    BatchJobStatus = "failed"
)

// ConversationRef identifies one (user, assistant) conversation the memory
// extractor may have unextracted messages to process, with its current
// extraction watermark.
type ConversationRef struct {
	UserID                  int64  `json:"user_id"`
	AssistantID             string `json:"assistant_id"`
	LastExtractedMessageID  int64  `json:"last_extracted_message_id"`
	UnextractedMessageCount int    `json:"unextracted_message_count"`
}

// BatchJob tracks a single memory-extraction LLM batch submission so the
// extractor can resume after a restart instead of resubmitting work.
type BatchJob struct {
	ID              string         `json:"id"`
	ProviderBatchID string         `json:"provider_batch_id"`
	Status          BatchJobStatus `json:"status"`
	ConversationKey string         `json:"conversation_key"` // "<user_id>:<assistant_id>"
	LastMessageID   int64          `json:"last_message_id"`  // watermark to commit once this job completes
	SubmittedCount  int            `json:"submitted_count"`
	ExtractedCount  int            `json:"extracted_count"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
