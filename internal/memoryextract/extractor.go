// Package memoryextract is CORE's periodic background memory extraction
// worker: it enumerates conversations with enough unprocessed history,
// submits a fact-extraction prompt per conversation as one provider-side
// LLM batch, and on completion dedups/updates/inserts the extracted facts
// into the Memory store, evicting the lowest-importance oldest record once
// a user's memory cap is exceeded.
package memoryextract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/assistant-core/internal/clock"
	"github.com/haasonsaas/assistant-core/internal/llmclient"
	"github.com/haasonsaas/assistant-core/internal/statestore"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

// Default tuning values, overridable via Deps or global settings.
const (
	DefaultInterval         = 24 * time.Hour
	DefaultPollInterval     = 30 * time.Second
	DefaultMinMessages      = 10
	DefaultMemoryCap        = 1000
	DefaultDedupeThreshold  = 0.92
	DefaultUpdateThreshold  = 0.85
	DefaultHistoryPageLimit = 200
)

// Deps bundles the extractor's collaborators.
type Deps struct {
	Store           *statestore.Client
	Batch           llmclient.BatchProvider
	Embedder        Embedder
	Interval        time.Duration
	PollInterval    time.Duration
	MemoryCap       int
	DedupeThreshold float64
	UpdateThreshold float64
	Clock           clock.Clock
	Logger          *slog.Logger
}

// Extractor runs the memory-extraction batch worker.
type Extractor struct {
	deps Deps
}

// New constructs an Extractor, applying default field values where unset.
func New(deps Deps) *Extractor {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.PollInterval <= 0 {
		deps.PollInterval = DefaultPollInterval
	}
	if deps.MemoryCap <= 0 {
		deps.MemoryCap = DefaultMemoryCap
	}
	if deps.DedupeThreshold <= 0 {
		deps.DedupeThreshold = DefaultDedupeThreshold
	}
	if deps.UpdateThreshold <= 0 {
		deps.UpdateThreshold = DefaultUpdateThreshold
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Extractor{deps: deps}
}

// Run resumes any unfinished batch jobs, then loops RunOnce on every
// Interval tick until ctx is cancelled.
func (e *Extractor) Run(ctx context.Context) error {
	if err := e.ResumeUnfinished(ctx); err != nil {
		e.deps.Logger.Error("memoryextract: resume unfinished batches failed", "error", err)
	}
	for {
		if err := e.RunOnce(ctx); err != nil {
			e.deps.Logger.Error("memoryextract: run failed", "error", err)
		}
		if err := e.deps.Clock.Sleep(ctx, e.deps.Interval); err != nil {
			return nil
		}
	}
}

// extractedFact is the shape the extraction prompt asks the model for.
type extractedFact struct {
	Text       string `json:"text"`
	MemoryType string `json:"memory_type"`
	Importance int    `json:"importance"`
}

// RunOnce performs a single enumerate → submit → poll → collect → persist
// cycle, gated on the global MemoryExtractionEnabled setting.
func (e *Extractor) RunOnce(ctx context.Context) error {
	settings, err := e.deps.Store.GetGlobalSettings(ctx)
	if err != nil {
		return fmt.Errorf("memoryextract: load global settings: %w", err)
	}
	if settings == nil || !settings.MemoryExtractionEnabled {
		e.deps.Logger.Debug("memoryextract: extraction disabled, skipping run")
		return nil
	}
	minMessages := settings.MemoryExtractionMinMessages
	if minMessages <= 0 {
		minMessages = DefaultMinMessages
	}
	dedupeThreshold := e.deps.DedupeThreshold
	if settings.MemoryExtractionDedupeThresh > 0 {
		dedupeThreshold = settings.MemoryExtractionDedupeThresh
	}

	candidates, err := e.deps.Store.ListExtractionCandidates(ctx, minMessages)
	if err != nil {
		return fmt.Errorf("memoryextract: list extraction candidates: %w", err)
	}
	if len(candidates) == 0 {
		e.deps.Logger.Debug("memoryextract: no conversations met the extraction threshold")
		return nil
	}

	batch, err := e.buildBatch(ctx, candidates)
	if err != nil {
		return fmt.Errorf("memoryextract: build batch: %w", err)
	}
	if len(batch.requests) == 0 {
		return nil
	}

	providerBatchID, err := e.deps.Batch.SubmitBatch(ctx, batch.requests)
	if err != nil {
		return fmt.Errorf("memoryextract: submit batch: %w", err)
	}

	jobs := make([]coremodels.BatchJob, 0, len(batch.requests))
	now := e.deps.Clock.Now()
	for _, req := range batch.requests {
		info := batch.byKey[req.CustomID]
		job := coremodels.BatchJob{
			ID: uuid.NewString(), ProviderBatchID: providerBatchID, Status: coremodels.BatchJobStatusSubmitted,
			ConversationKey: req.CustomID, LastMessageID: info.lastMessageID, SubmittedCount: 1,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := e.deps.Store.CreateBatchJob(ctx, &job); err != nil {
			e.deps.Logger.Error("memoryextract: create batch job failed", "conversation_key", req.CustomID, "error", err)
			continue
		}
		jobs = append(jobs, job)
	}

	return e.pollAndFinalize(ctx, providerBatchID, jobs, dedupeThreshold)
}

// ResumeUnfinished polls every BatchJob row left submitted/running from a
// prior process instance and finalizes any that have since ended.
func (e *Extractor) ResumeUnfinished(ctx context.Context) error {
	jobs, err := e.deps.Store.ListUnfinishedBatchJobs(ctx)
	if err != nil {
		return fmt.Errorf("memoryextract: list unfinished batch jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}
	byProvider := make(map[string][]coremodels.BatchJob)
	for _, j := range jobs {
		byProvider[j.ProviderBatchID] = append(byProvider[j.ProviderBatchID], j)
	}
	for providerBatchID, group := range byProvider {
		if err := e.pollAndFinalize(ctx, providerBatchID, group, e.deps.DedupeThreshold); err != nil {
			e.deps.Logger.Error("memoryextract: resume batch failed", "provider_batch_id", providerBatchID, "error", err)
		}
	}
	return nil
}

// pollAndFinalize blocks polling providerBatchID until the provider
// reports it ended (or ctx is cancelled), then collects and persists
// results for every job in jobs.
func (e *Extractor) pollAndFinalize(ctx context.Context, providerBatchID string, jobs []coremodels.BatchJob, dedupeThreshold float64) error {
	for {
		status, err := e.deps.Batch.PollBatch(ctx, providerBatchID)
		if err != nil {
			return fmt.Errorf("memoryextract: poll batch %s: %w", providerBatchID, err)
		}
		if status == llmclient.BatchEnded {
			break
		}
		if err := e.deps.Clock.Sleep(ctx, e.deps.PollInterval); err != nil {
			return nil
		}
	}

	results, err := e.deps.Batch.CollectBatch(ctx, providerBatchID)
	if err != nil {
		return fmt.Errorf("memoryextract: collect batch %s: %w", providerBatchID, err)
	}
	byKey := make(map[string]llmclient.BatchResult, len(results))
	for _, r := range results {
		byKey[r.CustomID] = r
	}

	for _, job := range jobs {
		result, ok := byKey[job.ConversationKey]
		if !ok {
			continue
		}
		e.finalizeJob(ctx, job, result, dedupeThreshold)
	}
	return nil
}

func (e *Extractor) finalizeJob(ctx context.Context, job coremodels.BatchJob, result llmclient.BatchResult, dedupeThreshold float64) {
	log := e.deps.Logger.With("conversation_key", job.ConversationKey, "provider_batch_id", job.ProviderBatchID)

	if result.Status != llmclient.BatchRequestSucceeded {
		job.Status = coremodels.BatchJobStatusFailed
		job.Error = result.Error
		job.UpdatedAt = e.deps.Clock.Now()
		if err := e.deps.Store.UpdateBatchJob(ctx, &job); err != nil {
			log.Error("memoryextract: update failed batch job failed", "error", err)
		}
		return
	}

	userID, err := parseUserID(job.ConversationKey)
	if err != nil {
		log.Error("memoryextract: unparseable conversation key", "error", err)
		return
	}

	facts, err := parseFacts(result.Reply.Text)
	if err != nil {
		job.Status = coremodels.BatchJobStatusFailed
		job.Error = err.Error()
		job.UpdatedAt = e.deps.Clock.Now()
		_ = e.deps.Store.UpdateBatchJob(ctx, &job)
		log.Error("memoryextract: parse extracted facts failed", "error", err)
		return
	}

	extracted := 0
	for _, f := range facts {
		if err := e.ingestFact(ctx, userID, f, dedupeThreshold); err != nil {
			log.Error("memoryextract: ingest fact failed", "error", err)
			continue
		}
		extracted++
	}

	job.Status = coremodels.BatchJobStatusCompleted
	job.ExtractedCount = extracted
	job.UpdatedAt = e.deps.Clock.Now()
	if err := e.deps.Store.UpdateBatchJob(ctx, &job); err != nil {
		log.Error("memoryextract: update completed batch job failed", "error", err)
	}

	if job.LastMessageID > 0 {
		parts := strings.SplitN(job.ConversationKey, ":", 2)
		if len(parts) == 2 {
			if err := e.deps.Store.UpdateExtractionWatermark(ctx, userID, parts[1], job.LastMessageID); err != nil {
				log.Error("memoryextract: update watermark failed", "error", err)
			}
		}
	}
}

// ingestFact dedups f against the user's existing memories, updates a
// near-duplicate when only moderately similar, otherwise inserts, then
// enforces the per-user memory cap.
func (e *Extractor) ingestFact(ctx context.Context, userID int64, f extractedFact, dedupeThreshold float64) error {
	embedding, err := e.deps.Embedder.Embed(ctx, f.Text)
	if err != nil {
		return fmt.Errorf("embed fact: %w", err)
	}

	near, err := e.deps.Store.SearchMemories(ctx, userID, embedding, 1, e.deps.UpdateThreshold)
	if err != nil {
		return fmt.Errorf("search existing memories: %w", err)
	}
	if len(near) > 0 {
		if near[0].Score >= dedupeThreshold {
			return nil // near-exact duplicate, skip
		}
		updated := near[0].Memory
		updated.Text = f.Text
		updated.Importance = clampImportance(f.Importance)
		updated.Embedding = embedding
		if err := e.deps.Store.UpdateMemory(ctx, &updated); err != nil {
			return fmt.Errorf("update near-duplicate memory: %w", err)
		}
		return nil
	}

	mem := &coremodels.Memory{
		UserID: userID, Text: f.Text, Type: memoryType(f.MemoryType),
		Importance: clampImportance(f.Importance), Embedding: embedding, CreatedAt: e.deps.Clock.Now(),
	}
	if _, err := e.deps.Store.CreateMemory(ctx, mem); err != nil {
		return fmt.Errorf("create memory: %w", err)
	}
	return e.enforceCap(ctx, userID)
}

// enforceCap evicts the lowest-importance oldest memory once the user's
// count exceeds MemoryCap.
func (e *Extractor) enforceCap(ctx context.Context, userID int64) error {
	all, err := e.deps.Store.ListMemoriesForUser(ctx, userID, nil)
	if err != nil {
		return fmt.Errorf("list memories for cap check: %w", err)
	}
	if len(all) <= e.deps.MemoryCap {
		return nil
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Importance != all[j].Importance {
			return all[i].Importance < all[j].Importance
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	evict := all[:len(all)-e.deps.MemoryCap]
	for _, m := range evict {
		if err := e.deps.Store.DeleteMemory(ctx, m.ID); err != nil {
			return fmt.Errorf("evict memory %d: %w", m.ID, err)
		}
	}
	return nil
}

func clampImportance(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

func memoryType(s string) coremodels.MemoryType {
	switch coremodels.MemoryType(s) {
	case coremodels.MemoryTypeUserFact, coremodels.MemoryTypePreference,
		coremodels.MemoryTypeEvent, coremodels.MemoryTypeConversationInsight:
		return coremodels.MemoryType(s)
	default:
		return coremodels.MemoryTypeConversationInsight
	}
}

func parseFacts(text string) ([]extractedFact, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array found in extraction reply")
	}
	var facts []extractedFact
	if err := json.Unmarshal([]byte(text[start:end+1]), &facts); err != nil {
		return nil, fmt.Errorf("decode extracted facts: %w", err)
	}
	return facts, nil
}

func parseUserID(conversationKey string) (int64, error) {
	parts := strings.SplitN(conversationKey, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed conversation key %q", conversationKey)
	}
	return strconv.ParseInt(parts[0], 10, 64)
}
