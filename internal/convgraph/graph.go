package convgraph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/assistant-core/internal/coreerr"
	"github.com/haasonsaas/assistant-core/internal/llmclient"
	"github.com/haasonsaas/assistant-core/internal/statestore"
	"github.com/haasonsaas/assistant-core/internal/toolkit"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

// Default tuning values, overridable per-assistant.
const (
	DefaultHistoryLimit            = 50
	DefaultMemoryRetrieveLimit     = 5
	DefaultMemoryRetrieveThreshold = 0.6
	DefaultSummarizeRatio          = 0.7
	DefaultMessagesSinceSummaryN   = 30
	DefaultLLMCallTimeout          = 30 * time.Second
	DefaultToolCallTimeout         = 30 * time.Second
	maxSummarizeToolsRounds        = 8 // guards the should_summarize<->tools loop against runaway tool use
)

// Deps bundles every collaborator the graph's nodes call out to.
type Deps struct {
	Store        *statestore.Client
	LLM          llmclient.Client
	Memory       toolkit.MemorySearcher
	Checkpointer Checkpointer
	Logger       *slog.Logger
}

// Graph runs one conversation-turn invocation through a fixed node/edge
// table.
type Graph struct {
	deps Deps
}

// New constructs a Graph. A nil Checkpointer defaults to an in-memory one.
func New(deps Deps) *Graph {
	if deps.Checkpointer == nil {
		deps.Checkpointer = NewInMemoryCheckpointer()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Graph{deps: deps}
}

// Seed is the orchestrator-supplied starting point for a turn: either an
// incoming user message or a synthesized trigger notification.
type Seed struct {
	UserID           int64
	AssistantID      string
	CorrelationID    string
	InitialMessageID int64
	IncomingText     string
	TriggeringEvent  *coremodels.TriggeringEvent
}

// Run executes init_state → load_context → retrieve_memories →
// load_user_facts, then loops should_summarize ⇄ {summarize_history} →
// ensure_context_limit → assistant → {tools → (loop) | finalize_processing}
// until the assistant node produces a final text reply. tools is bound to
// assistantID's current tool set; the caller (orchestrator) materializes
// it per invocation via toolkit.Factory.
func (g *Graph) Run(ctx context.Context, assistant *coremodels.Assistant, tools *toolkit.Registry, seed Seed) (*coremodels.GraphState, error) {
	threadID := coremodels.ThreadID(seed.UserID, seed.AssistantID)

	state := &coremodels.GraphState{
		UserID:           seed.UserID,
		AssistantID:      seed.AssistantID,
		CorrelationID:    seed.CorrelationID,
		InitialMessageID: seed.InitialMessageID,
		TriggeringEvent:  seed.TriggeringEvent,
	}

	var err error
	if state, err = g.initState(state, assistant); err != nil {
		return state, err
	}
	if state, err = g.loadContext(ctx, state, assistant, seed); err != nil {
		return state, err
	}
	if state, err = g.retrieveMemories(ctx, state, assistant); err != nil {
		return state, err
	}
	if state, err = g.loadUserFacts(state, assistant); err != nil {
		return state, err
	}
	if err := g.deps.Checkpointer.Save(ctx, threadID, state); err != nil {
		g.deps.Logger.Warn("convgraph: checkpoint save failed", "thread_id", threadID, "error", err)
	}

	for round := 0; ; round++ {
		if round > maxSummarizeToolsRounds {
			state.ErrorFlag = true
			return state, coreerr.New(coreerr.GraphInvariant, "exceeded maximum summarize/tools rounds")
		}

		if g.shouldSummarize(state, assistant) {
			if state, err = g.summarizeHistory(ctx, state, assistant); err != nil {
				return state, err
			}
		}
		if state, err = g.ensureContextLimit(state, assistant); err != nil {
			return state, err
		}
		if state, err = g.assistantNode(ctx, state, assistant, tools); err != nil {
			state.ErrorFlag = true
			return state, err
		}
		if err := g.deps.Checkpointer.Save(ctx, threadID, state); err != nil {
			g.deps.Logger.Warn("convgraph: checkpoint save failed", "thread_id", threadID, "error", err)
		}

		last, ok := lastAssistantMessage(state.Messages)
		if !ok || len(last.ToolCalls) == 0 {
			break // tools_condition: no pending tool calls, route to finalize
		}
		if state, err = g.toolsNode(ctx, state, tools); err != nil {
			state.ErrorFlag = true
			return state, err
		}
		if err := g.deps.Checkpointer.Save(ctx, threadID, state); err != nil {
			g.deps.Logger.Warn("convgraph: checkpoint save failed", "thread_id", threadID, "error", err)
		}
		// tools → should_summarize (loop edge)
	}

	if err := g.finalizeProcessing(ctx, state); err != nil {
		return state, err
	}
	if ch, ok := g.deps.Checkpointer.(*InMemoryCheckpointer); ok {
		ch.Drop(threadID)
	}
	return state, nil
}

// FinalText returns the assistant's final reply text for Run's returned
// state, the value the orchestrator publishes as an AssistantResponse.
func FinalText(state *coremodels.GraphState) string {
	last, ok := lastAssistantMessage(state.Messages)
	if !ok {
		return ""
	}
	return last.Content
}

func effective(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

func effectiveF(f, def float64) float64 {
	if f <= 0 {
		return def
	}
	return f
}

func effectiveD(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func invalidAssistant(assistant *coremodels.Assistant) error {
	if assistant == nil {
		return fmt.Errorf("convgraph: assistant is required")
	}
	return nil
}
