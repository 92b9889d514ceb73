package convgraph

import (
	"context"
	"fmt"

	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

// initState prepends the assistant's rendered system instructions as a
// system_prompt GraphMessage at position 0, unless one is already there.
func (g *Graph) initState(state *coremodels.GraphState, assistant *coremodels.Assistant) (*coremodels.GraphState, error) {
	if err := invalidAssistant(assistant); err != nil {
		return state, err
	}
	next := state.Clone()
	if len(next.Messages) > 0 && next.Messages[0].Kind == coremodels.GraphMsgSystemPrompt {
		return next, nil
	}
	prompt := coremodels.GraphMessage{
		Kind: coremodels.GraphMsgSystemPrompt,
		Name: coremodels.SystemPromptName,
		Content: assistant.SystemInstructions,
	}
	next.Messages = append([]coremodels.GraphMessage{prompt}, next.Messages...)
	return next, nil
}

// loadContext loads the latest Summary and the processed Messages after
// it (or the most recent window, capped at HistoryLimit, if there is no
// summary), converts each to its role-typed GraphMessage, appends the
// incoming turn, and loads the user's durable facts into PendingFacts.
func (g *Graph) loadContext(ctx context.Context, state *coremodels.GraphState, assistant *coremodels.Assistant, seed Seed) (*coremodels.GraphState, error) {
	next := state.Clone()

	systemPrompt, userFacts, body := splitLeading(next.Messages)

	var afterID int64
	summary, err := g.deps.Store.GetLatestSummary(ctx, next.UserID, next.AssistantID)
	if err != nil {
		return next, fmt.Errorf("convgraph: load_context: get latest summary: %w", err)
	}
	var summaryMsg *coremodels.GraphMessage
	if summary != nil {
		afterID = summary.LastMessageIDCovered
		next.CurrentSummaryText = summary.SummaryText
		summaryMsg = &coremodels.GraphMessage{
			Kind: coremodels.GraphMsgHistorySummary, Name: coremodels.HistorySummaryName, Content: summary.SummaryText,
		}
	}

	limit := effective(assistant.HistoryLimit, DefaultHistoryLimit)
	history, err := g.deps.Store.ListProcessedMessagesAfter(ctx, next.UserID, next.AssistantID, afterID, limit)
	if err != nil {
		return next, fmt.Errorf("convgraph: load_context: list messages: %w", err)
	}
	// Without a summary, page forward so the window ends at the newest
	// processed message rather than the oldest.
	for page := history; summary == nil && len(page) == limit; {
		page, err = g.deps.Store.ListProcessedMessagesAfter(ctx, next.UserID, next.AssistantID, page[len(page)-1].ID, limit)
		if err != nil {
			return next, fmt.Errorf("convgraph: load_context: list messages: %w", err)
		}
		history = append(history, page...)
		if len(history) > limit {
			history = history[len(history)-limit:]
		}
	}

	historyMsgs := make([]coremodels.GraphMessage, 0, len(history)+2)
	if summaryMsg != nil {
		historyMsgs = append(historyMsgs, *summaryMsg)
	}
	for _, m := range history {
		historyMsgs = append(historyMsgs, toGraphMessage(m))
	}
	_ = body // the reducer recomputes body from scratch on this node: history replaces it

	incoming := incomingMessage(seed)
	historyMsgs = append(historyMsgs, incoming)

	reduced, rerr := Reduce(nil, historyMsgs, g.deps.Logger)
	if rerr != nil {
		return next, rerr
	}
	next.Messages = assemble(systemPrompt, userFacts, reduced)

	facts, err := g.deps.Store.ListUserFacts(ctx, next.UserID)
	if err != nil {
		return next, fmt.Errorf("convgraph: load_context: list user facts: %w", err)
	}
	pending := make([]coremodels.PendingFact, 0, len(facts))
	for _, f := range facts {
		pending = append(pending, coremodels.PendingFact{ID: f.ID, Text: f.Text})
	}
	next.PendingFacts = pending
	next.CurrentTokenCount = totalTokens(next.Messages)
	return next, nil
}

// incomingMessage builds the turn the user (or a firing reminder)
// contributes, appended after history by load_context. A trigger is
// rendered as a human-kind turn describing the event rather than a
// tool_response, since a tool_response with no preceding tool_call would
// violate the reducer's pair invariant on the very first reduce.
func incomingMessage(seed Seed) coremodels.GraphMessage {
	if seed.TriggeringEvent != nil {
		return coremodels.GraphMessage{
			Kind:    coremodels.GraphMsgHuman,
			Content: triggerNarration(seed.TriggeringEvent),
		}
	}
	return coremodels.GraphMessage{Kind: coremodels.GraphMsgHuman, Content: seed.IncomingText}
}

func triggerNarration(ev *coremodels.TriggeringEvent) string {
	switch ev.TriggerType {
	case string(coremodels.TriggerReminderFired):
		return "[system] A reminder you set has fired. Let the user know."
	case string(coremodels.TriggerGoogleAuthDone):
		return "[system] Google Calendar authorization completed successfully."
	default:
		return "[system] A scheduled event fired: " + ev.TriggerType
	}
}

// retrieveMemories asks the memory collaborator for similar memories to
// the incoming text. Failures never block the turn — they collapse to an
// empty result.
func (g *Graph) retrieveMemories(ctx context.Context, state *coremodels.GraphState, assistant *coremodels.Assistant) (*coremodels.GraphState, error) {
	next := state.Clone()
	incoming := incomingText(next)
	if incoming == "" || g.deps.Memory == nil {
		return next, nil
	}
	limit := effective(assistant.MemoryRetrieveLimit, DefaultMemoryRetrieveLimit)
	threshold := effectiveF(assistant.MemoryRetrieveThreshold, DefaultMemoryRetrieveThreshold)
	results, err := g.deps.Memory.Search(ctx, next.UserID, incoming, limit, threshold)
	if err != nil {
		g.deps.Logger.Warn("convgraph: retrieve_memories failed, continuing without memories", "error", err)
		next.RelevantMemories = nil
		return next, nil
	}
	next.RelevantMemories = results
	return next, nil
}

func incomingText(state *coremodels.GraphState) string {
	if len(state.Messages) == 0 {
		return ""
	}
	last := state.Messages[len(state.Messages)-1]
	if last.Kind == coremodels.GraphMsgHuman {
		return last.Content
	}
	return ""
}

// loadUserFacts renders PendingFacts as a single user_facts SystemMessage
// inserted immediately after system_prompt, replacing any prior one, and
// recomputes the token count.
func (g *Graph) loadUserFacts(state *coremodels.GraphState, assistant *coremodels.Assistant) (*coremodels.GraphState, error) {
	next := state.Clone()
	systemPrompt, _, body := splitLeading(next.Messages)

	var userFacts *coremodels.GraphMessage
	if len(next.PendingFacts) > 0 {
		userFacts = &coremodels.GraphMessage{
			Kind: coremodels.GraphMsgUserFacts, Name: coremodels.UserFactsName,
			Content: renderFacts(next.PendingFacts),
		}
	}
	next.Messages = assemble(systemPrompt, userFacts, body)
	next.CurrentTokenCount = totalTokens(next.Messages)
	return next, nil
}

func renderFacts(facts []coremodels.PendingFact) string {
	out := "Known facts about this user:\n"
	for _, f := range facts {
		out += "- " + f.Text + "\n"
	}
	return out
}

// shouldSummarize is the should_summarize predicate: true when the
// running token estimate exceeds context_window_size * summarize_ratio,
// or when more than N messages have accumulated since the last summary.
func (g *Graph) shouldSummarize(state *coremodels.GraphState, assistant *coremodels.Assistant) bool {
	windowSize := assistant.ContextWindowSize
	if windowSize <= 0 {
		windowSize = assistant.LLMContextSize
	}
	ratio := effectiveF(assistant.SummarizeRatio, DefaultSummarizeRatio)
	threshold := float64(windowSize) * ratio
	if threshold > 0 && float64(totalTokens(state.Messages)) > threshold {
		return true
	}
	n := effective(assistant.MessagesSinceSummaryLimit, DefaultMessagesSinceSummaryN)
	return messagesSinceSummary(state.Messages) > n
}

func messagesSinceSummary(msgs []coremodels.GraphMessage) int {
	count := 0
	for _, m := range msgs {
		if m.Kind == coremodels.GraphMsgHistorySummary {
			count = 0
			continue
		}
		if m.Kind == coremodels.GraphMsgSystemPrompt || m.Kind == coremodels.GraphMsgUserFacts {
			continue
		}
		count++
	}
	return count
}

// finalizeProcessing updates newly-summarized messages' status and links
// their summary_id, then marks the initiating message processed. Side
// effect only — it never touches state.Messages.
func (g *Graph) finalizeProcessing(ctx context.Context, state *coremodels.GraphState) error {
	if len(state.NewlySummarizedMessageIDs) > 0 {
		summary, err := g.deps.Store.GetLatestSummary(ctx, state.UserID, state.AssistantID)
		if err != nil {
			return fmt.Errorf("convgraph: finalize: get latest summary: %w", err)
		}
		var summaryID *int64
		if summary != nil {
			summaryID = &summary.ID
		}
		for _, id := range state.NewlySummarizedMessageIDs {
			if err := g.deps.Store.UpdateMessageStatus(ctx, id, coremodels.MessageStatusSummarized, summaryID); err != nil {
				return fmt.Errorf("convgraph: finalize: update summarized message %d: %w", id, err)
			}
		}
	}

	if state.InitialMessageID == 0 {
		return nil
	}
	status := coremodels.MessageStatusProcessed
	if state.ErrorFlag {
		status = coremodels.MessageStatusError
	}
	if err := g.deps.Store.UpdateMessageStatus(ctx, state.InitialMessageID, status, nil); err != nil {
		return fmt.Errorf("convgraph: finalize: update initial message %d: %w", state.InitialMessageID, err)
	}
	return nil
}
