// Package convgraph implements CORE's conversation graph: the state
// machine that composes history load, system-prompt injection, memory
// retrieval, context-size enforcement, LLM invocation, tool execution,
// and message-persistence finalization over a coremodels.GraphState.
// Nodes are plain functions over a shared state struct wired through a
// fixed edge table, rather than a general-purpose graph library.
package convgraph

import (
	"log/slog"

	"github.com/haasonsaas/assistant-core/internal/coreerr"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

// Reduce merges a node's proposed message delta into current, enforcing:
//
//  1. drop any non-summary SystemMessage variant (system prompts and fact
//     blocks are re-injected by dedicated nodes, never carried forward);
//  2. keep at most one history-summary SystemMessage;
//  3. drop a tool_response whose nearest preceding message that is not
//     itself a tool_response is not an assistant message carrying a
//     matching tool_call — a *trailing*
//     orphan is additionally reported via warn for operator visibility;
//  4. place the retained summary message at the front of the result.
//
// Reduce is pure and idempotent: Reduce(Reduce(msgs, delta), nil) ==
// Reduce(msgs, delta). A trailing orphan tool_response (the newest message
// in the result) is an unrecoverable GraphInvariant error — the caller
// aborts the run rather than silently dropping a turn the LLM is waiting
// to see answered.
func Reduce(current []coremodels.GraphMessage, delta []coremodels.GraphMessage, warn *slog.Logger) ([]coremodels.GraphMessage, error) {
	merged := make([]coremodels.GraphMessage, 0, len(current)+len(delta))
	merged = append(merged, current...)
	merged = append(merged, delta...)

	var summary *coremodels.GraphMessage
	filtered := make([]coremodels.GraphMessage, 0, len(merged))

	for _, m := range merged {
		switch m.Kind {
		case coremodels.GraphMsgSystemPrompt, coremodels.GraphMsgUserFacts:
			// Rule 1: dropped; re-injected by init_state/load_user_facts.
			continue
		case coremodels.GraphMsgHistorySummary:
			// Rule 2: last one wins.
			cp := m
			summary = &cp
			continue
		default:
			filtered = append(filtered, m)
		}
	}

	// Rule 3: orphan tool_response detection.
	pruned := make([]coremodels.GraphMessage, 0, len(filtered))
	var trailingOrphan *coremodels.GraphMessage
	for i, m := range filtered {
		if m.Kind != coremodels.GraphMsgToolResponse {
			pruned = append(pruned, m)
			continue
		}
		if hasMatchingToolCall(pruned, m.ToolCallID) {
			pruned = append(pruned, m)
			continue
		}
		isTrailing := i == len(filtered)-1
		if isTrailing {
			cp := m
			trailingOrphan = &cp
			if warn != nil {
				warn.Error("convgraph: reducer found trailing orphan tool_response",
					"tool_call_id", m.ToolCallID)
			}
			continue
		}
		if warn != nil {
			warn.Warn("convgraph: reducer dropped orphan tool_response",
				"tool_call_id", m.ToolCallID)
		}
	}

	// Rule 4: summary, if any, goes first.
	out := pruned
	if summary != nil {
		out = make([]coremodels.GraphMessage, 0, len(pruned)+1)
		out = append(out, *summary)
		out = append(out, pruned...)
	}

	if trailingOrphan != nil {
		return out, coreerr.New(coreerr.GraphInvariant, "trailing orphan tool_response for tool_call_id "+trailingOrphan.ToolCallID)
	}
	return out, nil
}

// hasMatchingToolCall reports whether the last message in msgs, skipping
// back over tool_responses already accepted, is an assistant message whose
// tool_calls include toolCallID — the check rule 3 requires, so every
// response to one multi-call assistant message is matched against it.
func hasMatchingToolCall(msgs []coremodels.GraphMessage, toolCallID string) bool {
	i := len(msgs) - 1
	for i >= 0 && msgs[i].Kind == coremodels.GraphMsgToolResponse {
		i--
	}
	if i < 0 {
		return false
	}
	last := msgs[i]
	if last.Kind != coremodels.GraphMsgAssistant {
		return false
	}
	for _, tc := range last.ToolCalls {
		if tc.ID == toolCallID {
			return true
		}
	}
	return false
}
