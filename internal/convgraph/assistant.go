package convgraph

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/assistant-core/internal/coreerr"
	"github.com/haasonsaas/assistant-core/internal/llmclient"
	"github.com/haasonsaas/assistant-core/internal/toolkit"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

// maxConcurrentToolCalls bounds the tools node's fan-out.
const maxConcurrentToolCalls = 4

// summarizeHistory asks the model to compress every body message older
// than the most recent turn into a new running summary, replacing them in
// state with a single history_summary GraphMessage and recording which
// persisted message ids the summary now covers (finalize_processing marks
// them MessageStatusSummarized).
func (g *Graph) summarizeHistory(ctx context.Context, state *coremodels.GraphState, assistant *coremodels.Assistant) (*coremodels.GraphState, error) {
	next := state.Clone()
	systemPrompt, userFacts, body := splitLeading(next.Messages)

	if len(body) <= 1 {
		return next, nil // nothing old enough to fold in
	}
	// A trailing run of tool_responses is kept together with the assistant
	// message that requested them, so no tool pair is split.
	cut := len(body) - 1
	for cut > 0 && body[cut].Kind == coremodels.GraphMsgToolResponse {
		cut--
	}
	if cut == 0 {
		return next, nil
	}
	keep := body[cut:]
	toFold := body[:cut]

	turn := llmclient.Turn{
		System: "Summarize the following conversation history into a concise running " +
			"summary that preserves facts, decisions, and open threads a secretary " +
			"assistant would need to continue the conversation. Prior summary, if " +
			"any, is given first and must be folded in, not discarded.",
		Messages: renderSummarizeMessages(next.CurrentSummaryText, toFold),
	}
	reply, err := g.deps.LLM.Complete(ctx, turn)
	if err != nil {
		return next, coreerr.Wrap(coreerr.TransientNetwork, "convgraph: summarize_history: llm call failed", err)
	}

	next.CurrentSummaryText = reply.Text
	summaryMsg := coremodels.GraphMessage{
		Kind: coremodels.GraphMsgHistorySummary, Name: coremodels.HistorySummaryName, Content: reply.Text,
	}
	next.Messages = assemble(systemPrompt, userFacts, append([]coremodels.GraphMessage{summaryMsg}, keep...))

	var covered int64
	ids := make([]int64, 0, len(toFold))
	for _, m := range toFold {
		if m.DBID == 0 {
			continue
		}
		ids = append(ids, m.DBID)
		if m.DBID > covered {
			covered = m.DBID
		}
	}
	next.NewlySummarizedMessageIDs = append(next.NewlySummarizedMessageIDs, ids...)

	if covered > 0 {
		if _, err := g.deps.Store.CreateSummary(ctx, &coremodels.Summary{
			UserID: next.UserID, AssistantID: next.AssistantID,
			SummaryText: reply.Text, LastMessageIDCovered: covered,
		}); err != nil {
			return next, fmt.Errorf("convgraph: summarize_history: create summary: %w", err)
		}
	}

	next.CurrentTokenCount = totalTokens(next.Messages)
	return next, nil
}

func renderSummarizeMessages(priorSummary string, body []coremodels.GraphMessage) []llmclient.Message {
	out := make([]llmclient.Message, 0, len(body)+1)
	if priorSummary != "" {
		out = append(out, llmclient.Message{Role: llmclient.RoleUser, Content: "Prior summary:\n" + priorSummary})
	}
	for _, m := range body {
		switch m.Kind {
		case coremodels.GraphMsgHuman:
			out = append(out, llmclient.Message{Role: llmclient.RoleUser, Content: m.Content})
		case coremodels.GraphMsgAssistant:
			out = append(out, llmclient.Message{Role: llmclient.RoleAssistant, Content: m.Content})
		case coremodels.GraphMsgToolResponse:
			out = append(out, llmclient.Message{Role: llmclient.RoleUser, Content: "[tool result] " + m.Content})
		}
	}
	return out
}

// ensureContextLimit drops the oldest body messages (after system_prompt,
// user_facts, and the retained summary) until the approximate token count
// fits within the assistant's configured budget. It is a hard backstop
// behind summarize_history, never a replacement for it.
func (g *Graph) ensureContextLimit(state *coremodels.GraphState, assistant *coremodels.Assistant) (*coremodels.GraphState, error) {
	limit := assistant.LLMContextSize
	if limit <= 0 {
		return state, nil
	}
	next := state.Clone()
	if totalTokens(next.Messages) <= limit {
		return next, nil
	}

	systemPrompt, userFacts, body := splitLeading(next.Messages)
	var summary *coremodels.GraphMessage
	if len(body) > 0 && body[0].Kind == coremodels.GraphMsgHistorySummary {
		cp := body[0]
		summary = &cp
		body = body[1:]
	}

	fixed := 0
	if systemPrompt != nil {
		fixed += estimateTokens(*systemPrompt)
	}
	if userFacts != nil {
		fixed += estimateTokens(*userFacts)
	}
	if summary != nil {
		fixed += estimateTokens(*summary)
	}

	for len(body) > 1 && fixed+sumTokens(body) > limit {
		body = body[1:]
	}

	rebuilt := body
	if summary != nil {
		rebuilt = append([]coremodels.GraphMessage{*summary}, body...)
	}
	next.Messages = assemble(systemPrompt, userFacts, rebuilt)
	next.CurrentTokenCount = totalTokens(next.Messages)
	return next, nil
}

func sumTokens(msgs []coremodels.GraphMessage) int {
	n := 0
	for _, m := range msgs {
		n += estimateTokens(m)
	}
	return n
}

// assistantNode renders state.Messages into an llmclient.Turn, advertises
// every registered tool, invokes the model, and appends the reply as a
// new GraphMsgAssistant message (with ToolCalls set when the model asked
// to use tools).
func (g *Graph) assistantNode(ctx context.Context, state *coremodels.GraphState, assistant *coremodels.Assistant, tools *toolkit.Registry) (*coremodels.GraphState, error) {
	next := state.Clone()
	systemPrompt, userFacts, body := splitLeading(next.Messages)

	turn := llmclient.Turn{
		Messages: renderTurnMessages(next.Messages),
		Tools:    renderToolSpecs(tools),
	}
	if systemPrompt != nil {
		turn.System = systemPrompt.Content
	}

	reply, err := g.deps.LLM.Complete(ctx, turn)
	if err != nil {
		return next, coreerr.Wrap(coreerr.TransientNetwork, "convgraph: assistant: llm call failed", err)
	}

	assistantMsg := coremodels.GraphMessage{Kind: coremodels.GraphMsgAssistant, Content: reply.Text}
	for _, tc := range reply.ToolCalls {
		assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, coremodels.ToolCallRef{
			ID: tc.ID, ToolName: tc.Name, Arguments: string(tc.Arguments),
		})
	}

	reduced, rerr := Reduce(body, []coremodels.GraphMessage{assistantMsg}, g.deps.Logger)
	if rerr != nil {
		return next, rerr
	}
	next.Messages = assemble(systemPrompt, userFacts, reduced)
	next.CurrentTokenCount = totalTokens(next.Messages)

	if err := g.persistAssistantMessage(ctx, next, assistantMsg); err != nil {
		return next, err
	}
	return next, nil
}

func (g *Graph) persistAssistantMessage(ctx context.Context, state *coremodels.GraphState, gm coremodels.GraphMessage) error {
	m := toPersistedMessage(state.UserID, state.AssistantID, gm)
	m.Status = coremodels.MessageStatusProcessed
	created, err := g.deps.Store.CreateMessage(ctx, &m)
	if err != nil {
		return fmt.Errorf("convgraph: assistant: persist reply: %w", err)
	}
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Kind == coremodels.GraphMsgAssistant && state.Messages[i].DBID == 0 {
			state.Messages[i].DBID = created.ID
			break
		}
	}
	return nil
}

func renderTurnMessages(msgs []coremodels.GraphMessage) []llmclient.Message {
	out := make([]llmclient.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Kind {
		case coremodels.GraphMsgUserFacts, coremodels.GraphMsgHistorySummary:
			out = append(out, llmclient.Message{Role: llmclient.RoleUser, Content: "[" + m.Name + "] " + m.Content})
		case coremodels.GraphMsgHuman:
			out = append(out, llmclient.Message{Role: llmclient.RoleUser, Content: m.Content})
		case coremodels.GraphMsgAssistant:
			lm := llmclient.Message{Role: llmclient.RoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				lm.ToolCalls = append(lm.ToolCalls, llmclient.ToolCall{ID: tc.ID, Name: tc.ToolName, Arguments: json.RawMessage(tc.Arguments)})
			}
			out = append(out, lm)
		case coremodels.GraphMsgToolResponse:
			out = append(out, llmclient.Message{
				Role: llmclient.RoleUser,
				ToolResults: []llmclient.ToolResult{{ToolCallID: m.ToolCallID, Content: m.Content}},
			})
		}
	}
	return out
}

func renderToolSpecs(tools *toolkit.Registry) []llmclient.ToolSpec {
	if tools == nil {
		return nil
	}
	all := tools.All()
	specs := make([]llmclient.ToolSpec, 0, len(all))
	for _, t := range all {
		specs = append(specs, llmclient.ToolSpec{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return specs
}

// toolsNode executes every pending tool call on the last assistant
// message concurrently (bounded by maxConcurrentToolCalls), persists each
// resulting tool_response, and folds them back into state via Reduce. A
// tool whose name is not registered, or whose Execute call fails, still
// produces a tool_response — carrying the error text — rather than
// aborting the turn: tool failures are surfaced as content, never failed
// invocations of the graph.
func (g *Graph) toolsNode(ctx context.Context, state *coremodels.GraphState, tools *toolkit.Registry) (*coremodels.GraphState, error) {
	next := state.Clone()
	last, ok := lastAssistantMessage(next.Messages)
	if !ok || len(last.ToolCalls) == 0 {
		return next, nil
	}

	results := make([]coremodels.GraphMessage, len(last.ToolCalls))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(maxConcurrentToolCalls)

	for i, call := range last.ToolCalls {
		i, call := i, call
		grp.Go(func() error {
			results[i] = g.executeToolCall(gctx, tools, call)
			return nil
		})
	}
	_ = grp.Wait() // executeToolCall never returns an error itself; it encodes failures into content

	for _, r := range results {
		m := toPersistedMessage(next.UserID, next.AssistantID, r)
		m.Status = coremodels.MessageStatusProcessed
		created, err := g.deps.Store.CreateMessage(ctx, &m)
		if err != nil {
			return next, fmt.Errorf("convgraph: tools: persist tool_response: %w", err)
		}
		r.DBID = created.ID
		systemPrompt, userFacts, body := splitLeading(next.Messages)
		reduced, rerr := Reduce(body, []coremodels.GraphMessage{r}, g.deps.Logger)
		if rerr != nil {
			return next, rerr
		}
		next.Messages = assemble(systemPrompt, userFacts, reduced)
	}
	next.CurrentTokenCount = totalTokens(next.Messages)
	return next, nil
}

func (g *Graph) executeToolCall(ctx context.Context, tools *toolkit.Registry, call coremodels.ToolCallRef) coremodels.GraphMessage {
	tool, ok := tools.Get(call.ToolName)
	if !ok {
		return coremodels.GraphMessage{
			Kind: coremodels.GraphMsgToolResponse, ToolCallID: call.ID,
			Content: fmt.Sprintf(`{"error":"unknown tool %q"}`, call.ToolName),
		}
	}
	out, err := tool.Execute(ctx, json.RawMessage(call.Arguments))
	if err != nil {
		return coremodels.GraphMessage{
			Kind: coremodels.GraphMsgToolResponse, ToolCallID: call.ID,
			Content: fmt.Sprintf(`{"error":%q}`, err.Error()),
		}
	}
	return coremodels.GraphMessage{Kind: coremodels.GraphMsgToolResponse, ToolCallID: call.ID, Content: out}
}
