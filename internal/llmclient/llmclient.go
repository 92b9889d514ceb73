// Package llmclient is the LLM-invocation collaborator the conversation
// graph's assistant and summarize_history nodes call through. It's
// simplified to a single non-streaming turn since the graph consumes one
// complete reply per node step rather than incremental tokens.
package llmclient

import (
	"context"
	"encoding/json"
)

// ToolSpec is one tool definition offered to the model, shaped for direct
// JSON-Schema reuse from a coremodels.ToolDefinition.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// ToolCall is a single tool invocation the model requested.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Turn is one request to the model: a system prompt plus the ordered
// conversation messages and available tools.
type Turn struct {
	System   string
	Messages []Message
	Tools    []ToolSpec
}

// MessageRole mirrors the two roles Anthropic's Messages API accepts;
// CORE's own richer GraphMessage kinds are flattened into this shape by
// the graph's assistant node before the call.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one already-rendered conversation turn.
type Message struct {
	Role        MessageRole
	Content     string
	ToolCalls   []ToolCall // set on an assistant message that requested tools
	ToolResults []ToolResult
}

// ToolResult carries a tool_response being replayed back to the model as
// part of history.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Reply is the model's response to a Turn: either final text, or one or
// more tool calls to execute before the graph loops back.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
}

// Client is the capability the graph depends on; Anthropic is the only
// production implementation but the interface keeps the graph free of any
// concrete SDK.
type Client interface {
	Complete(ctx context.Context, turn Turn) (Reply, error)
}
