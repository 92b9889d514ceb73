// Package toolkit is the Tool Registry & Factory: it turns a list of
// coremodels.ToolDefinition into invocable Tools scoped to one
// conversation turn.
package toolkit

import (
	"context"
	"encoding/json"
	"regexp"
)

// NamePattern is the tool-name validity rule.
var NamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Tool is one invocable capability exposed to the conversation graph's
// assistant node and executed by its tools node.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the tool's JSON Schema for input validation and for
	// advertising to the LLM provider as a function/tool definition.
	Schema() json.RawMessage
	// Execute validates args against the tool's schema, runs the tool, and
	// returns the text to surface as the tool_response content. A non-nil
	// error is always a *coreerr.ToolError; Execute must never panic.
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// InvocationContext carries the per-turn identity a materialized tool
// closes over: user id, assistant id, and correlation id.
type InvocationContext struct {
	UserID        int64
	AssistantID   string
	CorrelationID string
}
