package toolkit

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/assistant-core/internal/coreerr"
)

// subAssistantTool delegates execution to another Assistant's conversation
// graph, holding only that assistant's id and the caller's user id — the
// delegate must not see or mutate the parent's GraphState.
type subAssistantTool struct {
	baseTool
	invoker    SubAssistantInvoker
	delegateID string
	userID     int64
}

type subAssistantInput struct {
	Message string `json:"message"`
}

func (t *subAssistantTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in subAssistantInput
	if err := t.validate(args, &in); err != nil {
		return "", err
	}
	if in.Message == "" {
		return "", &coreerr.ToolError{ToolName: t.Name(), Code: coreerr.ToolCodeInvalidInput, Message: "message is required"}
	}
	reply, err := t.invoker.InvokeTurn(ctx, t.delegateID, t.userID, in.Message)
	if err != nil {
		return "", &coreerr.ToolError{ToolName: t.Name(), Code: coreerr.ToolCodeAPIError, Message: "sub-assistant invocation failed", Cause: err}
	}
	return reply, nil
}
