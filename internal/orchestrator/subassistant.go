package orchestrator

import (
	"context"
	"fmt"

	"github.com/haasonsaas/assistant-core/internal/convgraph"
	"github.com/haasonsaas/assistant-core/internal/toolkit"
)

// InvokeTurn implements toolkit.SubAssistantInvoker: it runs delegateID's
// conversation graph as a brand-new invocation scoped to (delegateID,
// userID), seeded only with message. The delegate never receives or
// mutates the calling assistant's GraphState because convgraph.Graph.Run
// always starts from a fresh state keyed by its own thread id
// (user_<id>_assistant_<delegateID>), distinct from the parent's.
func (o *Orchestrator) InvokeTurn(ctx context.Context, delegateID string, userID int64, message string) (string, error) {
	assistant, err := o.loadAssistant(ctx, delegateID)
	if err != nil {
		return "", err
	}
	if assistant == nil {
		return "", fmt.Errorf("orchestrator: sub-assistant invocation: assistant not found: %s", delegateID)
	}

	defs, err := o.loadToolDefs(ctx, assistant.ID)
	if err != nil {
		return "", err
	}
	tools := o.deps.ToolFactory.Build(ctx, defs, toolkit.InvocationContext{UserID: userID, AssistantID: assistant.ID})

	state, err := o.deps.Graph.Run(ctx, assistant, tools, convgraph.Seed{
		UserID: userID, AssistantID: assistant.ID, IncomingText: message,
	})
	if err != nil {
		return "", fmt.Errorf("orchestrator: sub-assistant invocation failed: %w", err)
	}
	return convgraph.FinalText(state), nil
}
