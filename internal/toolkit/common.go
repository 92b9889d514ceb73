package toolkit

import (
	"errors"

	"github.com/haasonsaas/assistant-core/internal/coreerr"
	"github.com/haasonsaas/assistant-core/internal/statestore"
)

// wrapStoreErr turns a state-store (or calendar-gateway) call failure into
// the ToolError shape every Execute must return, classifying network vs.
// API failures into the right ToolErrorCode.
func wrapStoreErr(toolName, action string, err error) error {
	var sErr *statestore.Error
	code := coreerr.ToolCodeUnexpectedError
	if errors.As(err, &sErr) {
		switch sErr.Kind {
		case statestore.ErrKindNetwork, statestore.ErrKindCircuitOpen:
			code = coreerr.ToolCodeNetworkError
		default:
			code = coreerr.ToolCodeAPIError
		}
	}
	return &coreerr.ToolError{ToolName: toolName, Code: code, Message: action + " failed", Cause: err}
}
