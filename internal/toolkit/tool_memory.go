package toolkit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/assistant-core/internal/coreerr"
	"github.com/haasonsaas/assistant-core/internal/statestore"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

// memorySaveTool lets the assistant explicitly persist a fact, separate
// from the background memory-extraction batch worker.
type memorySaveTool struct {
	baseTool
	store  *statestore.Client
	memory MemorySearcher
	userID int64
}

type memorySaveInput struct {
	Text       string `json:"text"`
	Type       string `json:"memory_type,omitempty"`
	Importance int    `json:"importance,omitempty"`
}

func (t *memorySaveTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in memorySaveInput
	if err := t.validate(args, &in); err != nil {
		return "", err
	}
	memType := coremodels.MemoryTypeUserFact
	if in.Type != "" {
		memType = coremodels.MemoryType(in.Type)
	}
	importance := in.Importance
	if importance == 0 {
		importance = 5
	}

	embedding, err := t.memory.Embed(ctx, in.Text)
	if err != nil {
		return "", &coreerr.ToolError{ToolName: t.Name(), Code: coreerr.ToolCodeNetworkError, Message: "embed failed", Cause: err}
	}

	m := &coremodels.Memory{
		UserID:     t.userID,
		Text:       in.Text,
		Type:       memType,
		Importance: importance,
		Embedding:  embedding,
	}
	created, err := t.store.CreateMemory(ctx, m)
	if err != nil {
		return "", wrapStoreErr(t.Name(), "save memory", err)
	}
	return fmt.Sprintf("saved memory %d", created.ID), nil
}

// memorySearchTool retrieves the invoking user's memories by similarity,
// the same collaborator the graph's retrieve_memories node uses (spec
// §4.E), exposed explicitly so the assistant can look something up mid-turn.
type memorySearchTool struct {
	baseTool
	memory MemorySearcher
	userID int64
}

type memorySearchInput struct {
	Query     string  `json:"query"`
	Limit     int     `json:"limit,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

func (t *memorySearchTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in memorySearchInput
	if err := t.validate(args, &in); err != nil {
		return "", err
	}
	limit := in.Limit
	if limit == 0 {
		limit = 5
	}
	threshold := in.Threshold
	if threshold == 0 {
		threshold = 0.7
	}
	results, err := t.memory.Search(ctx, t.userID, in.Query, limit, threshold)
	if err != nil {
		return "", &coreerr.ToolError{ToolName: t.Name(), Code: coreerr.ToolCodeNetworkError, Message: "search failed", Cause: err}
	}
	if len(results) == 0 {
		return "no matching memories", nil
	}
	out, err := json.Marshal(results)
	if err != nil {
		return "", &coreerr.ToolError{ToolName: t.Name(), Code: coreerr.ToolCodeUnexpectedError, Message: err.Error()}
	}
	return string(out), nil
}
