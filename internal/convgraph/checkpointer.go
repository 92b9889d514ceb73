package convgraph

import (
	"context"
	"sync"

	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

// Checkpointer persists (or in-memories) a GraphState between node steps,
// keyed by thread id, so an interrupted run is resumable.
type Checkpointer interface {
	Save(ctx context.Context, threadID string, state *coremodels.GraphState) error
	Load(ctx context.Context, threadID string) (*coremodels.GraphState, bool, error)
}

// InMemoryCheckpointer is the test/default implementation: a thread-safe
// map, nothing durable beyond the process lifetime.
type InMemoryCheckpointer struct {
	mu    sync.Mutex
	state map[string]*coremodels.GraphState
}

// NewInMemoryCheckpointer returns an empty InMemoryCheckpointer.
func NewInMemoryCheckpointer() *InMemoryCheckpointer {
	return &InMemoryCheckpointer{state: make(map[string]*coremodels.GraphState)}
}

func (c *InMemoryCheckpointer) Save(_ context.Context, threadID string, state *coremodels.GraphState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state[threadID] = state.Clone()
	return nil
}

func (c *InMemoryCheckpointer) Load(_ context.Context, threadID string) (*coremodels.GraphState, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.state[threadID]
	if !ok {
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

// Drop removes a thread's checkpoint; Run calls it right after
// finalize_processing once a run completes so a stale partial state is
// never resumed.
func (c *InMemoryCheckpointer) Drop(threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.state, threadID)
}
