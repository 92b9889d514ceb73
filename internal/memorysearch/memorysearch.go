// Package memorysearch provides the production toolkit.MemorySearcher used
// by both the conversation graph's retrieve_memories node and the
// memory-search/memory-save tools: embed the query text, then delegate the
// similarity search itself to the state store.
package memorysearch

import (
	"context"
	"fmt"

	"github.com/haasonsaas/assistant-core/internal/memoryextract"
	"github.com/haasonsaas/assistant-core/internal/statestore"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

// Client implements toolkit.MemorySearcher.
type Client struct {
	store    *statestore.Client
	embedder memoryextract.Embedder
}

// New constructs a Client.
func New(store *statestore.Client, embedder memoryextract.Embedder) *Client {
	return &Client{store: store, embedder: embedder}
}

// Search embeds query and asks the state store for the user's top-matching
// memories above threshold.
func (c *Client) Search(ctx context.Context, userID int64, query string, limit int, threshold float64) ([]coremodels.ScoredMemory, error) {
	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memorysearch: embed query: %w", err)
	}
	return c.store.SearchMemories(ctx, userID, embedding, limit, threshold)
}

// Embed exposes the raw embedding step for callers (e.g. the memory-save
// tool) that need a vector without a similarity search.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.embedder.Embed(ctx, text)
}
