package convgraph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/assistant-core/internal/llmclient"
	"github.com/haasonsaas/assistant-core/internal/statestore"
	"github.com/haasonsaas/assistant-core/internal/toolkit"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

// fakeLLM is a scripted llmclient.Client: it returns the queued replies in
// order, one per Complete call, so a test can drive a tool-call round trip
// deterministically.
type fakeLLM struct {
	replies []llmclient.Reply
	calls   int
}

func (f *fakeLLM) Complete(_ context.Context, _ llmclient.Turn) (llmclient.Reply, error) {
	r := f.replies[f.calls]
	f.calls++
	return r, nil
}

// fakeTool always answers with a fixed string, recording invocation count.
type fakeTool struct {
	name string
	hits int32
}

func (t *fakeTool) Name() string           { return t.name }
func (t *fakeTool) Description() string    { return "fake tool for tests" }
func (t *fakeTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (t *fakeTool) Execute(_ context.Context, _ json.RawMessage) (string, error) {
	atomic.AddInt32(&t.hits, 1)
	return "12:00 UTC", nil
}

// newTestStore spins up an in-memory REST backend covering exactly the
// endpoints the conversation graph's nodes call, with no existing summary,
// no prior messages, and no user facts — the "first turn ever" shape.
func newTestStore(t *testing.T) *statestore.Client {
	t.Helper()
	var nextID int64
	mux := http.NewServeMux()
	mux.HandleFunc("/summaries/latest", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[]`))
		case http.MethodPost:
			nextID++
			var m coremodels.Message
			_ = json.NewDecoder(r.Body).Decode(&m)
			m.ID = nextID
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(m)
		}
	})
	mux.HandleFunc("/messages/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/users/1/facts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/summaries", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(coremodels.Summary{ID: 1})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return statestore.New(srv.URL, statestore.WithHTTPClient(srv.Client()))
}

func testAssistant() *coremodels.Assistant {
	return &coremodels.Assistant{
		ID:                 "asst-1",
		SystemInstructions: "You are a helpful secretary.",
		LLMContextSize:     100000,
		ContextWindowSize:  100000,
		SummarizeRatio:     0.9,
		HistoryLimit:       50,
	}
}

func TestRunSimpleTurnProducesFinalText(t *testing.T) {
	store := newTestStore(t)
	llm := &fakeLLM{replies: []llmclient.Reply{{Text: "Hello! How can I help?"}}}
	g := New(Deps{Store: store, LLM: llm})

	state, err := g.Run(context.Background(), testAssistant(), toolkit.NewRegistry(), Seed{
		UserID: 1, AssistantID: "asst-1", IncomingText: "hi there",
	})
	require.NoError(t, err)
	require.Equal(t, "Hello! How can I help?", FinalText(state))
	require.False(t, state.ErrorFlag)
}

func TestRunExecutesToolCallThenFinalizes(t *testing.T) {
	store := newTestStore(t)
	llm := &fakeLLM{replies: []llmclient.Reply{
		{ToolCalls: []llmclient.ToolCall{{ID: "call_1", Name: "get_time", Arguments: json.RawMessage(`{}`)}}},
		{Text: "It's 12:00 UTC."},
	}}
	registry := toolkit.NewRegistry()
	tool := &fakeTool{name: "get_time"}
	registry.Register(tool)

	g := New(Deps{Store: store, LLM: llm})
	state, err := g.Run(context.Background(), testAssistant(), registry, Seed{
		UserID: 1, AssistantID: "asst-1", IncomingText: "what time is it?",
	})
	require.NoError(t, err)
	require.Equal(t, "It's 12:00 UTC.", FinalText(state))
	require.EqualValues(t, 1, tool.hits)

	found := false
	for _, m := range state.Messages {
		if m.Kind == coremodels.GraphMsgToolResponse && strings.Contains(m.Content, "12:00") {
			found = true
		}
	}
	require.True(t, found, "expected a persisted tool_response carrying the tool's output")
}

func TestRunUnknownToolSurfacesErrorAsContent(t *testing.T) {
	store := newTestStore(t)
	llm := &fakeLLM{replies: []llmclient.Reply{
		{ToolCalls: []llmclient.ToolCall{{ID: "call_1", Name: "does_not_exist", Arguments: json.RawMessage(`{}`)}}},
		{Text: "Sorry, I couldn't do that."},
	}}
	g := New(Deps{Store: store, LLM: llm})

	state, err := g.Run(context.Background(), testAssistant(), toolkit.NewRegistry(), Seed{
		UserID: 1, AssistantID: "asst-1", IncomingText: "do the thing",
	})
	require.NoError(t, err)
	require.Equal(t, "Sorry, I couldn't do that.", FinalText(state))

	found := false
	for _, m := range state.Messages {
		if m.Kind == coremodels.GraphMsgToolResponse && strings.Contains(m.Content, "unknown tool") {
			found = true
		}
	}
	require.True(t, found, "expected the unknown tool's error surfaced as tool_response content")
}
