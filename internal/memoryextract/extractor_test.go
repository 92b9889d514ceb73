package memoryextract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/assistant-core/internal/llmclient"
	"github.com/haasonsaas/assistant-core/internal/statestore"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

type fakeBatch struct {
	mu      sync.Mutex
	results map[string][]llmclient.BatchResult // providerBatchID -> results
	seq     int
}

func (f *fakeBatch) SubmitBatch(_ context.Context, requests []llmclient.BatchRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := "batch-fixed"
	results := make([]llmclient.BatchResult, 0, len(requests))
	for _, r := range requests {
		results = append(results, llmclient.BatchResult{
			CustomID: r.CustomID, Status: llmclient.BatchRequestSucceeded,
			Reply: llmclient.Reply{Text: `[{"text":"likes espresso","memory_type":"preference","importance":5}]`},
		})
	}
	if f.results == nil {
		f.results = make(map[string][]llmclient.BatchResult)
	}
	f.results[id] = results
	return id, nil
}

func (f *fakeBatch) PollBatch(_ context.Context, _ string) (llmclient.BatchStatus, error) {
	return llmclient.BatchEnded, nil
}

func (f *fakeBatch) CollectBatch(_ context.Context, providerBatchID string) ([]llmclient.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[providerBatchID], nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeServer struct {
	mu              sync.Mutex
	batchJobs       map[string]coremodels.BatchJob
	watermarkCalled bool
	memoriesCreated int
}

func newFakeServer(t *testing.T) (*fakeServer, *statestore.Client) {
	t.Helper()
	fs := &fakeServer{batchJobs: make(map[string]coremodels.BatchJob)}
	mux := http.NewServeMux()
	mux.HandleFunc("/settings/global", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(coremodels.GlobalSettings{MemoryExtractionEnabled: true, MemoryExtractionMinMessages: 1})
	})
	mux.HandleFunc("/conversations/extraction_candidates", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]coremodels.ConversationRef{
			{UserID: 1, AssistantID: "asst-1", LastExtractedMessageID: 0, UnextractedMessageCount: 2},
		})
	})
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]coremodels.Message{
			{ID: 1, UserID: 1, AssistantID: "asst-1", Role: coremodels.RoleHuman, Content: "I love espresso"},
			{ID: 2, UserID: 1, AssistantID: "asst-1", Role: coremodels.RoleAssistant, Content: "Noted!"},
		})
	})
	mux.HandleFunc("/users/1/facts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/batch_jobs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var j coremodels.BatchJob
			_ = json.NewDecoder(r.Body).Decode(&j)
			fs.mu.Lock()
			fs.batchJobs[j.ID] = j
			fs.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			_, _ = w.Write([]byte(`[]`))
		}
	})
	mux.HandleFunc("/batch_jobs/", func(w http.ResponseWriter, r *http.Request) {
		var j coremodels.BatchJob
		_ = json.NewDecoder(r.Body).Decode(&j)
		fs.mu.Lock()
		fs.batchJobs[j.ID] = j
		fs.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/memories/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`)) // no existing near-duplicate
	})
	mux.HandleFunc("/memories", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			fs.mu.Lock()
			fs.memoriesCreated++
			fs.mu.Unlock()
			var m coremodels.Memory
			_ = json.NewDecoder(r.Body).Decode(&m)
			m.ID = 1
			_ = json.NewEncoder(w).Encode(m)
		case http.MethodGet:
			_, _ = w.Write([]byte(`[]`))
		}
	})
	mux.HandleFunc("/conversations/1/asst-1/watermark", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.watermarkCalled = true
		fs.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fs, statestore.New(srv.URL, statestore.WithHTTPClient(srv.Client()))
}

func TestRunOnceExtractsAndPersistsFacts(t *testing.T) {
	fs, store := newFakeServer(t)
	batch := &fakeBatch{}
	ex := New(Deps{Store: store, Batch: batch, Embedder: fakeEmbedder{}})

	require.NoError(t, ex.RunOnce(context.Background()))

	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.Equal(t, 1, fs.memoriesCreated)
	require.True(t, fs.watermarkCalled)
	require.Len(t, fs.batchJobs, 1)
	for _, j := range fs.batchJobs {
		require.Equal(t, coremodels.BatchJobStatusCompleted, j.Status)
		require.Equal(t, 1, j.ExtractedCount)
	}
}

func TestRunOnceSkipsWhenExtractionDisabled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/settings/global", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(coremodels.GlobalSettings{MemoryExtractionEnabled: false})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	store := statestore.New(srv.URL, statestore.WithHTTPClient(srv.Client()))

	batch := &fakeBatch{}
	ex := New(Deps{Store: store, Batch: batch, Embedder: fakeEmbedder{}})
	require.NoError(t, ex.RunOnce(context.Background()))
	require.Zero(t, batch.seq)
}

func TestParseFactsExtractsJSONArrayFromSurroundingText(t *testing.T) {
	facts, err := parseFacts("Here you go:\n[{\"text\":\"a\",\"memory_type\":\"user_fact\",\"importance\":3}]\nDone.")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	require.Equal(t, "a", facts[0].Text)
}

func TestParseUserIDFromConversationKey(t *testing.T) {
	id, err := parseUserID("42:asst-7")
	require.NoError(t, err)
	require.EqualValues(t, 42, id)

	_, err = parseUserID("malformed")
	require.Error(t, err)
}
