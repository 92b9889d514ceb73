package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/assistant-core/internal/convgraph"
	"github.com/haasonsaas/assistant-core/internal/coreerr"
	"github.com/haasonsaas/assistant-core/internal/llmclient"
	"github.com/haasonsaas/assistant-core/internal/statestore"
	"github.com/haasonsaas/assistant-core/internal/stream"
	"github.com/haasonsaas/assistant-core/internal/toolkit"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

type fakeLLM struct{ text string }

func (f *fakeLLM) Complete(_ context.Context, _ llmclient.Turn) (llmclient.Reply, error) {
	return llmclient.Reply{Text: f.text}, nil
}

func testRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	addr := os.Getenv("CORE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CORE_TEST_REDIS_ADDR not set, skipping redis integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis at %s unreachable: %v", addr, err)
	}
	return rdb
}

// testStateStore serves a minimal happy-path backend: user 1 has secretary
// "asst-1", a fully-configured Assistant record, no tool definitions.
func testStateStore(t *testing.T) *statestore.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/users/1/secretary", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(coremodels.SecretaryAssignment{ID: 1, UserID: 1, SecretaryID: "asst-1"})
	})
	mux.HandleFunc("/users/2/secretary", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/assistants/asst-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(coremodels.Assistant{
			ID: "asst-1", SystemInstructions: "be helpful", LLMContextSize: 100000,
			ContextWindowSize: 100000, SummarizeRatio: 0.9, HistoryLimit: 50,
		})
	})
	mux.HandleFunc("/assistants/asst-1/tools", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/summaries/latest", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`[]`))
		case http.MethodPost:
			var m coremodels.Message
			_ = json.NewDecoder(r.Body).Decode(&m)
			m.ID = 1
			_ = json.NewEncoder(w).Encode(m)
		}
	})
	mux.HandleFunc("/messages/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/users/1/facts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return statestore.New(srv.URL, statestore.WithHTTPClient(srv.Client()))
}

func newTestOrchestrator(t *testing.T, rdb redis.UniversalClient, reply string) (*Orchestrator, *stream.Client, *stream.Client) {
	t.Helper()
	in := stream.New(rdb, "test:orch:in", "orchgroup", "orchconsumer")
	out := stream.New(rdb, "test:orch:out", "outgroup", "outconsumer")
	require.NoError(t, in.EnsureGroup(context.Background()))
	require.NoError(t, out.EnsureGroup(context.Background()))

	store := testStateStore(t)
	factory := toolkit.NewFactory(toolkit.Deps{Store: store})
	graph := convgraph.New(convgraph.Deps{Store: store, LLM: &fakeLLM{text: reply}})

	o := New(Deps{
		StreamIn: in, StreamOut: out,
		Retry:       stream.NewRetryTracker(rdb, "test:orch", time.Minute),
		Store:       store,
		Graph:       graph,
		ToolFactory: factory,
	})
	return o, in, out
}

func TestProcessOneSuccessPublishesAndAcks(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	defer rdb.Del(ctx, "test:orch:in", "test:orch:in:dlq", "test:orch:out")

	o, in, out := newTestOrchestrator(t, rdb, "Hello there!")

	env := coremodels.InboundEnvelope{Kind: coremodels.EnvelopeUserMessage, UserID: 1, Content: "hi"}
	payload, err := json.Marshal(env)
	require.NoError(t, err)
	id, err := in.Add(ctx, payload)
	require.NoError(t, err)

	msg, err := in.Read(ctx, time.Second, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, id, msg.ID)

	o.processOne(ctx, msg)

	outMsg, err := out.Read(ctx, time.Second, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, outMsg)
	var resp coremodels.AssistantResponse
	require.NoError(t, json.Unmarshal(outMsg.Payload, &resp))
	require.Equal(t, coremodels.ResponseSuccess, resp.Status)
	require.Equal(t, "Hello there!", resp.Response)

	n, err := in.GetDLQLength(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestProcessOneNoSecretaryGoesStraightToDLQ(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	defer rdb.Del(ctx, "test:orch:in", "test:orch:in:dlq", "test:orch:out")

	o, in, _ := newTestOrchestrator(t, rdb, "unused")

	env := coremodels.InboundEnvelope{Kind: coremodels.EnvelopeUserMessage, UserID: 2, Content: "hi"}
	payload, err := json.Marshal(env)
	require.NoError(t, err)
	_, err = in.Add(ctx, payload)
	require.NoError(t, err)

	msg, err := in.Read(ctx, time.Second, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, msg)

	o.processOne(ctx, msg)

	n, err := in.GetDLQLength(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	entries, err := in.ReadDLQ(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "NoSecretaryAssigned", entries[0].ErrorType)
}

func TestHandleProcessingFailureDeadLettersOnThirdAttempt(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	defer rdb.Del(ctx, "test:orch:in", "test:orch:in:dlq", "test:orch:out")

	o, in, _ := newTestOrchestrator(t, rdb, "unused")

	env := coremodels.InboundEnvelope{Kind: coremodels.EnvelopeUserMessage, UserID: 1, Content: "hi"}
	payload, err := json.Marshal(env)
	require.NoError(t, err)
	_, err = in.Add(ctx, payload)
	require.NoError(t, err)

	msg, err := in.Read(ctx, time.Second, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, msg)

	cause := coreerr.New(coreerr.TransientNetwork, "simulated transient failure")

	o.handleProcessingFailure(ctx, msg, &env, cause)
	n, err := in.GetDLQLength(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "first failure must not dead-letter")

	o.handleProcessingFailure(ctx, msg, &env, cause)
	n, err = in.GetDLQLength(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "second failure must not dead-letter")

	o.handleProcessingFailure(ctx, msg, &env, cause)
	n, err = in.GetDLQLength(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n, "third failure must dead-letter")

	entries, err := in.ReadDLQ(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.EqualValues(t, 3, entries[0].RetryCount)
}

func TestProcessOneInvalidEnvelopeDeadLettersImmediately(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	defer rdb.Del(ctx, "test:orch:in", "test:orch:in:dlq", "test:orch:out")

	o, in, _ := newTestOrchestrator(t, rdb, "unused")

	_, err := in.Add(ctx, []byte(`not json`))
	require.NoError(t, err)
	msg, err := in.Read(ctx, time.Second, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, msg)

	o.processOne(ctx, msg)

	n, err := in.GetDLQLength(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
