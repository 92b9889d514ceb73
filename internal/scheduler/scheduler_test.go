package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/assistant-core/internal/statestore"
	"github.com/haasonsaas/assistant-core/internal/stream"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

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

// fakeStore serves ListActiveReminders from an in-memory slice and records
// every status update, job-execution create/update call it receives.
type fakeStore struct {
	mu        sync.Mutex
	reminders []coremodels.Reminder
	statusLog []string
	execs     []coremodels.JobExecution
}

func (s *fakeStore) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/reminders", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(s.reminders)
	})
	mux.HandleFunc("/reminders/", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status coremodels.ReminderStatus `json:"status"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.statusLog = append(s.statusLog, string(body.Status))
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/job_executions", func(w http.ResponseWriter, r *http.Request) {
		var j coremodels.JobExecution
		_ = json.NewDecoder(r.Body).Decode(&j)
		s.mu.Lock()
		s.execs = append(s.execs, j)
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(j)
	})
	mux.HandleFunc("/job_executions/", func(w http.ResponseWriter, r *http.Request) {
		var j coremodels.JobExecution
		_ = json.NewDecoder(r.Body).Decode(&j)
		s.mu.Lock()
		s.execs = append(s.execs, j)
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func newFakeStore(t *testing.T, reminders []coremodels.Reminder) (*fakeStore, *statestore.Client) {
	t.Helper()
	fs := &fakeStore{reminders: reminders}
	srv := httptest.NewServer(fs.handler())
	t.Cleanup(srv.Close)
	return fs, statestore.New(srv.URL, statestore.WithHTTPClient(srv.Client()))
}

func TestReconcileFiresDueOneShotAndMarksCompleted(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	defer rdb.Del(ctx, "test:sched:in")

	due := time.Now().Add(-time.Minute)
	fs, store := newFakeStore(t, []coremodels.Reminder{
		{ID: "r1", UserID: 1, Type: coremodels.ReminderOneShot, TriggerAt: &due, Status: coremodels.ReminderActive},
	})
	in := stream.New(rdb, "test:sched:in", "schedgroup", "schedconsumer")
	require.NoError(t, in.EnsureGroup(ctx))

	s := New(Deps{Store: store, StreamIn: in})
	require.NoError(t, s.Reconcile(ctx))

	msg, err := in.Read(ctx, time.Second, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, msg)

	var env coremodels.InboundEnvelope
	require.NoError(t, json.Unmarshal(msg.Payload, &env))
	require.Equal(t, coremodels.EnvelopeTrigger, env.Kind)
	require.Equal(t, coremodels.TriggerReminderFired, env.TriggerType)
	require.EqualValues(t, 1, env.UserID)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.Contains(t, fs.statusLog, string(coremodels.ReminderCompleted))
	require.Len(t, fs.execs, 2) // created running, then updated completed

	s.mu.Lock()
	_, stillTracked := s.tracked["r1"]
	s.mu.Unlock()
	require.False(t, stillTracked)
}

func TestReconcileSkipsNotYetDueReminder(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	defer rdb.Del(ctx, "test:sched:in2")

	future := time.Now().Add(time.Hour)
	_, store := newFakeStore(t, []coremodels.Reminder{
		{ID: "r2", UserID: 1, Type: coremodels.ReminderOneShot, TriggerAt: &future, Status: coremodels.ReminderActive},
	})
	in := stream.New(rdb, "test:sched:in2", "schedgroup2", "schedconsumer2")
	require.NoError(t, in.EnsureGroup(ctx))

	s := New(Deps{Store: store, StreamIn: in})
	require.NoError(t, s.Reconcile(ctx))

	msg, err := in.Read(ctx, 200*time.Millisecond, time.Minute)
	require.NoError(t, err)
	require.Nil(t, msg)

	s.mu.Lock()
	_, tracked := s.tracked["r2"]
	s.mu.Unlock()
	require.True(t, tracked)
}

func TestReconcileDropsNoLongerActiveReminder(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	defer rdb.Del(ctx, "test:sched:in3")

	future := time.Now().Add(time.Hour)
	fs, store := newFakeStore(t, []coremodels.Reminder{
		{ID: "r3", UserID: 1, Type: coremodels.ReminderOneShot, TriggerAt: &future, Status: coremodels.ReminderActive},
	})
	in := stream.New(rdb, "test:sched:in3", "schedgroup3", "schedconsumer3")
	require.NoError(t, in.EnsureGroup(ctx))

	s := New(Deps{Store: store, StreamIn: in})
	require.NoError(t, s.Reconcile(ctx))
	s.mu.Lock()
	require.Len(t, s.tracked, 1)
	s.mu.Unlock()

	fs.mu.Lock()
	fs.reminders = nil
	fs.mu.Unlock()

	require.NoError(t, s.Reconcile(ctx))
	s.mu.Lock()
	require.Len(t, s.tracked, 0)
	s.mu.Unlock()
}

func TestReconcileRecurringReschedulesAfterFiring(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	defer rdb.Del(ctx, "test:sched:in4")

	_, store := newFakeStore(t, []coremodels.Reminder{
		{ID: "r4", UserID: 1, Type: coremodels.ReminderRecurring, CronExpression: "* * * * *", Timezone: "UTC", Status: coremodels.ReminderActive},
	})
	in := stream.New(rdb, "test:sched:in4", "schedgroup4", "schedconsumer4")
	require.NoError(t, in.EnsureGroup(ctx))

	s := New(Deps{Store: store, StreamIn: in})
	require.NoError(t, s.Reconcile(ctx))

	s.mu.Lock()
	tr, ok := s.tracked["r4"]
	s.mu.Unlock()
	require.True(t, ok)
	require.NotNil(t, tr.schedule)

	// Force it due, then reconcile again: it should fire and reschedule
	// rather than being dropped (unlike a one-shot).
	s.mu.Lock()
	tr.nextRun = time.Now().Add(-time.Second)
	s.mu.Unlock()

	require.NoError(t, s.Reconcile(ctx))

	msg, err := in.Read(ctx, time.Second, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, msg)

	s.mu.Lock()
	_, stillTracked := s.tracked["r4"]
	next := s.tracked["r4"]
	s.mu.Unlock()
	require.True(t, stillTracked)
	require.True(t, next.nextRun.After(time.Now().Add(-time.Minute)))
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	rdb := testRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer rdb.Del(context.Background(), "test:sched:in5")

	_, store := newFakeStore(t, nil)
	in := stream.New(rdb, "test:sched:in5", "schedgroup5", "schedconsumer5")

	s := New(Deps{Store: store, StreamIn: in, PollInterval: 10 * time.Millisecond})

	var done atomic.Bool
	go func() {
		_ = s.Run(ctx)
		done.Store(true)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)
	require.True(t, done.Load())
}
