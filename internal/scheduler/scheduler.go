// Package scheduler is CORE's reminder reconciliation loop: it
// periodically diffs the active Reminder set against an in-process time
// wheel, fires due ones as Trigger envelopes on stream_in, and retires
// entries that are no longer active. The tick loop and JobExecution
// bookkeeping follow the usual cron-runner shape, generalized from
// static job-config entries to live, state-store-backed Reminder rows,
// with github.com/robfig/cron/v3 expressions evaluated per-reminder
// against its own IANA timezone.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/assistant-core/internal/clock"
	"github.com/haasonsaas/assistant-core/internal/statestore"
	"github.com/haasonsaas/assistant-core/internal/stream"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

// DefaultPollInterval is the reconcile-loop cadence.
const DefaultPollInterval = 30 * time.Second

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Deps bundles the scheduler's collaborators.
type Deps struct {
	Store        *statestore.Client
	StreamIn     *stream.Client
	PollInterval time.Duration
	Clock        clock.Clock
	Logger       *slog.Logger
}

// tracked is one reminder's in-memory scheduling state.
type tracked struct {
	reminder coremodels.Reminder
	schedule cron.Schedule // nil for one-shot
	nextRun  time.Time
}

// Scheduler holds the in-process time wheel and reconciles it against the
// state store's active-reminders view on every tick.
type Scheduler struct {
	deps Deps

	mu      sync.Mutex
	tracked map[string]*tracked
}

// New constructs a Scheduler.
func New(deps Deps) *Scheduler {
	if deps.PollInterval <= 0 {
		deps.PollInterval = DefaultPollInterval
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Scheduler{deps: deps, tracked: make(map[string]*tracked)}
}

// Run reconciles on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.deps.StreamIn.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("scheduler: ensure group: %w", err)
	}
	for {
		if err := s.Reconcile(ctx); err != nil {
			s.deps.Logger.Error("scheduler: reconcile failed", "error", err)
		}
		if err := s.deps.Clock.Sleep(ctx, s.deps.PollInterval); err != nil {
			return nil // context cancelled
		}
	}
}

// Reconcile loads every active reminder, updates the time wheel to match
// (dropping entries no longer active, adding newly-active ones, computing
// each one's next fire time), then fires everything due.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	active, err := s.deps.Store.ListActiveReminders(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list active reminders: %w", err)
	}
	now := s.deps.Clock.Now()

	s.mu.Lock()
	seen := make(map[string]bool, len(active))
	for _, r := range active {
		seen[r.ID] = true
		existing, ok := s.tracked[r.ID]
		if ok && existing.reminder.Status == r.Status && sameSchedule(existing.reminder, r) {
			existing.reminder = r
			continue
		}
		t, err := newTracked(r, now)
		if err != nil {
			s.deps.Logger.Warn("scheduler: skipping unschedulable reminder", "reminder_id", r.ID, "error", err)
			continue
		}
		s.tracked[r.ID] = t
	}
	for id := range s.tracked {
		if !seen[id] {
			delete(s.tracked, id) // cancel-on-no-longer-active
		}
	}
	due := make([]*tracked, 0)
	for _, t := range s.tracked {
		if !t.nextRun.After(now) {
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		s.fire(ctx, t, now)
	}
	return nil
}

func sameSchedule(a, b coremodels.Reminder) bool {
	if a.Type != b.Type {
		return false
	}
	if a.Type == coremodels.ReminderOneShot {
		return timeEqual(a.TriggerAt, b.TriggerAt)
	}
	return a.CronExpression == b.CronExpression && a.Timezone == b.Timezone
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func newTracked(r coremodels.Reminder, now time.Time) (*tracked, error) {
	switch r.Type {
	case coremodels.ReminderOneShot:
		if r.TriggerAt == nil {
			return nil, fmt.Errorf("one_shot reminder missing trigger_at")
		}
		return &tracked{reminder: r, nextRun: *r.TriggerAt}, nil
	case coremodels.ReminderRecurring:
		loc := time.UTC
		if r.Timezone != "" {
			l, err := time.LoadLocation(r.Timezone)
			if err != nil {
				return nil, fmt.Errorf("invalid timezone %q: %w", r.Timezone, err)
			}
			loc = l
		}
		sched, err := cronParser.Parse(r.CronExpression)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", r.CronExpression, err)
		}
		next := sched.Next(now.In(loc))
		return &tracked{reminder: r, schedule: sched, nextRun: next}, nil
	default:
		return nil, fmt.Errorf("unknown reminder type %q", r.Type)
	}
}

// fire emits a Trigger envelope for t, records a JobExecution, and either
// transitions a one-shot reminder to completed or recomputes a recurring
// one's next fire time.
func (s *Scheduler) fire(ctx context.Context, t *tracked, now time.Time) {
	log := s.deps.Logger.With("reminder_id", t.reminder.ID, "user_id", t.reminder.UserID)

	exec := &coremodels.JobExecution{
		ID: uuid.NewString(), JobID: t.reminder.ID, JobType: "reminder",
		ScheduledAt: t.nextRun, Status: coremodels.JobExecutionRunning,
	}
	started := now
	exec.StartedAt = &started
	if err := s.deps.Store.CreateJobExecution(ctx, exec); err != nil {
		log.Warn("scheduler: create job execution failed", "error", err)
	}

	env := coremodels.InboundEnvelope{
		Kind: coremodels.EnvelopeTrigger, UserID: t.reminder.UserID,
		TriggerType: coremodels.TriggerReminderFired, Source: "scheduler",
		Payload: t.reminder.Payload, Timestamp: now,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		s.finish(ctx, exec, now, fmt.Errorf("encode trigger envelope: %w", err))
		log.Error("scheduler: encode trigger envelope failed", "error", err)
		return
	}
	if _, err := s.deps.StreamIn.Add(ctx, payload); err != nil {
		s.finish(ctx, exec, now, err)
		log.Error("scheduler: publish trigger failed", "error", err)
		return
	}
	s.finish(ctx, exec, now, nil)

	fired := now
	t.reminder.LastTriggeredAt = &fired

	switch t.reminder.Type {
	case coremodels.ReminderOneShot:
		if err := s.deps.Store.UpdateReminderStatus(ctx, t.reminder.ID, coremodels.ReminderCompleted); err != nil {
			log.Error("scheduler: mark reminder completed failed", "error", err)
		}
		s.mu.Lock()
		delete(s.tracked, t.reminder.ID)
		s.mu.Unlock()
	case coremodels.ReminderRecurring:
		loc := time.UTC
		if t.reminder.Timezone != "" {
			if l, err := time.LoadLocation(t.reminder.Timezone); err == nil {
				loc = l
			}
		}
		s.mu.Lock()
		t.nextRun = t.schedule.Next(now.In(loc))
		s.mu.Unlock()
	}
}

func (s *Scheduler) finish(ctx context.Context, exec *coremodels.JobExecution, finishedAt time.Time, err error) {
	exec.FinishedAt = &finishedAt
	if exec.StartedAt != nil {
		exec.Duration = finishedAt.Sub(*exec.StartedAt)
	}
	if err != nil {
		exec.Status = coremodels.JobExecutionFailed
		exec.Error = err.Error()
	} else {
		exec.Status = coremodels.JobExecutionCompleted
	}
	if uerr := s.deps.Store.UpdateJobExecution(ctx, exec); uerr != nil {
		s.deps.Logger.Warn("scheduler: update job execution failed", "job_execution_id", exec.ID, "error", uerr)
	}
}
