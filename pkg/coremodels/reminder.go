package coremodels

import (
	"encoding/json"
	"time"
)

// ReminderType distinguishes a single future fire from a recurring schedule.
type ReminderType string

const (
	ReminderOneShot   ReminderType = "one_shot"
	ReminderRecurring ReminderType = "recurring"
)

// ReminderStatus is the closed lifecycle of a Reminder.
type ReminderStatus string

const (
	ReminderActive    ReminderStatus = "active"
	ReminderPaused    ReminderStatus = "paused"
	ReminderCompleted ReminderStatus = "completed"
	ReminderCancelled ReminderStatus = "cancelled"
)

// Reminder is a user-owned rule producing scheduled Trigger events.
//
// Exactly one of (TriggerAt) or (CronExpression, Timezone) is set, selected
// by Type.
type Reminder struct {
	ID                  string          `json:"id"`
	UserID              int64           `json:"user_id"`
	OwningAssistantID   string          `json:"owning_assistant_id"`
	CreatingAssistantID string          `json:"creating_assistant_id"`
	Type                ReminderType    `json:"type"`
	TriggerAt           *time.Time      `json:"trigger_at,omitempty"`
	CronExpression      string          `json:"cron_expression,omitempty"`
	Timezone            string          `json:"timezone,omitempty"`
	Payload             json.RawMessage `json:"payload,omitempty"`
	Status              ReminderStatus  `json:"status"`
	LastTriggeredAt     *time.Time      `json:"last_triggered_at,omitempty"`
}

// JobExecutionStatus is the closed lifecycle of a JobExecution record.
type JobExecutionStatus string

const (
	JobExecutionScheduled JobExecutionStatus = "scheduled"
	JobExecutionRunning   JobExecutionStatus = "running"
	JobExecutionCompleted JobExecutionStatus = "completed"
	JobExecutionFailed    JobExecutionStatus = "failed"
)

// JobExecution is an append-only observability record of one scheduler
// fire or batch-worker run.
type JobExecution struct {
	ID          string             `json:"id"`
	JobID       string             `json:"job_id"`
	JobType     string             `json:"job_type"`
	ScheduledAt time.Time          `json:"scheduled_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
	Status      JobExecutionStatus `json:"status"`
	Duration    time.Duration      `json:"duration,omitempty"`
	Result      string             `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
	Traceback   string             `json:"traceback,omitempty"`
}
