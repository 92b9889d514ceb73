package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/haasonsaas/assistant-core/internal/coreerr"
	"github.com/haasonsaas/assistant-core/internal/statestore"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

// reminderCreateTool creates a one-shot or recurring reminder owned by the
// invoking user.
type reminderCreateTool struct {
	baseTool
	store       *statestore.Client
	userID      int64
	assistantID string
}

type reminderCreateInput struct {
	Type           string `json:"type"` // "one_shot" | "recurring"
	TriggerAt      string `json:"trigger_at,omitempty"`
	CronExpression string `json:"cron_expression,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
	Details        string `json:"details"`
}

func (t *reminderCreateTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in reminderCreateInput
	if err := t.validate(args, &in); err != nil {
		return "", err
	}

	r := &coremodels.Reminder{
		UserID:              t.userID,
		OwningAssistantID:   t.assistantID,
		CreatingAssistantID: t.assistantID,
		Status:              coremodels.ReminderActive,
		Payload:             json.RawMessage(fmt.Sprintf("{%q:%q}", "details", in.Details)),
	}

	switch in.Type {
	case string(coremodels.ReminderOneShot):
		if in.TriggerAt == "" {
			return "", &coreerr.ToolError{ToolName: t.Name(), Code: coreerr.ToolCodeInvalidInput, Message: "trigger_at is required for one_shot reminders"}
		}
		when, err := time.Parse(time.RFC3339, in.TriggerAt)
		if err != nil {
			return "", &coreerr.ToolError{ToolName: t.Name(), Code: coreerr.ToolCodeInvalidInput, Message: "trigger_at must be RFC3339: " + err.Error()}
		}
		r.Type = coremodels.ReminderOneShot
		r.TriggerAt = &when
	case string(coremodels.ReminderRecurring):
		if in.CronExpression == "" {
			return "", &coreerr.ToolError{ToolName: t.Name(), Code: coreerr.ToolCodeInvalidInput, Message: "cron_expression is required for recurring reminders"}
		}
		r.Type = coremodels.ReminderRecurring
		r.CronExpression = in.CronExpression
		r.Timezone = in.Timezone
		if r.Timezone == "" {
			r.Timezone = "UTC"
		}
	default:
		return "", &coreerr.ToolError{ToolName: t.Name(), Code: coreerr.ToolCodeInvalidInput, Message: "type must be one_shot or recurring"}
	}

	created, err := t.store.CreateReminder(ctx, r)
	if err != nil {
		return "", wrapStoreErr(t.Name(), "create reminder", err)
	}
	return fmt.Sprintf("created reminder %s", created.ID), nil
}

// reminderListTool lists the invoking user's reminders.
type reminderListTool struct {
	baseTool
	store  *statestore.Client
	userID int64
}

func (t *reminderListTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	if err := t.validate(args, nil); err != nil {
		return "", err
	}
	reminders, err := t.store.ListRemindersForUser(ctx, t.userID)
	if err != nil {
		return "", wrapStoreErr(t.Name(), "list reminders", err)
	}
	if len(reminders) == 0 {
		return "no reminders found", nil
	}
	out, err := json.Marshal(reminders)
	if err != nil {
		return "", &coreerr.ToolError{ToolName: t.Name(), Code: coreerr.ToolCodeUnexpectedError, Message: err.Error()}
	}
	return string(out), nil
}

// reminderDeleteTool cancels a reminder by id: a not-found reminder is a
// normal tool_response, not an error.
type reminderDeleteTool struct {
	baseTool
	store *statestore.Client
}

type reminderDeleteInput struct {
	ReminderID string `json:"reminder_id"`
}

func (t *reminderDeleteTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in reminderDeleteInput
	if err := t.validate(args, &in); err != nil {
		return "", err
	}
	if err := t.store.DeleteReminder(ctx, in.ReminderID); err != nil {
		var sErr *statestore.Error
		if errors.As(err, &sErr) && sErr.Status == http.StatusNotFound {
			return fmt.Sprintf("reminder %s not found", in.ReminderID), nil
		}
		return "", wrapStoreErr(t.Name(), "delete reminder", err)
	}
	return fmt.Sprintf("reminder %s cancelled", in.ReminderID), nil
}
