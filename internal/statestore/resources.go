package statestore

import (
	"context"
	"fmt"
	"net/http"

	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

// --- users ---

func (c *Client) GetUser(ctx context.Context, userID int64) (*coremodels.User, error) {
	var u coremodels.User
	if err := c.request(ctx, "users", http.MethodGet, fmt.Sprintf("/users/%d", userID), nil, &u, true); err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, nil
	}
	return &u, nil
}

func (c *Client) GetActiveSecretary(ctx context.Context, userID int64) (*coremodels.SecretaryAssignment, error) {
	var a coremodels.SecretaryAssignment
	if err := c.request(ctx, "user_secretary", http.MethodGet, fmt.Sprintf("/users/%d/secretary", userID), nil, &a, true); err != nil {
		return nil, err
	}
	if a.SecretaryID == "" {
		return nil, nil
	}
	return &a, nil
}

// --- assistants ---

func (c *Client) GetAssistant(ctx context.Context, assistantID string) (*coremodels.Assistant, error) {
	var a coremodels.Assistant
	if err := c.request(ctx, "assistants", http.MethodGet, "/assistants/"+assistantID, nil, &a, true); err != nil {
		return nil, err
	}
	if a.ID == "" {
		return nil, nil
	}
	return &a, nil
}

// --- tools ---

func (c *Client) ListToolDefinitions(ctx context.Context, assistantID string) ([]coremodels.ToolDefinition, error) {
	var defs []coremodels.ToolDefinition
	err := c.request(ctx, "tools", http.MethodGet, "/assistants/"+assistantID+"/tools", nil, &defs, false)
	return defs, err
}

// --- messages ---

// ListProcessedMessagesAfter loads messages for (userID, assistantID) with
// status=processed, id > afterID, ascending, capped at limit — the
// load_context query shape the graph's context-loading node issues.
func (c *Client) ListProcessedMessagesAfter(ctx context.Context, userID int64, assistantID string, afterID int64, limit int) ([]coremodels.Message, error) {
	var msgs []coremodels.Message
	path := fmt.Sprintf("/messages?user_id=%d&assistant_id=%s&status=processed&id_gt=%d&sort_by=id&sort_order=asc&limit=%d",
		userID, assistantID, afterID, limit)
	err := c.request(ctx, "messages", http.MethodGet, path, nil, &msgs, false)
	return msgs, err
}

func (c *Client) CreateMessage(ctx context.Context, m *coremodels.Message) (*coremodels.Message, error) {
	var created coremodels.Message
	if err := c.request(ctx, "messages", http.MethodPost, "/messages", m, &created, false); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateMessageStatus patches a message's status and, when provided, its
// summary_id link (the finalize_processing node's side effect).
func (c *Client) UpdateMessageStatus(ctx context.Context, messageID int64, status coremodels.MessageStatus, summaryID *int64) error {
	body := map[string]any{"status": status}
	if summaryID != nil {
		body["summary_id"] = *summaryID
	}
	return c.request(ctx, "messages", http.MethodPatch, fmt.Sprintf("/messages/%d", messageID), body, nil, false)
}

// --- summaries ---

func (c *Client) GetLatestSummary(ctx context.Context, userID int64, assistantID string) (*coremodels.Summary, error) {
	var s coremodels.Summary
	path := fmt.Sprintf("/summaries/latest?user_id=%d&assistant_id=%s", userID, assistantID)
	if err := c.request(ctx, "summaries", http.MethodGet, path, nil, &s, true); err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (c *Client) CreateSummary(ctx context.Context, s *coremodels.Summary) (*coremodels.Summary, error) {
	var created coremodels.Summary
	if err := c.request(ctx, "summaries", http.MethodPost, "/summaries", s, &created, false); err != nil {
		return nil, err
	}
	return &created, nil
}

// --- user_facts ---

func (c *Client) ListUserFacts(ctx context.Context, userID int64) ([]coremodels.UserFact, error) {
	var facts []coremodels.UserFact
	err := c.request(ctx, "user_facts", http.MethodGet, fmt.Sprintf("/users/%d/facts", userID), nil, &facts, false)
	return facts, err
}

// --- memories ---

func (c *Client) CreateMemory(ctx context.Context, m *coremodels.Memory) (*coremodels.Memory, error) {
	var created coremodels.Memory
	if err := c.request(ctx, "memories", http.MethodPost, "/memories", m, &created, false); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) UpdateMemory(ctx context.Context, m *coremodels.Memory) error {
	return c.request(ctx, "memories", http.MethodPatch, fmt.Sprintf("/memories/%d", m.ID), m, nil, false)
}

func (c *Client) DeleteMemory(ctx context.Context, memoryID int64) error {
	return c.request(ctx, "memories", http.MethodDelete, fmt.Sprintf("/memories/%d", memoryID), nil, nil, false)
}

func (c *Client) ListMemoriesForUser(ctx context.Context, userID int64, assistantID *string) ([]coremodels.Memory, error) {
	var mems []coremodels.Memory
	path := fmt.Sprintf("/memories?user_id=%d", userID)
	if assistantID != nil {
		path += "&assistant_id=" + *assistantID
	}
	err := c.request(ctx, "memories", http.MethodGet, path, nil, &mems, false)
	return mems, err
}

func (c *Client) SearchMemories(ctx context.Context, userID int64, embedding []float32, limit int, threshold float64) ([]coremodels.ScoredMemory, error) {
	var scored []coremodels.ScoredMemory
	body := map[string]any{"user_id": userID, "embedding": embedding, "limit": limit, "threshold": threshold}
	err := c.request(ctx, "memories", http.MethodPost, "/memories/search", body, &scored, false)
	return scored, err
}

// --- reminders ---

func (c *Client) ListActiveReminders(ctx context.Context) ([]coremodels.Reminder, error) {
	var reminders []coremodels.Reminder
	err := c.request(ctx, "reminders", http.MethodGet, "/reminders?status=active", nil, &reminders, false)
	return reminders, err
}

func (c *Client) CreateReminder(ctx context.Context, r *coremodels.Reminder) (*coremodels.Reminder, error) {
	var created coremodels.Reminder
	if err := c.request(ctx, "reminders", http.MethodPost, "/reminders", r, &created, false); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) ListRemindersForUser(ctx context.Context, userID int64) ([]coremodels.Reminder, error) {
	var reminders []coremodels.Reminder
	err := c.request(ctx, "reminders", http.MethodGet, fmt.Sprintf("/reminders?user_id=%d", userID), nil, &reminders, false)
	return reminders, err
}

func (c *Client) UpdateReminderStatus(ctx context.Context, reminderID string, status coremodels.ReminderStatus) error {
	return c.request(ctx, "reminders", http.MethodPatch, "/reminders/"+reminderID, map[string]any{"status": status}, nil, false)
}

func (c *Client) DeleteReminder(ctx context.Context, reminderID string) error {
	return c.request(ctx, "reminders", http.MethodDelete, "/reminders/"+reminderID, nil, nil, false)
}

// --- global_settings ---

func (c *Client) GetGlobalSettings(ctx context.Context) (*coremodels.GlobalSettings, error) {
	var s coremodels.GlobalSettings
	if err := c.request(ctx, "global_settings", http.MethodGet, "/settings/global", nil, &s, true); err != nil {
		return nil, err
	}
	return &s, nil
}

// --- job_executions ---

func (c *Client) CreateJobExecution(ctx context.Context, j *coremodels.JobExecution) error {
	return c.request(ctx, "job_executions", http.MethodPost, "/job_executions", j, nil, false)
}

func (c *Client) UpdateJobExecution(ctx context.Context, j *coremodels.JobExecution) error {
	return c.request(ctx, "job_executions", http.MethodPatch, "/job_executions/"+j.ID, j, nil, false)
}

// --- queue_logs ---

func (c *Client) CreateQueueLog(ctx context.Context, q *coremodels.QueueLogEntry) error {
	return c.request(ctx, "queue_logs", http.MethodPost, "/queue_logs", q, nil, false)
}

// --- conversations / batch_jobs ---
//
// Backs the memory extractor's watermarked conversation enumeration and
// restart-safe batch tracking.

func (c *Client) ListExtractionCandidates(ctx context.Context, minMessages int) ([]coremodels.ConversationRef, error) {
	var refs []coremodels.ConversationRef
	path := fmt.Sprintf("/conversations/extraction_candidates?min_messages=%d", minMessages)
	err := c.request(ctx, "conversations", http.MethodGet, path, nil, &refs, false)
	return refs, err
}

func (c *Client) UpdateExtractionWatermark(ctx context.Context, userID int64, assistantID string, lastMessageID int64) error {
	path := fmt.Sprintf("/conversations/%d/%s/watermark", userID, assistantID)
	return c.request(ctx, "conversations", http.MethodPatch, path, map[string]any{"last_extracted_message_id": lastMessageID}, nil, false)
}

func (c *Client) CreateBatchJob(ctx context.Context, j *coremodels.BatchJob) error {
	return c.request(ctx, "batch_jobs", http.MethodPost, "/batch_jobs", j, nil, false)
}

func (c *Client) UpdateBatchJob(ctx context.Context, j *coremodels.BatchJob) error {
	return c.request(ctx, "batch_jobs", http.MethodPatch, "/batch_jobs/"+j.ID, j, nil, false)
}

func (c *Client) ListUnfinishedBatchJobs(ctx context.Context) ([]coremodels.BatchJob, error) {
	var jobs []coremodels.BatchJob
	err := c.request(ctx, "batch_jobs", http.MethodGet, "/batch_jobs?unfinished=true", nil, &jobs, false)
	return jobs, err
}

// --- calendar ---
//
// The calendar microservice (original_source/google_calendar_service) sits
// behind the same state-store gateway; CORE never touches the OAuth flow,
// it only exchanges the simplified event shape.

func (c *Client) ListCalendarEvents(ctx context.Context, userID int64, timeMin, timeMax string) ([]coremodels.CalendarEvent, error) {
	path := fmt.Sprintf("/calendar/events/%d", userID)
	if timeMin != "" || timeMax != "" {
		path += fmt.Sprintf("?time_min=%s&time_max=%s", timeMin, timeMax)
	}
	var events []coremodels.CalendarEvent
	err := c.request(ctx, "calendar", http.MethodGet, path, nil, &events, false)
	return events, err
}

func (c *Client) CreateCalendarEvent(ctx context.Context, userID int64, ev *coremodels.CalendarEvent) (*coremodels.CalendarEvent, error) {
	var created coremodels.CalendarEvent
	if err := c.request(ctx, "calendar", http.MethodPost, fmt.Sprintf("/calendar/events/%d", userID), ev, &created, false); err != nil {
		return nil, err
	}
	return &created, nil
}
