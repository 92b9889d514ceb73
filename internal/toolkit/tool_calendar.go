package toolkit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/assistant-core/internal/coreerr"
	"github.com/haasonsaas/assistant-core/internal/statestore"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

// calendarCreateTool creates a Google Calendar event for the invoking
// user, matching original_source/google_calendar_service/src/api/routes.py
// create_event's POST /events/{user_id}.
type calendarCreateTool struct {
	baseTool
	store  *statestore.Client
	userID int64
}

type calendarCreateInput struct {
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Timezone    string `json:"timezone,omitempty"`
}

func (t *calendarCreateTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in calendarCreateInput
	if err := t.validate(args, &in); err != nil {
		return "", err
	}
	ev := &coremodels.CalendarEvent{
		Summary:     in.Summary,
		Description: in.Description,
		Location:    in.Location,
		Start:       coremodels.CalendarEventTime{DateTime: in.Start, TimeZone: in.Timezone},
		End:         coremodels.CalendarEventTime{DateTime: in.End, TimeZone: in.Timezone},
	}
	created, err := t.store.CreateCalendarEvent(ctx, t.userID, ev)
	if err != nil {
		return "", wrapStoreErr(t.Name(), "create calendar event", err)
	}
	return fmt.Sprintf("created event %q (id %s)", created.Summary, created.ID), nil
}

// calendarListTool lists upcoming events in a window, matching the
// calendar service's GET /events/{user_id}?time_min=&time_max=.
type calendarListTool struct {
	baseTool
	store  *statestore.Client
	userID int64
}

type calendarListInput struct {
	TimeMin string `json:"time_min,omitempty"`
	TimeMax string `json:"time_max,omitempty"`
}

func (t *calendarListTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in calendarListInput
	if err := t.validate(args, &in); err != nil {
		return "", err
	}
	events, err := t.store.ListCalendarEvents(ctx, t.userID, in.TimeMin, in.TimeMax)
	if err != nil {
		return "", wrapStoreErr(t.Name(), "list calendar events", err)
	}
	if len(events) == 0 {
		return "no events found", nil
	}
	out, err := json.Marshal(events)
	if err != nil {
		return "", &coreerr.ToolError{ToolName: t.Name(), Code: coreerr.ToolCodeUnexpectedError, Message: err.Error()}
	}
	return string(out), nil
}
