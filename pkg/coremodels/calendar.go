package coremodels

// CalendarEventTime is the half of an event boundary the Google Calendar
// REST shape uses: an RFC3339 instant paired with the timezone it was
// entered in, matching original_source/google_calendar_service's
// EventCreate schema (start/end as {"dateTime", "timeZone"} maps).
type CalendarEventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

// CalendarEvent is the simplified event shape the calendar tools exchange
// with the external calendar collaborator. The Google Calendar OAuth flow
// is reached only through this contract and never implemented here.
type CalendarEvent struct {
	ID          string            `json:"id,omitempty"`
	Summary     string            `json:"summary"`
	Description string            `json:"description,omitempty"`
	Location    string            `json:"location,omitempty"`
	Start       CalendarEventTime `json:"start"`
	End         CalendarEventTime `json:"end"`
	HTMLLink    string            `json:"htmlLink,omitempty"`
	Status      string            `json:"status,omitempty"`
}
