package coremodels

import (
	"encoding/json"
	"fmt"
	"time"
)

// EnvelopeKind discriminates the inbound stream_in payload shapes.
type EnvelopeKind string

const (
	EnvelopeUserMessage EnvelopeKind = "user_message"
	EnvelopeTrigger     EnvelopeKind = "trigger"
)

// TriggerType is the closed set of system-trigger reasons.
type TriggerType string

const (
	TriggerReminderFired   TriggerType = "reminder_triggered"
	TriggerGoogleAuthDone  TriggerType = "google_auth_successful"
)

// InboundMetadata carries transport-specific context for a UserMessage.
type InboundMetadata struct {
	Username string `json:"username,omitempty"`
	ChatID   *int64 `json:"chat_id,omitempty"`
	Source   string `json:"source,omitempty"`
}

// InboundEnvelope is the UTF-8 JSON object appended to stream_in. Exactly
// one of the UserMessage or Trigger field groups is populated, selected by
// Kind.
type InboundEnvelope struct {
	Kind EnvelopeKind `json:"kind"`

	// UserMessage fields.
	UserID   int64           `json:"user_id"`
	Content  string          `json:"content,omitempty"`
	Metadata InboundMetadata `json:"metadata,omitempty"`

	// Trigger fields.
	TriggerType TriggerType     `json:"trigger_type,omitempty"`
	Source      string          `json:"source,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Validate enforces the "exactly one of" discipline and rejects payloads
// that satisfy neither known kind. Unknown JSON fields are rejected earlier,
// when the orchestrator decodes the payload.
func (e InboundEnvelope) Validate() error {
	switch e.Kind {
	case EnvelopeUserMessage:
		if e.UserID == 0 {
			return fmt.Errorf("user_message envelope missing user_id")
		}
		if e.TriggerType != "" || len(e.Payload) > 0 {
			return fmt.Errorf("user_message envelope carries trigger fields")
		}
	case EnvelopeTrigger:
		if e.UserID == 0 {
			return fmt.Errorf("trigger envelope missing user_id")
		}
		if e.TriggerType == "" {
			return fmt.Errorf("trigger envelope missing trigger_type")
		}
		if e.Content != "" {
			return fmt.Errorf("trigger envelope carries user_message content")
		}
	default:
		return fmt.Errorf("unknown envelope kind %q", e.Kind)
	}
	return nil
}

// ResponseStatus is the closed outcome of an AssistantResponse.
type ResponseStatus string

const (
	ResponseSuccess ResponseStatus = "success"
	ResponseError   ResponseStatus = "error"
)

// AssistantResponse is the JSON payload appended to stream_out.
type AssistantResponse struct {
	UserID   int64          `json:"user_id"`
	Status   ResponseStatus `json:"status"`
	Source   string         `json:"source,omitempty"`
	Response string         `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Validate enforces "status=error ⇒ error required".
func (r AssistantResponse) Validate() error {
	switch r.Status {
	case ResponseSuccess:
		return nil
	case ResponseError:
		if r.Error == "" {
			return fmt.Errorf("error response missing error message")
		}
		return nil
	default:
		return fmt.Errorf("unknown response status %q", r.Status)
	}
}
