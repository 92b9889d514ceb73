// Package obslog is the structured event log CORE components write to:
// monotonic sequencing and a closed event-type enum over log/slog, with
// one emission point per event.
package obslog

// EventType is the closed set of observability events CORE components may
// emit. Components must not invent ad-hoc event names; extend this enum
// instead.
type EventType string

const (
	EventRequestIn   EventType = "request_in"
	EventRequestOut  EventType = "request_out"
	EventJobStart    EventType = "job_start"
	EventJobEnd      EventType = "job_end"
	EventJobError    EventType = "job_error"
	EventQueuePush   EventType = "queue_push"
	EventQueuePop    EventType = "queue_pop"
	EventQueueAck    EventType = "queue_ack"
	EventQueueDLQ    EventType = "queue_dlq"
	EventToolCall    EventType = "tool_call"
	EventToolResult  EventType = "tool_result"
	EventLLMCall     EventType = "llm_call"
	EventLLMResponse EventType = "llm_response"
	EventMemorySave  EventType = "memory_save"
	EventMemorySkip  EventType = "memory_skip"
	EventMessageIn   EventType = "message_in"
	EventMessageOut  EventType = "message_out"
	EventError       EventType = "error"
)
