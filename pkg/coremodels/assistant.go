package coremodels

// AssistantRole distinguishes a user-facing secretary from a delegate
// sub-assistant reached only through a sub-assistant tool call.
type AssistantRole string

const (
	AssistantRoleSecretary   AssistantRole = "secretary"
	AssistantRoleSubAssistant AssistantRole = "sub_assistant"
)

// Assistant is a configured conversational agent: model, system prompt, and
// the set of tools it is allowed to invoke.
type Assistant struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Role               AssistantRole `json:"role"`
	Model              string        `json:"model"`
	SystemInstructions string        `json:"system_instructions"`
	ToolDefinitionIDs  []string      `json:"tool_definition_ids"`
	Active             bool          `json:"active"`

	// LLMContextSize is the token budget enforced by ensure_context_limit.
	LLMContextSize int `json:"llm_context_size"`

	// ContextWindowSize and SummarizeRatio drive should_summarize:
	// summarization triggers when the running token count exceeds
	// ContextWindowSize * SummarizeRatio.
	ContextWindowSize int     `json:"context_window_size"`
	SummarizeRatio    float64 `json:"summarize_ratio"`

	// MessagesSinceSummaryLimit is the N in "messages_since_last_summary > N".
	MessagesSinceSummaryLimit int `json:"messages_since_last_summary_limit"`

	// MemoryRetrieveLimit and MemoryRetrieveThreshold bound retrieve_memories.
	MemoryRetrieveLimit     int     `json:"memory_retrieve_limit"`
	MemoryRetrieveThreshold float64 `json:"memory_retrieve_threshold"`

	// HistoryLimit caps how many processed messages load_context pulls.
	HistoryLimit int `json:"history_limit"`
}

// ToolKind enumerates the closed set of tool behaviors the Tool Registry
// knows how to materialize.
type ToolKind string

const (
	ToolKindTime            ToolKind = "time"
	ToolKindCalendarCreate  ToolKind = "calendar-create"
	ToolKindCalendarList    ToolKind = "calendar-list"
	ToolKindReminderCreate  ToolKind = "reminder-create"
	ToolKindReminderList    ToolKind = "reminder-list"
	ToolKindReminderDelete  ToolKind = "reminder-delete"
	ToolKindMemorySave      ToolKind = "memory-save"
	ToolKindMemorySearch    ToolKind = "memory-search"
	ToolKindWebSearch       ToolKind = "web-search"
	ToolKindSubAssistant    ToolKind = "sub-assistant"
)

// ToolDefinition is the declarative descriptor the Tool Factory materializes
// into an invocable Tool.
type ToolDefinition struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Kind              ToolKind `json:"kind"`
	Description       string   `json:"description"`
	InputSchema       string   `json:"input_schema"` // raw JSON Schema text
	DelegateAssistantID string `json:"delegate_assistant_id,omitempty"`
	Active            bool     `json:"active"`
}
