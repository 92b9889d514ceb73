package coremodels

// GraphMessageKind is the sum-type discriminant for entries carried in a
// GraphState's message list. Using a closed tag instead of runtime type
// identity is what lets the reducer (internal/convgraph) operate on
// structured variants instead of class hierarchies.
type GraphMessageKind string

const (
	GraphMsgHuman           GraphMessageKind = "human"
	GraphMsgAssistant       GraphMessageKind = "assistant"
	GraphMsgToolResponse    GraphMessageKind = "tool_response"
	GraphMsgSystemPrompt    GraphMessageKind = "system_prompt"
	GraphMsgUserFacts       GraphMessageKind = "user_facts"
	GraphMsgHistorySummary  GraphMessageKind = "history_summary"
)

// Named system-message identities, mirrored from the original
// assistant_service constants module (SYSTEM_PROMPT_NAME, USER_FACTS_NAME,
// HISTORY_SUMMARY_NAME): every SystemMessage-shaped GraphMessage carries one
// of these as its Name so the reducer can tell them apart without relying on
// message class identity.
const (
	SystemPromptName   = "system_prompt"
	UserFactsName      = "user_facts"
	HistorySummaryName = "history_summary"
)

// GraphMessage is one entry in a GraphState's message list: a tagged union
// over Human | Assistant{content, tool_calls?} | ToolResponse{tool_call_id,
// content} | SystemInstructions | UserFacts | HistorySummary, per the
// spec's Design Notes §9.
type GraphMessage struct {
	Kind GraphMessageKind `json:"kind"`

	// Name distinguishes SystemPrompt/UserFacts/HistorySummary variants,
	// set to one of the *Name constants above. Empty for other kinds.
	Name string `json:"name,omitempty"`

	// Content is the text payload. Always present except for a bare
	// tool-call-only assistant message.
	Content string `json:"content,omitempty"`

	// ToolCalls is set only on GraphMsgAssistant messages that request
	// tool execution.
	ToolCalls []ToolCallRef `json:"tool_calls,omitempty"`

	// ToolCallID identifies which tool call a GraphMsgToolResponse answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// DBID is the persisted Message.ID this entry was loaded from, or 0 for
	// messages not yet persisted (the incoming turn, fresh tool responses).
	DBID int64 `json:"db_id,omitempty"`
}

// IsSystemVariant reports whether m is one of the three named
// SystemMessage-shaped kinds the reducer treats specially.
func (m GraphMessage) IsSystemVariant() bool {
	switch m.Kind {
	case GraphMsgSystemPrompt, GraphMsgUserFacts, GraphMsgHistorySummary:
		return true
	default:
		return false
	}
}
