package convgraph

import (
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

// toGraphMessage converts a persisted Message into its GraphMessage
// variant: a closed sum type over message kind instead of runtime class
// identity. RoleToolRequest (an assistant turn that requested tool
// execution) and RoleAssistant (a final text turn) both map onto
// GraphMsgAssistant, distinguished by whether ToolCalls is populated.
func toGraphMessage(m coremodels.Message) coremodels.GraphMessage {
	switch m.Role {
	case coremodels.RoleHuman:
		return coremodels.GraphMessage{Kind: coremodels.GraphMsgHuman, Content: m.Content, DBID: m.ID}
	case coremodels.RoleToolRequest:
		return coremodels.GraphMessage{Kind: coremodels.GraphMsgAssistant, Content: m.Content, ToolCalls: m.ToolCalls, DBID: m.ID}
	case coremodels.RoleAssistant:
		return coremodels.GraphMessage{Kind: coremodels.GraphMsgAssistant, Content: m.Content, DBID: m.ID}
	case coremodels.RoleToolResponse:
		return coremodels.GraphMessage{Kind: coremodels.GraphMsgToolResponse, Content: m.Content, ToolCallID: m.ToolCallID, DBID: m.ID}
	default:
		return coremodels.GraphMessage{Kind: coremodels.GraphMsgHuman, Content: m.Content, DBID: m.ID}
	}
}

// toPersistedMessage is the inverse conversion, used when finalize and
// the assistant/tools nodes write new turns back to the state store.
func toPersistedMessage(userID int64, assistantID string, gm coremodels.GraphMessage) coremodels.Message {
	m := coremodels.Message{
		UserID:      userID,
		AssistantID: assistantID,
		Content:     gm.Content,
		Status:      coremodels.MessageStatusPending,
	}
	switch gm.Kind {
	case coremodels.GraphMsgHuman:
		m.Role = coremodels.RoleHuman
	case coremodels.GraphMsgAssistant:
		if len(gm.ToolCalls) > 0 {
			m.Role = coremodels.RoleToolRequest
			m.ToolCalls = gm.ToolCalls
		} else {
			m.Role = coremodels.RoleAssistant
		}
	case coremodels.GraphMsgToolResponse:
		m.Role = coremodels.RoleToolResponse
		m.ToolCallID = gm.ToolCallID
	}
	return m
}

// assemble orders the final message list: system_prompt (if any) first,
// then user_facts (if any), then the reducer's output — whose own first
// element is the retained history summary, if any.
func assemble(systemPrompt, userFacts *coremodels.GraphMessage, body []coremodels.GraphMessage) []coremodels.GraphMessage {
	out := make([]coremodels.GraphMessage, 0, len(body)+2)
	if systemPrompt != nil {
		out = append(out, *systemPrompt)
	}
	if userFacts != nil {
		out = append(out, *userFacts)
	}
	out = append(out, body...)
	return out
}

// splitLeading pulls the leading system_prompt and/or user_facts messages
// off state.Messages so a node can recompute the body with Reduce without
// those two re-entering the rule-1 strip (they are re-attached by assemble
// afterward, by the node that owns them).
func splitLeading(msgs []coremodels.GraphMessage) (systemPrompt, userFacts *coremodels.GraphMessage, body []coremodels.GraphMessage) {
	body = msgs
	if len(body) > 0 && body[0].Kind == coremodels.GraphMsgSystemPrompt {
		cp := body[0]
		systemPrompt = &cp
		body = body[1:]
	}
	if len(body) > 0 && body[0].Kind == coremodels.GraphMsgUserFacts {
		cp := body[0]
		userFacts = &cp
		body = body[1:]
	}
	return systemPrompt, userFacts, body
}

// lastAssistantMessage returns the final assistant-kind message in msgs,
// used by the tools_condition routing check and the tools node.
func lastAssistantMessage(msgs []coremodels.GraphMessage) (coremodels.GraphMessage, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Kind == coremodels.GraphMsgAssistant {
			return msgs[i], true
		}
	}
	return coremodels.GraphMessage{}, false
}
