package convgraph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

func TestSplitLeadingExtractsSystemPromptAndUserFacts(t *testing.T) {
	msgs := []coremodels.GraphMessage{
		{Kind: coremodels.GraphMsgSystemPrompt, Content: "sys"},
		{Kind: coremodels.GraphMsgUserFacts, Content: "facts"},
		{Kind: coremodels.GraphMsgHuman, Content: "hi"},
	}
	sp, uf, body := splitLeading(msgs)
	require.NotNil(t, sp)
	require.NotNil(t, uf)
	require.Len(t, body, 1)
	require.Equal(t, "hi", body[0].Content)
}

func TestSplitLeadingHandlesNeitherPresent(t *testing.T) {
	msgs := []coremodels.GraphMessage{{Kind: coremodels.GraphMsgHuman, Content: "hi"}}
	sp, uf, body := splitLeading(msgs)
	require.Nil(t, sp)
	require.Nil(t, uf)
	require.Len(t, body, 1)
}

func TestAssembleRoundTripsSplitLeading(t *testing.T) {
	original := []coremodels.GraphMessage{
		{Kind: coremodels.GraphMsgSystemPrompt, Content: "sys"},
		{Kind: coremodels.GraphMsgUserFacts, Content: "facts"},
		{Kind: coremodels.GraphMsgHuman, Content: "hi"},
		{Kind: coremodels.GraphMsgAssistant, Content: "hello"},
	}
	sp, uf, body := splitLeading(original)
	rebuilt := assemble(sp, uf, body)
	require.Equal(t, original, rebuilt)
}

func TestToGraphMessageMapsRolesByKind(t *testing.T) {
	tr := toGraphMessage(coremodels.Message{Role: coremodels.RoleToolRequest, Content: "call", ToolCalls: []coremodels.ToolCallRef{{ID: "c1"}}})
	require.Equal(t, coremodels.GraphMsgAssistant, tr.Kind)
	require.Len(t, tr.ToolCalls, 1)

	resp := toGraphMessage(coremodels.Message{Role: coremodels.RoleToolResponse, Content: "result", ToolCallID: "c1"})
	require.Equal(t, coremodels.GraphMsgToolResponse, resp.Kind)
	require.Equal(t, "c1", resp.ToolCallID)
}

func TestToPersistedMessageInversesToGraphMessage(t *testing.T) {
	gm := coremodels.GraphMessage{Kind: coremodels.GraphMsgAssistant, Content: "hello", ToolCalls: []coremodels.ToolCallRef{{ID: "c1", ToolName: "get_time"}}}
	m := toPersistedMessage(1, "asst-1", gm)
	require.Equal(t, coremodels.RoleToolRequest, m.Role)
	require.Equal(t, int64(1), m.UserID)
	require.Equal(t, "asst-1", m.AssistantID)
}

func TestLastAssistantMessageFindsMostRecent(t *testing.T) {
	msgs := []coremodels.GraphMessage{
		{Kind: coremodels.GraphMsgAssistant, Content: "first"},
		{Kind: coremodels.GraphMsgHuman, Content: "hi"},
		{Kind: coremodels.GraphMsgAssistant, Content: "second"},
	}
	last, ok := lastAssistantMessage(msgs)
	require.True(t, ok)
	require.Equal(t, "second", last.Content)
}

func TestLastAssistantMessageAbsent(t *testing.T) {
	_, ok := lastAssistantMessage([]coremodels.GraphMessage{{Kind: coremodels.GraphMsgHuman, Content: "hi"}})
	require.False(t, ok)
}
