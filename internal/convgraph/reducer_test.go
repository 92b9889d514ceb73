package convgraph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/assistant-core/internal/coreerr"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

func TestReduceStripsSystemVariants(t *testing.T) {
	delta := []coremodels.GraphMessage{
		{Kind: coremodels.GraphMsgSystemPrompt, Content: "you are a secretary"},
		{Kind: coremodels.GraphMsgUserFacts, Content: "likes coffee"},
		{Kind: coremodels.GraphMsgHuman, Content: "hi"},
	}
	out, err := Reduce(nil, delta, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, coremodels.GraphMsgHuman, out[0].Kind)
}

func TestReduceKeepsOnlyLatestSummary(t *testing.T) {
	current := []coremodels.GraphMessage{
		{Kind: coremodels.GraphMsgHistorySummary, Content: "old summary"},
		{Kind: coremodels.GraphMsgHuman, Content: "hi"},
	}
	delta := []coremodels.GraphMessage{
		{Kind: coremodels.GraphMsgHistorySummary, Content: "new summary"},
	}
	out, err := Reduce(current, delta, nil)
	require.NoError(t, err)
	require.Equal(t, coremodels.GraphMsgHistorySummary, out[0].Kind)
	require.Equal(t, "new summary", out[0].Content)
	count := 0
	for _, m := range out {
		if m.Kind == coremodels.GraphMsgHistorySummary {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestReduceDropsNonTrailingOrphan(t *testing.T) {
	delta := []coremodels.GraphMessage{
		{Kind: coremodels.GraphMsgHuman, Content: "hi"},
		{Kind: coremodels.GraphMsgToolResponse, ToolCallID: "call_1", Content: "orphaned"},
		{Kind: coremodels.GraphMsgHuman, Content: "follow-up"},
	}
	out, err := Reduce(nil, delta, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, m := range out {
		require.NotEqual(t, coremodels.GraphMsgToolResponse, m.Kind)
	}
}

func TestReduceTrailingOrphanIsGraphInvariant(t *testing.T) {
	delta := []coremodels.GraphMessage{
		{Kind: coremodels.GraphMsgHuman, Content: "hi"},
		{Kind: coremodels.GraphMsgToolResponse, ToolCallID: "call_1", Content: "orphaned"},
	}
	_, err := Reduce(nil, delta, nil)
	require.Error(t, err)
	require.Equal(t, coreerr.GraphInvariant, coreerr.KindOf(err))
}

func TestReduceKeepsMatchedToolResponse(t *testing.T) {
	current := []coremodels.GraphMessage{
		{Kind: coremodels.GraphMsgAssistant, Content: "", ToolCalls: []coremodels.ToolCallRef{{ID: "call_1", ToolName: "get_time"}}},
	}
	delta := []coremodels.GraphMessage{
		{Kind: coremodels.GraphMsgToolResponse, ToolCallID: "call_1", Content: "12:00"},
	}
	out, err := Reduce(current, delta, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, coremodels.GraphMsgToolResponse, out[1].Kind)
}

func TestReduceIsIdempotent(t *testing.T) {
	delta := []coremodels.GraphMessage{
		{Kind: coremodels.GraphMsgSystemPrompt, Content: "sys"},
		{Kind: coremodels.GraphMsgHuman, Content: "hi"},
		{Kind: coremodels.GraphMsgAssistant, Content: "hello"},
	}
	once, err := Reduce(nil, delta, nil)
	require.NoError(t, err)
	twice, err := Reduce(once, nil, nil)
	require.NoError(t, err)
	require.Equal(t, once, twice)
}
