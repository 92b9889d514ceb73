package convgraph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

func TestEstimateTokensScalesWithContentLength(t *testing.T) {
	short := estimateTokens(coremodels.GraphMessage{Content: "hi"})
	long := estimateTokens(coremodels.GraphMessage{Content: "this is a much longer message body"})
	require.Greater(t, long, short)
}

func TestTotalTokensSumsEachMessage(t *testing.T) {
	msgs := []coremodels.GraphMessage{
		{Content: "aaaa"},
		{Content: "bbbb"},
	}
	require.Equal(t, estimateTokens(msgs[0])+estimateTokens(msgs[1]), totalTokens(msgs))
}
