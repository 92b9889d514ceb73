package convgraph

import "github.com/haasonsaas/assistant-core/pkg/coremodels"

// ensure_context_limit estimates tokens as a sum of rough per-message
// counts rather than running an exact tokenizer: roughly 4 characters per
// token, plus a small fixed overhead per message for role/framing.
const charsPerToken = 4
const perMessageOverhead = 4

func estimateTokens(m coremodels.GraphMessage) int {
	n := perMessageOverhead + len(m.Content)/charsPerToken
	for _, tc := range m.ToolCalls {
		n += len(tc.Arguments) / charsPerToken
	}
	return n
}

func totalTokens(msgs []coremodels.GraphMessage) int {
	total := 0
	for _, m := range msgs {
		total += estimateTokens(m)
	}
	return total
}
