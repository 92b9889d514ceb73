package memoryextract

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/assistant-core/internal/llmclient"
	"github.com/haasonsaas/assistant-core/pkg/coremodels"
)

const extractionSystemPrompt = `You extract durable facts, preferences, events, and conversation
insights from a user's conversation history. Respond with ONLY a JSON array of objects shaped
{"text": string, "memory_type": "user_fact"|"preference"|"event"|"conversation_insight", "importance": 1-10}.
Skip anything already listed as an existing fact. Return an empty array if nothing new is worth recording.`

type batchInfo struct {
	lastMessageID int64
}

type preparedBatch struct {
	requests []llmclient.BatchRequest
	byKey    map[string]batchInfo
}

// buildBatch renders one extraction prompt per candidate conversation,
// skipping any whose message window turns out empty (a watermark/count
// race between ListExtractionCandidates and the page fetch).
func (e *Extractor) buildBatch(ctx context.Context, candidates []coremodels.ConversationRef) (preparedBatch, error) {
	out := preparedBatch{byKey: make(map[string]batchInfo, len(candidates))}
	for _, c := range candidates {
		messages, err := e.deps.Store.ListProcessedMessagesAfter(ctx, c.UserID, c.AssistantID, c.LastExtractedMessageID, DefaultHistoryPageLimit)
		if err != nil {
			return preparedBatch{}, fmt.Errorf("list messages for %d/%s: %w", c.UserID, c.AssistantID, err)
		}
		if len(messages) == 0 {
			continue
		}
		existingFacts, err := e.deps.Store.ListUserFacts(ctx, c.UserID)
		if err != nil {
			return preparedBatch{}, fmt.Errorf("list existing facts for %d: %w", c.UserID, err)
		}

		key := conversationKey(c.UserID, c.AssistantID)
		out.requests = append(out.requests, llmclient.BatchRequest{
			CustomID: key,
			Turn: llmclient.Turn{
				System: extractionSystemPrompt,
				Messages: []llmclient.Message{{
					Role:    llmclient.RoleUser,
					Content: renderExtractionPrompt(existingFacts, messages),
				}},
			},
		})
		out.byKey[key] = batchInfo{lastMessageID: messages[len(messages)-1].ID}
	}
	return out, nil
}

func conversationKey(userID int64, assistantID string) string {
	return fmt.Sprintf("%d:%s", userID, assistantID)
}

func renderExtractionPrompt(existing []coremodels.UserFact, messages []coremodels.Message) string {
	var b strings.Builder
	b.WriteString("Existing facts:\n")
	if len(existing) == 0 {
		b.WriteString("(none)\n")
	}
	for _, f := range existing {
		fmt.Fprintf(&b, "- %s\n", f.Text)
	}
	b.WriteString("\nConversation:\n")
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	return b.String()
}
