package llmclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// SubmitBatch implements BatchProvider against Anthropic's Message Batches
// API, converting each BatchRequest's Turn the same way Complete does and
// tagging it with CustomID so CollectBatch can join results back.
func (c *AnthropicClient) SubmitBatch(ctx context.Context, requests []BatchRequest) (string, error) {
	entries := make([]anthropic.MessageBatchNewParamsRequest, 0, len(requests))
	for _, req := range requests {
		messages, err := convertMessages(req.Turn.Messages)
		if err != nil {
			return "", fmt.Errorf("llmclient: convert messages for %s: %w", req.CustomID, err)
		}
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			Messages:  messages,
			MaxTokens: c.maxTokens,
		}
		if req.Turn.System != "" {
			params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.Turn.System}}
		}
		entries = append(entries, anthropic.MessageBatchNewParamsRequest{
			CustomID: req.CustomID,
			Params:   params,
		})
	}

	batch, err := c.client.Messages.Batches.New(ctx, anthropic.MessageBatchNewParams{Requests: entries})
	if err != nil {
		return "", fmt.Errorf("llmclient: submit batch: %w", err)
	}
	return batch.ID, nil
}

// PollBatch reports whether providerBatchID has finished processing.
func (c *AnthropicClient) PollBatch(ctx context.Context, providerBatchID string) (BatchStatus, error) {
	batch, err := c.client.Messages.Batches.Get(ctx, providerBatchID)
	if err != nil {
		return "", fmt.Errorf("llmclient: get batch %s: %w", providerBatchID, err)
	}
	if batch.ProcessingStatus == "ended" {
		return BatchEnded, nil
	}
	return BatchInProgress, nil
}

// CollectBatch streams providerBatchID's per-request results and maps each
// one to a BatchResult keyed by CustomID.
func (c *AnthropicClient) CollectBatch(ctx context.Context, providerBatchID string) ([]BatchResult, error) {
	iter := c.client.Messages.Batches.ResultsStreaming(ctx, providerBatchID)
	defer iter.Close()

	var results []BatchResult
	for iter.Next() {
		entry := iter.Current()
		res := BatchResult{CustomID: entry.CustomID}

		switch variant := entry.Result.AsAny().(type) {
		case anthropic.MessageBatchSucceededResult:
			var reply Reply
			for _, block := range variant.Message.Content {
				switch b := block.AsAny().(type) {
				case anthropic.TextBlock:
					reply.Text += b.Text
				case anthropic.ToolUseBlock:
					reply.ToolCalls = append(reply.ToolCalls, ToolCall{
						ID: b.ID, Name: b.Name, Arguments: json.RawMessage(b.Input),
					})
				}
			}
			res.Status = BatchRequestSucceeded
			res.Reply = reply
		case anthropic.MessageBatchErroredResult:
			res.Status = BatchRequestErrored
			res.Error = variant.Error.Error.Message
		case anthropic.MessageBatchExpiredResult:
			res.Status = BatchRequestExpired
		default:
			res.Status = BatchRequestErrored
			res.Error = "unknown result variant"
		}
		results = append(results, res)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("llmclient: stream batch results %s: %w", providerBatchID, err)
	}
	return results, nil
}
