package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient implements Client against the real Anthropic Messages
// API, converting Turn/Message/ToolSpec into anthropic.MessageNewParams.
// It skips the streaming machinery CORE's single-shot graph calls don't
// need.
type AnthropicClient struct {
	client       anthropic.Client
	model        string
	maxTokens    int64
}

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// NewAnthropicClient constructs an AnthropicClient. Model defaults to
// claude-sonnet-4-5 and MaxTokens to 4096 when unset.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llmclient: anthropic API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicClient{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Complete sends turn to the Anthropic Messages API and maps the reply
// back to a Reply, surfacing either final text or the tool_use blocks the
// model requested.
func (c *AnthropicClient) Complete(ctx context.Context, turn Turn) (Reply, error) {
	messages, err := convertMessages(turn.Messages)
	if err != nil {
		return Reply{}, fmt.Errorf("llmclient: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		Messages:  messages,
		MaxTokens: c.maxTokens,
	}
	if turn.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: turn.System}}
	}
	if len(turn.Tools) > 0 {
		tools, err := convertTools(turn.Tools)
		if err != nil {
			return Reply{}, fmt.Errorf("llmclient: convert tools: %w", err)
		}
		params.Tools = tools
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Reply{}, fmt.Errorf("llmclient: anthropic request: %w", err)
	}

	var reply Reply
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			reply.Text += b.Text
		case anthropic.ToolUseBlock:
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: json.RawMessage(b.Input),
			})
		}
	}
	return reply, nil
}

func convertMessages(messages []Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tr := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if len(tc.Arguments) > 0 {
				if err := json.Unmarshal(tc.Arguments, &input); err != nil {
					return nil, fmt.Errorf("invalid tool call arguments for %s: %w", tc.Name, err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(content) == 0 {
			continue
		}
		if msg.Role == RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertTools(tools []ToolSpec) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		result = append(result, param)
	}
	return result, nil
}
