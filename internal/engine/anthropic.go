package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

// AnthropicBackend drives one Anthropic Messages API turn per Step call,
// adapted from the teacher's AnthropicProvider.createStream and
// convertMessages, collapsed to a single non-streaming turn per step
// (the engine loop supplies the multi-step streaming behavior instead).
type AnthropicBackend struct {
	client anthropic.Client
}

// AnthropicConfig configures an AnthropicBackend.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
}

// NewAnthropicBackend constructs a Backend bound to the Anthropic API.
func NewAnthropicBackend(cfg AnthropicConfig) (*AnthropicBackend, error) {
	if cfg.APIKey == "" {
		return nil, &ErrUnsupportedBackend{Reason: "anthropic: missing API key"}
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicBackend{client: anthropic.NewClient(opts...)}, nil
}

// Step sends the full history as one Messages API call and returns the
// model's text and/or tool_use blocks.
func (b *AnthropicBackend) Step(ctx context.Context, req Request, history []Message) (StepOutput, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokensOrDefault(req.MaxTokens)),
		Messages:  convertAnthropicMessages(history),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertAnthropicTools(req.Tools)
	}

	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return StepOutput{}, fmt.Errorf("anthropic: %w", err)
	}

	out := StepOutput{FinishReason: mapAnthropicStopReason(string(msg.StopReason))}
	if msg.Usage.InputTokens != 0 || msg.Usage.OutputTokens != 0 {
		out.Usage = &events.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		}
	}

	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Text += variant.Text
		case anthropic.ToolUseBlock:
			args, _ := json.Marshal(variant.Input)
			out.ToolCalls = append(out.ToolCalls, events.ToolCall{ID: variant.ID, ToolName: variant.Name, Args: args})
		}
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = events.FinishToolCalls
	}
	return out, nil
}

func convertAnthropicMessages(history []Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case RoleUser:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Text))
			}
			for _, call := range m.ToolCalls {
				var input any
				_ = json.Unmarshal(call.Args, &input)
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.ToolName))
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		case RoleTool:
			result = append(result, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Text, false)))
		}
	}
	return result
}

func convertAnthropicTools(tools []ToolSpec) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		_ = json.Unmarshal(t.Schema, &schema)
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return result
}

func mapAnthropicStopReason(reason string) events.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return events.FinishStop
	case "max_tokens":
		return events.FinishLength
	case "tool_use":
		return events.FinishToolCalls
	default:
		return events.FinishOther
	}
}

func maxTokensOrDefault(v int) int {
	if v <= 0 {
		return 4096
	}
	return v
}
