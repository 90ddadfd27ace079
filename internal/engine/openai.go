package engine

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

// OpenAIBackend drives one Chat Completions turn per Step call, adapted
// from the teacher's OpenAIProvider.convertToOpenAIMessages/Tools.
type OpenAIBackend struct {
	client *openai.Client
	apiKey string
}

// OpenAIConfig configures an OpenAIBackend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// NewOpenAIBackend constructs a Backend bound to the OpenAI Chat
// Completions API (or any OpenAI-compatible BaseURL).
func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, &ErrUnsupportedBackend{Reason: "openai: missing API key"}
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(clientCfg), apiKey: cfg.APIKey}, nil
}

// Step sends the full history as one ChatCompletion call.
func (b *OpenAIBackend) Step(ctx context.Context, req Request, history []Message) (StepOutput, error) {
	messages := convertOpenAIMessages(req.System, history)
	chatReq := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: maxTokensOrDefault(req.MaxTokens),
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}

	resp, err := b.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return StepOutput{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return StepOutput{}, fmt.Errorf("openai: empty response")
	}
	choice := resp.Choices[0]

	out := StepOutput{
		Text:         choice.Message.Content,
		FinishReason: mapOpenAIFinishReason(string(choice.FinishReason)),
		Usage: &events.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, events.ToolCall{
			ID:       tc.ID,
			ToolName: tc.Function.Name,
			Args:     []byte(tc.Function.Arguments),
		})
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = events.FinishToolCalls
	}
	return out, nil
}

func convertOpenAIMessages(system string, history []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range history {
		switch m.Role {
		case RoleUser:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Text})
		case RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Text}
			for _, call := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.ToolName,
						Arguments: string(call.Args),
					},
				})
			}
			result = append(result, msg)
		case RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Text,
				ToolCallID: m.ToolCallID,
			})
		}
	}
	return result
}

func convertOpenAITools(tools []ToolSpec) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params any
		_ = json.Unmarshal(t.Schema, &params)
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return result
}

func mapOpenAIFinishReason(reason string) events.FinishReason {
	switch reason {
	case "stop":
		return events.FinishStop
	case "length":
		return events.FinishLength
	case "tool_calls":
		return events.FinishToolCalls
	default:
		return events.FinishOther
	}
}
