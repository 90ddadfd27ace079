package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

// GeminiBackend drives one Gemini GenerateContent turn per Step call,
// adapted from the teacher's GoogleProvider.convertMessages/convertTools.
type GeminiBackend struct {
	client *genai.Client
}

// GeminiConfig configures a GeminiBackend.
type GeminiConfig struct {
	APIKey string
}

// NewGeminiBackend constructs a Backend bound to the Gemini API.
func NewGeminiBackend(ctx context.Context, cfg GeminiConfig) (*GeminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, &ErrUnsupportedBackend{Reason: "gemini: missing API key"}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &GeminiBackend{client: client}, nil
}

// Step sends the full history as one GenerateContent call.
func (b *GeminiBackend) Step(ctx context.Context, req Request, history []Message) (StepOutput, error) {
	contents := convertGeminiMessages(history)
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokensOrDefault(req.MaxTokens)),
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if len(req.Tools) > 0 {
		config.Tools = convertGeminiTools(req.Tools)
	}

	resp, err := b.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return StepOutput{}, fmt.Errorf("gemini: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return StepOutput{}, fmt.Errorf("gemini: empty response")
	}
	candidate := resp.Candidates[0]

	out := StepOutput{FinishReason: mapGeminiFinishReason(string(candidate.FinishReason))}
	if resp.UsageMetadata != nil {
		out.Usage = &events.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				out.Text += part.Text
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				out.ToolCalls = append(out.ToolCalls, events.ToolCall{
					ID:       part.FunctionCall.ID,
					ToolName: part.FunctionCall.Name,
					Args:     args,
				})
			}
		}
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = events.FinishToolCalls
	}
	return out, nil
}

func convertGeminiMessages(history []Message) []*genai.Content {
	result := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		content := &genai.Content{}
		switch m.Role {
		case RoleUser:
			content.Role = genai.RoleUser
			content.Parts = append(content.Parts, &genai.Part{Text: m.Text})
		case RoleAssistant:
			content.Role = genai.RoleModel
			if m.Text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: m.Text})
			}
			for _, call := range m.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal(call.Args, &args)
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: call.ID, Name: call.ToolName, Args: args},
				})
			}
		case RoleTool:
			content.Role = genai.RoleUser
			var response map[string]any
			if err := json.Unmarshal([]byte(m.Text), &response); err != nil {
				response = map[string]any{"result": m.Text}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{ID: m.ToolCallID, Response: response},
			})
		}
		result = append(result, content)
	}
	return result
}

func convertGeminiTools(tools []ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schema *genai.Schema
		_ = json.Unmarshal(t.Schema, &schema)
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func mapGeminiFinishReason(reason string) events.FinishReason {
	switch reason {
	case "STOP":
		return events.FinishStop
	case "MAX_TOKENS":
		return events.FinishLength
	default:
		return events.FinishOther
	}
}
