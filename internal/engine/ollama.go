package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

// OllamaBackend drives one /api/chat turn per Step call against a local
// or remote Ollama server, adapted from the teacher's OllamaProvider.
type OllamaBackend struct {
	client  *http.Client
	baseURL string
}

// OllamaConfig configures an OllamaBackend.
type OllamaConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NewOllamaBackend constructs a Backend bound to an Ollama server.
func NewOllamaBackend(cfg OllamaConfig) *OllamaBackend {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OllamaBackend{client: &http.Client{Timeout: timeout}, baseURL: baseURL}
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaFunctionCall `json:"function"`
}

type ollamaFunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Message        ollamaMessage `json:"message"`
	Done           bool          `json:"done"`
	DoneReason     string        `json:"done_reason"`
	PromptEvalCount int          `json:"prompt_eval_count"`
	EvalCount      int           `json:"eval_count"`
}

// Step sends the full history as one non-streaming /api/chat call.
func (b *OllamaBackend) Step(ctx context.Context, req Request, history []Message) (StepOutput, error) {
	chatReq := ollamaChatRequest{
		Model:    req.Model,
		Messages: convertOllamaMessages(req.System, history),
		Stream:   false,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOllamaTools(req.Tools)
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return StepOutput{}, fmt.Errorf("ollama: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return StepOutput{}, fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return StepOutput{}, fmt.Errorf("ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(resp.Body)
		return StepOutput{}, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(msg))
	}

	var decoded ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return StepOutput{}, fmt.Errorf("ollama: decode response: %w", err)
	}

	out := StepOutput{
		Text: decoded.Message.Content,
		Usage: &events.Usage{
			InputTokens:  decoded.PromptEvalCount,
			OutputTokens: decoded.EvalCount,
			TotalTokens:  decoded.PromptEvalCount + decoded.EvalCount,
		},
		FinishReason: events.FinishStop,
	}
	for i, tc := range decoded.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, events.ToolCall{
			ID:       fmt.Sprintf("%s-call-%d", req.RunID, i),
			ToolName: tc.Function.Name,
			Args:     tc.Function.Arguments,
		})
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = events.FinishToolCalls
	}
	return out, nil
}

func convertOllamaMessages(system string, history []Message) []ollamaMessage {
	result := make([]ollamaMessage, 0, len(history)+1)
	if system != "" {
		result = append(result, ollamaMessage{Role: "system", Content: system})
	}
	for _, m := range history {
		switch m.Role {
		case RoleUser:
			result = append(result, ollamaMessage{Role: "user", Content: m.Text})
		case RoleAssistant:
			msg := ollamaMessage{Role: "assistant", Content: m.Text}
			for _, call := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, ollamaToolCall{
					Function: ollamaFunctionCall{Name: call.ToolName, Arguments: call.Args},
				})
			}
			result = append(result, msg)
		case RoleTool:
			result = append(result, ollamaMessage{Role: "tool", Content: m.Text})
		}
	}
	return result
}

func convertOllamaTools(tools []ToolSpec) []ollamaTool {
	result := make([]ollamaTool, 0, len(tools))
	for _, t := range tools {
		result = append(result, ollamaTool{
			Type: "function",
			Function: ollamaFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}
	return result
}
