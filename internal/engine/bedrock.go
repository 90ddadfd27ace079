package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithydoc "github.com/aws/smithy-go/document"

	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

// BedrockBackend drives one Bedrock Converse API turn per Step call,
// adapted from the teacher's BedrockProvider.convertMessages and
// Converse request construction.
type BedrockBackend struct {
	client *bedrockruntime.Client
}

// BedrockConfig configures a BedrockBackend.
type BedrockConfig struct {
	Region string
}

// NewBedrockBackend constructs a Backend bound to Amazon Bedrock,
// loading credentials the standard AWS way (env, shared config, IAM role).
func NewBedrockBackend(ctx context.Context, cfg BedrockConfig) (*BedrockBackend, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
	}
	return &BedrockBackend{client: bedrockruntime.NewFromConfig(awsCfg)}, nil
}

// Step sends the full history as one Converse call.
func (b *BedrockBackend) Step(ctx context.Context, req Request, history []Message) (StepOutput, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.Model),
		Messages: convertBedrockMessages(history),
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(maxTokensOrDefault(req.MaxTokens))),
		},
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}
	if len(req.Tools) > 0 {
		input.ToolConfig = convertBedrockTools(req.Tools)
	}

	resp, err := b.client.Converse(ctx, input)
	if err != nil {
		return StepOutput{}, fmt.Errorf("bedrock: %w", err)
	}

	out := StepOutput{FinishReason: mapBedrockStopReason(string(resp.StopReason))}
	if resp.Usage != nil {
		out.Usage = &events.Usage{
			InputTokens:  int(aws.ToInt32(resp.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(resp.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(resp.Usage.TotalTokens)),
		}
	}

	output, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return out, nil
	}
	for _, block := range output.Value.Content {
		switch variant := block.(type) {
		case *types.ContentBlockMemberText:
			out.Text += variant.Value
		case *types.ContentBlockMemberToolUse:
			args, _ := json.Marshal(variant.Value.Input)
			out.ToolCalls = append(out.ToolCalls, events.ToolCall{
				ID:       aws.ToString(variant.Value.ToolUseId),
				ToolName: aws.ToString(variant.Value.Name),
				Args:     args,
			})
		}
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = events.FinishToolCalls
	}
	return out, nil
}

func convertBedrockMessages(history []Message) []types.Message {
	result := make([]types.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case RoleUser:
			result = append(result, types.Message{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Text}},
			})
		case RoleAssistant:
			var blocks []types.ContentBlock
			if m.Text != "" {
				blocks = append(blocks, &types.ContentBlockMemberText{Value: m.Text})
			}
			for _, call := range m.ToolCalls {
				blocks = append(blocks, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{
						ToolUseId: aws.String(call.ID),
						Name:      aws.String(call.ToolName),
						Input:     jsonDocument(call.Args),
					},
				})
			}
			result = append(result, types.Message{Role: types.ConversationRoleAssistant, Content: blocks})
		case RoleTool:
			result = append(result, types.Message{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberToolResult{
					Value: types.ToolResultBlock{
						ToolUseId: aws.String(m.ToolCallID),
						Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: m.Text}},
					},
				}},
			})
		}
	}
	return result
}

func convertBedrockTools(tools []ToolSpec) *types.ToolConfiguration {
	specs := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: jsonDocument(t.Schema)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: specs}
}

// jsonDocument wraps a raw JSON payload as a smithy document, the form
// the Bedrock Converse API expects for free-form tool input/schema.
func jsonDocument(raw json.RawMessage) smithydoc.Interface {
	var v any
	_ = json.Unmarshal(raw, &v)
	return smithydoc.NewLazyDocument(v)
}

func mapBedrockStopReason(reason string) events.FinishReason {
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
