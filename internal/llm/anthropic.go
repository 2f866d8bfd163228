package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// maxToolTurns bounds the tool-use loop for one invocation.
const maxToolTurns = 12

// AnthropicRuntime implements Runtime on the Anthropic Messages API,
// running the tool-use loop until the model produces a final text turn.
type AnthropicRuntime struct {
	api *anthropic.Client
}

// NewAnthropicRuntime creates a runtime with the given API key. An
// empty key falls back to the SDK's environment-based configuration.
func NewAnthropicRuntime(apiKey string) *AnthropicRuntime {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicRuntime{api: &client}
}

// Invoke runs the agent on the input, executing bound tools as the
// model requests them, and returns the final text output with usage.
func (r *AnthropicRuntime) Invoke(ctx context.Context, agent *Agent, input string) (*Result, error) {
	tools := make([]anthropic.ToolUnionParam, 0, len(agent.Tools))
	byName := make(map[string]Tool, len(agent.Tools))
	for _, t := range agent.Tools {
		byName[t.Name] = t
		param := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: t.Properties,
				Required:   t.Required,
			},
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &param})
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(input)),
	}

	result := &Result{}

	for turn := 0; turn < maxToolTurns; turn++ {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(agent.Model),
			MaxTokens: 4096,
			System: []anthropic.TextBlockParam{
				{Text: agent.Instructions},
			},
			Messages: messages,
		}
		if len(tools) > 0 {
			params.Tools = tools
		}

		msg, err := r.api.Messages.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("anthropic API call: %w", err)
		}

		result.Usage.InputTokens += int(msg.Usage.InputTokens)
		result.Usage.OutputTokens += int(msg.Usage.OutputTokens)

		var text string
		var toolResults []anthropic.ContentBlockParamUnion
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				if text == "" {
					text = block.Text
				}
			case "tool_use":
				record := ToolCallRecord{Name: block.Name, Input: string(block.Input)}
				result.Usage.ToolCalls++

				tool, ok := byName[block.Name]
				if !ok {
					record.Error = fmt.Sprintf("unknown tool: %s", block.Name)
					toolResults = append(toolResults, anthropic.NewToolResultBlock(block.ID, record.Error, true))
					result.ToolCalls = append(result.ToolCalls, record)
					continue
				}

				var args map[string]any
				if len(block.Input) > 0 {
					if err := json.Unmarshal(block.Input, &args); err != nil {
						record.Error = fmt.Sprintf("decode tool input: %v", err)
						toolResults = append(toolResults, anthropic.NewToolResultBlock(block.ID, record.Error, true))
						result.ToolCalls = append(result.ToolCalls, record)
						continue
					}
				}

				output, execErr := tool.Exec(ctx, args)
				if execErr != nil {
					record.Error = execErr.Error()
					toolResults = append(toolResults, anthropic.NewToolResultBlock(block.ID, execErr.Error(), true))
				} else {
					record.Output = output
					toolResults = append(toolResults, anthropic.NewToolResultBlock(block.ID, output, false))
				}
				result.ToolCalls = append(result.ToolCalls, record)
			}
		}

		if msg.StopReason != "tool_use" || len(toolResults) == 0 {
			result.FinalOutput = text
			return result, nil
		}

		messages = append(messages, msg.ToParam())
		messages = append(messages, anthropic.NewUserMessage(toolResults...))
	}

	return nil, fmt.Errorf("tool-use loop exceeded %d turns for agent %s", maxToolTurns, agent.Name)
}
