// Package anthropic implements core.Oracle on top of the Anthropic Messages
// API with tool use.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/agentstack/core"
)

// Options configures the Anthropic oracle.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	// RequestOptions are passed to the client, e.g. option.WithBaseURL.
	RequestOptions []option.RequestOption
}

// Oracle wraps the Anthropic Messages API.
type Oracle struct {
	client *anthropic.Client
	opts   Options
}

// New creates an oracle using the official client.
func New(optFns ...func(o *Options)) *Oracle {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := append([]option.RequestOption(nil), opts.RequestOptions...)
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Oracle{client: &client, opts: opts}
}

// NewFromClient creates an oracle from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Oracle {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Oracle{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Ask implements core.Oracle. Text blocks are concatenated; the first
// tool_use block becomes the tool call.
func (o *Oracle) Ask(ctx context.Context, req core.OracleRequest) (*core.OracleReply, error) {
	model := o.opts.Model
	if req.Model != "" {
		model = anthropic.Model(req.Model)
	}

	params := anthropic.MessageNewParams{
		Model:       model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   o.opts.MaxTokens,
		Temperature: anthropic.Float(o.opts.Temperature),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := o.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	reply := &core.OracleReply{
		Model: string(resp.Model),
		Usage: core.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			reply.Content += block.AsText().Text
		case "tool_use":
			if reply.ToolCall != nil {
				continue
			}

			tu := block.AsToolUse()

			args := map[string]any{}
			if len(tu.Input) > 0 {
				if err := json.Unmarshal(tu.Input, &args); err != nil {
					return nil, fmt.Errorf("anthropic: decode input of %s: %w", tu.Name, err)
				}
			}

			reply.ToolCall = &core.OracleToolCall{ID: tu.ID, Name: tu.Name, Args: args}
		}
	}

	return reply, nil
}

// buildMessages converts a transcript into Anthropic messages. Tool responses
// travel as tool_result blocks in user messages and consecutive user turns are
// merged.
func buildMessages(transcript []core.Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam

	appendUser := func(block anthropic.ContentBlockParamUnion) {
		if n := len(messages); n > 0 && messages[n-1].Role == anthropic.MessageParamRoleUser {
			messages[n-1].Content = append(messages[n-1].Content, block)
			return
		}

		messages = append(messages, anthropic.NewUserMessage(block))
	}

	for _, m := range transcript {
		switch m.Role {
		case core.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				content = append(content, anthropic.NewTextBlock(m.Content))
			}

			if m.ToolCallID != "" {
				input := m.ToolArgs
				if input == nil {
					input = map[string]any{}
				}

				content = append(content, anthropic.NewToolUseBlock(m.ToolCallID, input, m.ToolName))
			}

			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		case core.RoleTool:
			appendUser(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		default:
			if m.Content != "" {
				appendUser(anthropic.NewTextBlock(m.Content))
			}
		}
	}

	return messages
}

func buildTools(tools []core.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))

	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if props, ok := t.Parameters["properties"]; ok {
			schema.Properties = props
		}

		switch req := t.Parameters["required"].(type) {
		case []string:
			schema.Required = req
		case []any:
			for _, r := range req {
				if s, ok := r.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}

		tool := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if tool.OfTool != nil && t.Description != "" {
			tool.OfTool.Description = anthropic.String(t.Description)
		}

		out[i] = tool
	}

	return out
}
