// Package openai implements core.Oracle on top of the OpenAI Chat Completions
// API with function calling.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/agentstack/core"
)

// Options configure the OpenAI oracle.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	// RequestOptions are passed to the client, e.g. option.WithAPIKey.
	RequestOptions []option.RequestOption
}

// Oracle wraps the OpenAI Chat Completions API.
type Oracle struct {
	client *openai.Client
	opts   Options
}

// New creates an oracle using the official client. The API key is read from
// OPENAI_API_KEY unless RequestOptions override it.
func New(optFns ...func(o *Options)) *Oracle {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	client := openai.NewClient(opts.RequestOptions...)

	return &Oracle{client: &client, opts: opts}
}

// NewFromClient creates an oracle from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Oracle {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Oracle{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

// Ask implements core.Oracle. Only the first tool call of a completion is
// returned.
func (o *Oracle) Ask(ctx context.Context, req core.OracleRequest) (*core.OracleReply, error) {
	params := o.buildParams(req)

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: no choices returned")
	}

	msg := resp.Choices[0].Message

	reply := &core.OracleReply{
		Content: msg.Content,
		Model:   resp.Model,
		Usage: core.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}

	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]

		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("openai: decode arguments of %s: %w", tc.Function.Name, err)
			}
		}

		reply.ToolCall = &core.OracleToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args}
	}

	return reply, nil
}

func (o *Oracle) buildParams(req core.OracleRequest) openai.ChatCompletionNewParams {
	model := o.opts.Model
	if req.Model != "" {
		model = req.Model
	}

	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               model,
		Temperature:         openai.Float(o.opts.Temperature),
		MaxCompletionTokens: openai.Int(o.opts.MaxCompletionTokens),
	}

	if len(req.Tools) == 0 {
		return params
	}

	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, t := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.Parameters,
			},
		}
	}

	params.Tools = tools

	return params
}

// buildMessages converts a transcript into chat messages. Assistant tool calls
// and tool responses keep their ids so the API can correlate them.
func buildMessages(req core.OracleRequest) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion

	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}

	for _, m := range req.Messages {
		switch m.Role {
		case core.RoleAssistant:
			if m.ToolCallID == "" {
				messages = append(messages, openai.AssistantMessage(m.Content))
				continue
			}

			args, err := json.Marshal(m.ToolArgs)
			if err != nil || m.ToolArgs == nil {
				args = []byte("{}")
			}

			assistant := &openai.ChatCompletionAssistantMessageParam{
				Role: "assistant",
				ToolCalls: []openai.ChatCompletionMessageToolCallParam{{
					ID:   m.ToolCallID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      m.ToolName,
						Arguments: string(args),
					},
				}},
			}

			if m.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(m.Content)}
			}

			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		case core.RoleTool:
			messages = append(messages, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	return messages
}
