package core

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentstack/internal/util"
)

// MessageSource lets custom interaction kinds contribute to oracle transcripts.
type MessageSource interface {
	Messages() []Message
}

// omittedResult stands in for tool results excluded from context so that
// every oracle tool call keeps a matching response.
const omittedResult = "[result omitted from context]"

// BuildTranscript converts a branch-visible history into oracle messages.
func BuildTranscript(history []Interaction) ([]Message, error) {
	messages := []Message{}

	for _, it := range history {
		switch v := it.(type) {
		case *TaskDefinition:
			prompt, err := taskPrompt(v.Task)
			if err != nil {
				return nil, err
			}

			messages = append(messages, Message{Role: RoleUser, Content: prompt})
		case *OracleResponse:
			m := Message{Role: RoleAssistant, Content: v.Content}
			if v.ToolCall != nil {
				m.ToolCallID = v.ToolCall.ID
				m.ToolName = v.ToolCall.Name
				m.ToolArgs = v.ToolCall.Args
			}

			messages = append(messages, m)
		case *ToolResult:
			content := omittedResult
			if v.IncludeInContext {
				content = stringify(v.Result)
			}

			if v.ToolCallID != "" {
				messages = append(messages, Message{Role: RoleTool, Content: content, ToolCallID: v.ToolCallID, ToolName: v.Tool})
				continue
			}

			if v.IncludeInContext {
				messages = append(messages, Message{Role: RoleUser, Content: fmt.Sprintf("Tool %s returned: %s", v.Tool, content)})
			}
		case *AgentResult:
			messages = append(messages, Message{
				Role:    RoleUser,
				Content: fmt.Sprintf("Agent %s finished task %s (%s): %s", v.ChildAgentID, v.TaskName, v.FinishType, stringify(v.Result)),
			})
		case MessageSource:
			messages = append(messages, v.Messages()...)
		}
	}

	return messages, nil
}

// taskPrompt renders the task's user template with its bound values.
func taskPrompt(t *Task) (string, error) {
	if t == nil {
		return "", nil
	}

	text := t.UserTemplate
	if text == "" {
		text = t.Description
	}

	if text == "" {
		text = t.Name
	}

	out, err := util.RenderTemplate(text, t.Values())
	if err != nil {
		return "", fmt.Errorf("render task %s: %w", t.Name, err)
	}

	return out, nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
