package tool

import (
	"fmt"

	"github.com/hupe1980/agentstack/core"
)

// ArtifactTool saves and loads text artifacts attached to the calling
// ToolResult.
type ArtifactTool struct{}

// NewArtifactTool returns the artifact tool.
func NewArtifactTool() *ArtifactTool { return &ArtifactTool{} }

func (t *ArtifactTool) Name() string { return "artifact" }

func (t *ArtifactTool) Description() string {
	return "Saves text or code as an artifact, or loads an artifact by id. Supports operations: save, load, list."
}

func (t *ArtifactTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []string{"save", "load", "list"},
			},
			"name":        map[string]any{"type": "string", "description": "Artifact name for save"},
			"kind":        map[string]any{"type": "string", "enum": []string{string(core.ArtifactText), string(core.ArtifactCode)}},
			"content":     map[string]any{"type": "string", "description": "Artifact content for save"},
			"artifact_id": map[string]any{"type": "string", "description": "Artifact id for load"},
		},
		"required": []string{"operation"},
	}
}

func (t *ArtifactTool) Call(tc *core.ToolContext, args map[string]any) (*core.ToolOutput, error) {
	operation, err := stringArg(t.Name(), args, "operation", true)
	if err != nil {
		return nil, err
	}

	switch operation {
	case "save":
		name, err := stringArg(t.Name(), args, "name", true)
		if err != nil {
			return nil, err
		}

		kind, _ := args["kind"].(string)
		content, _ := args["content"].(string)

		a := tc.SaveText(name, core.ArtifactKind(kind), content)

		return core.Output(map[string]any{
			"artifact_id": a.ID,
			"name":        a.Name,
			"size":        len(content),
		}), nil
	case "load":
		id, err := stringArg(t.Name(), args, "artifact_id", true)
		if err != nil {
			return nil, err
		}

		data, err := tc.ReadArtifact(id)
		if err != nil {
			return nil, NewToolError(t.Name(), err.Error(), CodeNotFound)
		}

		return core.Output(map[string]any{
			"artifact_id": id,
			"content":     string(data),
			"size":        len(data),
		}), nil
	case "list":
		var items []map[string]any
		for _, a := range tc.Artifacts() {
			items = append(items, map[string]any{"artifact_id": a.ID, "name": a.Name, "kind": string(a.Kind)})
		}

		return core.Output(map[string]any{"artifacts": items, "count": len(items)}), nil
	default:
		return nil, NewToolError(t.Name(), fmt.Sprintf("unknown operation: %s", operation), CodeInvalidArgument)
	}
}
