package util

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

var (
	templateCache sync.Map // text -> *template.Template

	templateFuncs = template.FuncMap{
		"default": func(fallback, v any) any {
			if v == nil || v == "" {
				return fallback
			}

			return v
		},
		"json": func(v any) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
		"join": func(sep string, items []any) string {
			parts := make([]string, len(items))
			for i, it := range items {
				parts[i] = fmt.Sprint(it)
			}

			return strings.Join(parts, sep)
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"trim":  strings.TrimSpace,
	}
)

// RenderTemplate renders a task or system prompt against bound values. Text
// without template markers is returned unchanged. Parsed templates are cached
// by their text since the same prompt is rendered on every oracle ask.
func RenderTemplate(text string, values map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := parse(text)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, values); err != nil {
		return "", err
	}

	return sb.String(), nil
}

func parse(text string) (*template.Template, error) {
	if t, ok := templateCache.Load(text); ok {
		return t.(*template.Template), nil
	}

	t, err := template.New("prompt").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return nil, err
	}

	templateCache.Store(text, t)

	return t, nil
}
