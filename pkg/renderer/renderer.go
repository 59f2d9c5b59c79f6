// Package renderer provides template rendering for email subjects and bodies.
package renderer

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Renderer turns a template and a variable map into final text. Render errors
// are treated as step action failures by the engine.
type Renderer interface {
	Render(templateStr string, data map[string]any) (string, error)
}

// TemplateRenderer renders with text/template. Trigger data is exposed under
// .trigger so templates read like {{ .trigger.client_name }}.
type TemplateRenderer struct{}

func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{}
}

func (r *TemplateRenderer) Render(templateStr string, data map[string]any) (string, error) {
	tmpl, err := template.
		New("email").
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
		}).
		Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}

// RenderContext builds the variable map a run's templates are rendered with.
func RenderContext(runID, workflowID string, triggerData map[string]any) map[string]any {
	if triggerData == nil {
		triggerData = map[string]any{}
	}

	return map[string]any{
		"trigger": triggerData,
		"run": map[string]any{
			"id":          runID,
			"workflow_id": workflowID,
		},
	}
}
