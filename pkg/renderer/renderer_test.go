package renderer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbill/flowbill/pkg/renderer"
)

func TestTemplateRenderer_Render(t *testing.T) {
	t.Parallel()

	render := renderer.NewTemplateRenderer()
	data := renderer.RenderContext("run-1", "wf-1", map[string]any{
		"client_name":    "Acme",
		"invoice_number": "INV-42",
	})

	tests := []struct {
		name     string
		template string
		want     string
		wantErr  bool
	}{
		{name: "literal", template: "Hello", want: "Hello"},
		{name: "trigger field", template: "Hello {{ .trigger.client_name }}", want: "Hello Acme"},
		{name: "run metadata", template: "Run {{ .run.id }}", want: "Run run-1"},
		{name: "multiple fields", template: "{{ .trigger.invoice_number }} for {{ .trigger.client_name }}", want: "INV-42 for Acme"},
		{name: "missing key fails", template: "{{ .trigger.missing }}", wantErr: true},
		{name: "parse error", template: "{{ .trigger.client_name", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := render.Render(tt.template, data)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderContext_NilTriggerData(t *testing.T) {
	t.Parallel()

	data := renderer.RenderContext("run-1", "wf-1", nil)

	trigger, ok := data["trigger"].(map[string]any)
	require.True(t, ok)
	assert.Empty(t, trigger)
}
