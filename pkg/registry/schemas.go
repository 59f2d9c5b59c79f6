package registry

import "github.com/flowbill/flowbill/pkg/models"

func registerDefaultSchemas(registry *Registry) {
	registry.RegisterSchema(models.ActionSendEmail, sendEmailSchema())
	registry.RegisterSchema(models.ActionWait, waitSchema())
	registry.RegisterSchema(models.ActionConditional, conditionalSchema())
}

func sendEmailSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"recipient": map[string]any{
				"type":        "string",
				"description": "Recipient address or template rendered against trigger data",
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Subject template",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Body template",
			},
			"delay": map[string]any{
				"type":        "string",
				"description": "Optional Go duration; a positive delay queues the email instead of sending inline",
			},
		},
		"required":             []any{"subject", "body"},
		"additionalProperties": false,
	}
}

func waitSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"delay": map[string]any{
				"type":        "string",
				"description": "Go duration the run pauses before the next step",
			},
		},
		"required":             []any{"delay"},
		"additionalProperties": false,
	}
}

func conditionalSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"type":        "string",
				"description": "Boolean expression evaluated against trigger data",
			},
			"on_true": map[string]any{
				"type":        "string",
				"description": "Step ID to branch to when the condition holds",
			},
			"on_false": map[string]any{
				"type":        "string",
				"description": "Step ID to branch to when the condition does not hold",
			},
		},
		"required":             []any{"condition"},
		"additionalProperties": false,
	}
}
