// Package registry validates workflow step configurations against the JSON
// schema registered for each action type.
package registry

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/flowbill/flowbill/pkg/models"
)

type Registry struct {
	logger  *slog.Logger
	schemas map[models.ActionType]map[string]any
}

func NewRegistry(logger *slog.Logger) *Registry {
	registry := &Registry{
		logger:  logger,
		schemas: make(map[models.ActionType]map[string]any),
	}

	registerDefaultSchemas(registry)

	return registry
}

// RegisterSchema associates an action type with the JSON schema its step
// config must satisfy.
func (r *Registry) RegisterSchema(actionType models.ActionType, schema map[string]any) {
	r.schemas[actionType] = schema
}

// ValidateStep checks a step's config against the schema for its action type.
func (r *Registry) ValidateStep(step *models.WorkflowStep) error {
	schema, ok := r.schemas[step.ActionType]
	if !ok {
		return fmt.Errorf("action type '%s' not registered", step.ActionType)
	}

	config := step.Config
	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate step config: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return fmt.Errorf("%w: %s", models.ErrInvalidStepConfig, strings.Join(details, "; "))
	}

	return nil
}

// ValidateWorkflow validates every step of a workflow definition.
func (r *Registry) ValidateWorkflow(workflow *models.Workflow) error {
	for _, step := range workflow.Steps {
		if err := r.ValidateStep(step); err != nil {
			return fmt.Errorf("step %s: %w", step.ID, err)
		}
	}

	return nil
}

// HealthCheck reports whether every built-in action type has a schema.
func (r *Registry) HealthCheck() (map[string]bool, bool) {
	checks := make(map[string]bool)
	healthy := true

	for _, actionType := range []models.ActionType{models.ActionSendEmail, models.ActionWait, models.ActionConditional} {
		_, ok := r.schemas[actionType]
		checks[string(actionType)] = ok

		if !ok {
			healthy = false
		}
	}

	return checks, healthy
}
