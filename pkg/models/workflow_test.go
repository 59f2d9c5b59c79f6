package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowbill/flowbill/pkg/models"
)

func TestTriggerType_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		trigger models.TriggerType
		want    bool
	}{
		{name: "invoice created", trigger: models.TriggerInvoiceCreated, want: true},
		{name: "invoice overdue", trigger: models.TriggerInvoiceOverdue, want: true},
		{name: "client added", trigger: models.TriggerClientAdded, want: true},
		{name: "manual", trigger: models.TriggerManual, want: true},
		{name: "unknown", trigger: models.TriggerType("invoice.deleted"), want: false},
		{name: "empty", trigger: models.TriggerType(""), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.trigger.Valid())
		})
	}
}

func TestWorkflow_FirstStep(t *testing.T) {
	t.Parallel()

	workflow := &models.Workflow{
		Steps: []*models.WorkflowStep{
			{ID: "step-3", StepOrder: 3},
			{ID: "step-1", StepOrder: 1},
			{ID: "step-2", StepOrder: 2},
		},
	}

	first := workflow.FirstStep()
	assert.NotNil(t, first)
	assert.Equal(t, "step-1", first.ID)
}

func TestWorkflow_FirstStep_Empty(t *testing.T) {
	t.Parallel()

	workflow := &models.Workflow{}

	assert.Nil(t, workflow.FirstStep())
}

func TestWorkflow_NextStep(t *testing.T) {
	t.Parallel()

	workflow := &models.Workflow{
		Steps: []*models.WorkflowStep{
			{ID: "step-1", StepOrder: 1},
			{ID: "step-5", StepOrder: 5},
			{ID: "step-3", StepOrder: 3},
		},
	}

	tests := []struct {
		name       string
		afterOrder int
		wantID     string
	}{
		{name: "after first", afterOrder: 1, wantID: "step-3"},
		{name: "gap in orders", afterOrder: 3, wantID: "step-5"},
		{name: "between orders", afterOrder: 4, wantID: "step-5"},
		{name: "after last", afterOrder: 5, wantID: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			next := workflow.NextStep(tt.afterOrder)

			if tt.wantID == "" {
				assert.Nil(t, next)

				return
			}

			assert.NotNil(t, next)
			assert.Equal(t, tt.wantID, next.ID)
		})
	}
}

func TestWorkflow_StepByID(t *testing.T) {
	t.Parallel()

	workflow := &models.Workflow{
		Steps: []*models.WorkflowStep{
			{ID: "step-1", StepOrder: 1},
			{ID: "step-2", StepOrder: 2},
		},
	}

	assert.Equal(t, "step-2", workflow.StepByID("step-2").ID)
	assert.Nil(t, workflow.StepByID("missing"))
}
