package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbill/flowbill/pkg/models"
)

func TestSendEmailConfigFromStep(t *testing.T) {
	t.Parallel()

	step := &models.WorkflowStep{
		ActionType: models.ActionSendEmail,
		Config: map[string]any{
			"recipient": "{{ .trigger.email }}",
			"subject":   "Invoice {{ .trigger.invoice_number }}",
			"body":      "<p>Hello</p>",
			"delay":     "24h",
		},
	}

	config, err := models.SendEmailConfigFromStep(step)
	require.NoError(t, err)

	assert.Equal(t, "{{ .trigger.email }}", config.Recipient)
	assert.Equal(t, "Invoice {{ .trigger.invoice_number }}", config.Subject)

	delay, err := config.DelayDuration()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, delay)
}

func TestSendEmailConfigFromStep_EmptyConfig(t *testing.T) {
	t.Parallel()

	step := &models.WorkflowStep{
		ActionType: models.ActionSendEmail,
		Config:     map[string]any{},
	}

	_, err := models.SendEmailConfigFromStep(step)
	assert.ErrorIs(t, err, models.ErrInvalidStepConfig)
}

func TestSendEmailConfig_DelayDuration_NoDelay(t *testing.T) {
	t.Parallel()

	config := models.SendEmailConfig{Subject: "s", Body: "b"}

	delay, err := config.DelayDuration()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), delay)
}

func TestWaitConfigFromStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  map[string]any
		want    time.Duration
		wantErr error
	}{
		{name: "valid delay", config: map[string]any{"delay": "30m"}, want: 30 * time.Minute},
		{name: "missing delay", config: map[string]any{}, wantErr: models.ErrInvalidStepConfig},
		{name: "unparseable delay", config: map[string]any{"delay": "tomorrow"}, wantErr: models.ErrInvalidDelay},
		{name: "negative delay", config: map[string]any{"delay": "-5m"}, wantErr: models.ErrInvalidDelay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			step := &models.WorkflowStep{ActionType: models.ActionWait, Config: tt.config}

			config, err := models.WaitConfigFromStep(step)
			require.NoError(t, err)

			delay, err := config.DelayDuration()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, delay)
		})
	}
}

func TestConditionalConfigFromStep(t *testing.T) {
	t.Parallel()

	step := &models.WorkflowStep{
		ActionType: models.ActionConditional,
		Config: map[string]any{
			"condition": "trigger.amount > 100",
			"on_true":   "step-2",
		},
	}

	config, err := models.ConditionalConfigFromStep(step)
	require.NoError(t, err)

	assert.Equal(t, "trigger.amount > 100", config.Condition)
	assert.Equal(t, "step-2", config.OnTrue)
	assert.Empty(t, config.OnFalse)
}

func TestConditionalConfigFromStep_MissingCondition(t *testing.T) {
	t.Parallel()

	step := &models.WorkflowStep{
		ActionType: models.ActionConditional,
		Config:     map[string]any{"on_true": "step-2"},
	}

	_, err := models.ConditionalConfigFromStep(step)
	assert.ErrorIs(t, err, models.ErrInvalidStepConfig)
}
