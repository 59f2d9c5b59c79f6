package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// WorkflowStep is one step definition inside a workflow. Steps are strictly
// ordered by StepOrder within their workflow; ties are forbidden. A step's
// contract is immutable once a run references it.
type WorkflowStep struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"`
	Name       string         `json:"name"        validate:"required"`
	StepOrder  int            `json:"step_order"  validate:"gte=0"`
	ActionType ActionType     `json:"action_type" validate:"required"`
	Config     map[string]any `json:"config"`
}

var (
	ErrInvalidStepConfig = errors.New("invalid step configuration")
	ErrInvalidDelay      = errors.New("invalid delay duration")
)

// SendEmailConfig is the typed view of a send_email step's Config.
// Recipient, Subject and Body are templates rendered against the run's
// trigger data. A positive Delay hands delivery to the scheduled queue
// instead of sending inline.
type SendEmailConfig struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Delay     string `json:"delay,omitempty"`
}

// DelayDuration parses the optional delay. A missing delay means send now.
func (c SendEmailConfig) DelayDuration() (time.Duration, error) {
	if c.Delay == "" {
		return 0, nil
	}

	return parseDelay(c.Delay)
}

// WaitConfig is the typed view of a wait step's Config.
type WaitConfig struct {
	Delay string `json:"delay"`
}

func (c WaitConfig) DelayDuration() (time.Duration, error) {
	if c.Delay == "" {
		return 0, fmt.Errorf("%w: wait step requires a delay", ErrInvalidStepConfig)
	}

	return parseDelay(c.Delay)
}

// ConditionalConfig is the typed view of a conditional step's Config.
// Condition is an expression evaluated against the run's trigger data.
// OnTrue/OnFalse name the step to branch to for each outcome; an absent
// branch on the matching outcome skips the step.
type ConditionalConfig struct {
	Condition string `json:"condition"`
	OnTrue    string `json:"on_true,omitempty"`
	OnFalse   string `json:"on_false,omitempty"`
}

// SendEmailConfigFromStep decodes the step's config map.
func SendEmailConfigFromStep(step *WorkflowStep) (SendEmailConfig, error) {
	var config SendEmailConfig

	if err := decodeConfig(step.Config, &config); err != nil {
		return config, err
	}

	if config.Recipient == "" && config.Subject == "" && config.Body == "" {
		return config, fmt.Errorf("%w: send_email step has an empty config", ErrInvalidStepConfig)
	}

	return config, nil
}

func WaitConfigFromStep(step *WorkflowStep) (WaitConfig, error) {
	var config WaitConfig

	err := decodeConfig(step.Config, &config)

	return config, err
}

func ConditionalConfigFromStep(step *WorkflowStep) (ConditionalConfig, error) {
	var config ConditionalConfig

	if err := decodeConfig(step.Config, &config); err != nil {
		return config, err
	}

	if config.Condition == "" {
		return config, fmt.Errorf("%w: conditional step requires a condition", ErrInvalidStepConfig)
	}

	return config, nil
}

func decodeConfig(raw map[string]any, target any) error {
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStepConfig, err)
	}

	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStepConfig, err)
	}

	return nil
}

func parseDelay(raw string) (time.Duration, error) {
	delay, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDelay, raw)
	}

	if delay < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidDelay, raw)
	}

	return delay, nil
}
