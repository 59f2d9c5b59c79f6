// Package engine advances workflow run step states through their action
// semantics: waiting out delays, sending or scheduling emails and branching
// on conditions.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowbill/flowbill/pkg/eventbus"
	"github.com/flowbill/flowbill/pkg/events"
	"github.com/flowbill/flowbill/pkg/mailer"
	"github.com/flowbill/flowbill/pkg/models"
	"github.com/flowbill/flowbill/pkg/persistence"
	"github.com/flowbill/flowbill/pkg/renderer"
)

// DefaultSendTimeout bounds a single inline email delivery so one slow
// transport call cannot stall a whole sweep.
const DefaultSendTimeout = 30 * time.Second

type Engine struct {
	persistence persistence.Persistence
	mailer      mailer.Mailer
	renderer    renderer.Renderer
	eventBus    eventbus.EventBus
	logger      *slog.Logger
	sendTimeout time.Duration
}

// Outcome is the resolution of one AdvanceStep call.
type Outcome struct {
	Status     models.StepStatus
	NextStepID string
}

// Result aggregates one AdvanceDue pass. Advanced counts states that reached
// completed or skipped, Failed counts states marked failed.
type Result struct {
	Processed int `json:"processed"`
	Advanced  int `json:"advanced"`
	Failed    int `json:"failed"`
}

func NewEngine(persistence persistence.Persistence, mailer mailer.Mailer, renderer renderer.Renderer, eventBus eventbus.EventBus, logger *slog.Logger) *Engine {
	return &Engine{
		persistence: persistence,
		mailer:      mailer,
		renderer:    renderer,
		eventBus:    eventBus,
		logger:      logger,
		sendTimeout: DefaultSendTimeout,
	}
}

// AdvanceDue advances every pending or waiting step state that is due at the
// given time. States are independent units of work: one state's failure is
// recorded on that state and never stops the rest of the pass.
func (e *Engine) AdvanceDue(ctx context.Context, now time.Time) (Result, error) {
	states, err := e.persistence.ActiveStepStates(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list active step states: %w", err)
	}

	result := Result{}

	for _, stale := range states {
		// Reload right before acting: the listing may be stale against a
		// concurrent advancement of the same state.
		state, err := e.persistence.StepStateByID(ctx, stale.ID)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to reload step state", "step_state_id", stale.ID, "error", err)

			continue
		}

		if state.Status.Terminal() {
			continue
		}

		run, err := e.persistence.RunByID(ctx, state.RunID)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to load run for step state", "step_state_id", state.ID, "run_id", state.RunID, "error", err)

			continue
		}

		result.Processed++

		outcome, err := e.AdvanceStep(ctx, now, run, state)
		if err != nil {
			result.Failed++

			e.logger.ErrorContext(ctx, "Step advancement failed",
				"run_id", state.RunID,
				"step_id", state.StepID,
				"error", err)

			continue
		}

		if outcome.Status == models.StepStatusCompleted || outcome.Status == models.StepStatusSkipped {
			result.Advanced++
		}
	}

	return result, nil
}

// AdvanceStep executes one step state's action for the run. A returned error
// means the state was resolved as failed (or could not be persisted); the
// caller never retries.
func (e *Engine) AdvanceStep(ctx context.Context, now time.Time, run *models.WorkflowRun, state *models.StepState) (Outcome, error) {
	workflow, err := e.persistence.WorkflowByID(ctx, state.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return e.skip(ctx, state, "workflow no longer exists", now)
		}

		return Outcome{}, fmt.Errorf("failed to load workflow %s: %w", state.WorkflowID, err)
	}

	if !workflow.Active {
		return e.skip(ctx, state, "workflow deactivated", now)
	}

	step := workflow.StepByID(state.StepID)
	if step == nil {
		return e.fail(ctx, state, fmt.Errorf("step %s not found in workflow %s", state.StepID, workflow.ID), now)
	}

	switch step.ActionType {
	case models.ActionWait:
		return e.executeWait(ctx, workflow, run, state, step, now)
	case models.ActionSendEmail:
		return e.executeSendEmail(ctx, workflow, run, state, step, now)
	case models.ActionConditional:
		return e.executeConditional(ctx, workflow, run, state, step, now)
	default:
		return e.fail(ctx, state, fmt.Errorf("unknown action type %q", step.ActionType), now)
	}
}

// executeWait holds the state in waiting until EnteredAt+delay, then completes
// it and schedules the next step by order.
func (e *Engine) executeWait(ctx context.Context, workflow *models.Workflow, run *models.WorkflowRun, state *models.StepState, step *models.WorkflowStep, now time.Time) (Outcome, error) {
	config, err := models.WaitConfigFromStep(step)
	if err != nil {
		return e.fail(ctx, state, err, now)
	}

	delay, err := config.DelayDuration()
	if err != nil {
		return e.fail(ctx, state, err, now)
	}

	due := state.EnteredAt.Add(delay)
	if now.Before(due) {
		if state.Status != models.StepStatusWaiting {
			err = e.saveStatus(ctx, state, models.StepStatusWaiting, now, "")
			if err != nil {
				return Outcome{}, err
			}
		}

		return Outcome{Status: models.StepStatusWaiting}, nil
	}

	return e.complete(ctx, workflow, run, state, step, workflow.NextStep(step.StepOrder), now)
}

// executeSendEmail renders and either delivers the email inline or hands it
// to the scheduled queue when the step configures a delay.
func (e *Engine) executeSendEmail(ctx context.Context, workflow *models.Workflow, run *models.WorkflowRun, state *models.StepState, step *models.WorkflowStep, now time.Time) (Outcome, error) {
	config, err := models.SendEmailConfigFromStep(step)
	if err != nil {
		return e.fail(ctx, state, err, now)
	}

	delay, err := config.DelayDuration()
	if err != nil {
		return e.fail(ctx, state, err, now)
	}

	data := renderer.RenderContext(run.ID, run.WorkflowID, run.TriggerData)

	recipient, err := e.resolveRecipient(config, run, data)
	if err != nil {
		return e.fail(ctx, state, err, now)
	}

	subject, err := e.renderer.Render(config.Subject, data)
	if err != nil {
		return e.fail(ctx, state, fmt.Errorf("failed to render subject: %w", err), now)
	}

	body, err := e.renderer.Render(config.Body, data)
	if err != nil {
		return e.fail(ctx, state, fmt.Errorf("failed to render body: %w", err), now)
	}

	if delay > 0 {
		email := models.NewScheduledEmail(uuid.New().String(), recipient, subject, body, workflow.OwnerID, now.Add(delay))

		err = e.persistence.SaveScheduledEmail(ctx, email)
		if err != nil {
			return e.fail(ctx, state, fmt.Errorf("failed to schedule email: %w", err), now)
		}

		e.appendLog(ctx, workflow.ID, run.ID, &step.ID, models.LogActionEmailQueued, models.LogStatusSuccess,
			fmt.Sprintf("email to %s scheduled for %s", recipient, email.ScheduledAt.Format(time.RFC3339)),
			map[string]any{"scheduled_email_id": email.ID})

		return e.complete(ctx, workflow, run, state, step, workflow.NextStep(step.StepOrder), now)
	}

	err = e.saveStatus(ctx, state, models.StepStatusRunning, now, "")
	if err != nil {
		return Outcome{}, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	err = e.mailer.Send(sendCtx, mailer.Message{
		To:      recipient,
		Subject: subject,
		HTML:    body,
	})
	if err != nil {
		e.appendLog(ctx, workflow.ID, run.ID, &step.ID, models.LogActionEmailFailed, models.LogStatusFailure,
			fmt.Sprintf("email to %s failed: %v", recipient, err), nil)

		return e.fail(ctx, state, fmt.Errorf("email delivery failed: %w", err), now)
	}

	e.appendLog(ctx, workflow.ID, run.ID, &step.ID, models.LogActionEmailSent, models.LogStatusSuccess,
		"email sent to "+recipient, nil)

	return e.complete(ctx, workflow, run, state, step, workflow.NextStep(step.StepOrder), now)
}

// executeConditional evaluates the expression and branches to the configured
// step for the outcome; an outcome without a branch skips the step and ends
// the run.
func (e *Engine) executeConditional(ctx context.Context, workflow *models.Workflow, run *models.WorkflowRun, state *models.StepState, step *models.WorkflowStep, now time.Time) (Outcome, error) {
	config, err := models.ConditionalConfigFromStep(step)
	if err != nil {
		return e.fail(ctx, state, err, now)
	}

	env := map[string]any{
		"trigger": run.TriggerData,
		"run": map[string]any{
			"id":        run.ID,
			"entity_id": run.EntityID,
		},
		"workflow": map[string]any{
			"id":   workflow.ID,
			"name": workflow.Name,
		},
	}

	matched, err := EvaluateCondition(config.Condition, env)
	if err != nil {
		return e.fail(ctx, state, err, now)
	}

	target := config.OnFalse
	if matched {
		target = config.OnTrue
	}

	if target == "" {
		return e.skip(ctx, state, fmt.Sprintf("condition evaluated %t with no branch configured", matched), now)
	}

	next := workflow.StepByID(target)
	if next == nil {
		return e.fail(ctx, state, fmt.Errorf("branch target step %s not found in workflow %s", target, workflow.ID), now)
	}

	return e.complete(ctx, workflow, run, state, step, next, now)
}

func (e *Engine) resolveRecipient(config models.SendEmailConfig, run *models.WorkflowRun, data map[string]any) (string, error) {
	if config.Recipient != "" {
		recipient, err := e.renderer.Render(config.Recipient, data)
		if err != nil {
			return "", fmt.Errorf("failed to render recipient: %w", err)
		}

		if recipient != "" {
			return recipient, nil
		}
	}

	if fallback, ok := run.TriggerData["email"].(string); ok && fallback != "" {
		return fallback, nil
	}

	return "", fmt.Errorf("no recipient: config is empty and trigger data has no email")
}

// complete resolves the state and creates the next step's pending state,
// keeping exactly one active state per run.
func (e *Engine) complete(ctx context.Context, workflow *models.Workflow, run *models.WorkflowRun, state *models.StepState, step *models.WorkflowStep, next *models.WorkflowStep, now time.Time) (Outcome, error) {
	err := e.saveStatus(ctx, state, models.StepStatusCompleted, now, "")
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{Status: models.StepStatusCompleted}

	if next != nil {
		nextState := models.NewStepState(uuid.New().String(), run, next.ID, now)

		err = e.persistence.SaveStepState(ctx, nextState)
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to create next step state: %w", err)
		}

		outcome.NextStepID = next.ID
	}

	e.appendLog(ctx, workflow.ID, run.ID, &step.ID, models.LogActionStepDone, models.LogStatusSuccess,
		fmt.Sprintf("step %s completed", step.Name),
		map[string]any{"next_step_id": outcome.NextStepID})

	e.publish(ctx, run.ID, events.StepCompleted{
		BaseEvent: events.BaseEvent{
			Type:       events.StepCompletedEvent,
			Timestamp:  now,
			WorkflowID: workflow.ID,
			OwnerID:    workflow.OwnerID,
		},
		RunID:      run.ID,
		StepID:     step.ID,
		ActionType: step.ActionType,
		NextStepID: outcome.NextStepID,
	})

	return outcome, nil
}

// fail resolves the state as failed and reports the causal error. Failed is
// terminal: the engine never retries a failed step.
func (e *Engine) fail(ctx context.Context, state *models.StepState, cause error, now time.Time) (Outcome, error) {
	err := e.saveStatus(ctx, state, models.StepStatusFailed, now, cause.Error())
	if err != nil {
		return Outcome{}, err
	}

	e.appendLog(ctx, state.WorkflowID, state.RunID, &state.StepID, models.LogActionStepFailed, models.LogStatusFailure,
		cause.Error(), nil)

	e.publish(ctx, state.RunID, events.StepFailed{
		BaseEvent: events.BaseEvent{
			Type:       events.StepFailedEvent,
			Timestamp:  now,
			WorkflowID: state.WorkflowID,
		},
		RunID:  state.RunID,
		StepID: state.StepID,
		Error:  cause.Error(),
	})

	return Outcome{Status: models.StepStatusFailed}, cause
}

func (e *Engine) skip(ctx context.Context, state *models.StepState, reason string, now time.Time) (Outcome, error) {
	err := e.saveStatus(ctx, state, models.StepStatusSkipped, now, "")
	if err != nil {
		return Outcome{}, err
	}

	e.appendLog(ctx, state.WorkflowID, state.RunID, &state.StepID, models.LogActionStepSkipped, models.LogStatusInfo,
		reason, nil)

	e.publish(ctx, state.RunID, events.StepSkipped{
		BaseEvent: events.BaseEvent{
			Type:       events.StepSkippedEvent,
			Timestamp:  now,
			WorkflowID: state.WorkflowID,
		},
		RunID:  state.RunID,
		StepID: state.StepID,
		Reason: reason,
	})

	return Outcome{Status: models.StepStatusSkipped}, nil
}

// saveStatus enforces the step state machine. A terminal resolution may pass
// through running implicitly when the whole action resolved in one pass.
func (e *Engine) saveStatus(ctx context.Context, state *models.StepState, status models.StepStatus, now time.Time, errorMessage string) error {
	if state.Status != status && !state.Status.CanTransitionTo(status) {
		viaRunning := state.Status.CanTransitionTo(models.StepStatusRunning) &&
			models.StepStatusRunning.CanTransitionTo(status)
		if !viaRunning {
			return fmt.Errorf("illegal step status transition %s -> %s", state.Status, status)
		}
	}

	state.Status = status
	state.UpdatedAt = now
	state.ErrorMessage = errorMessage

	err := e.persistence.SaveStepState(ctx, state)
	if err != nil {
		return fmt.Errorf("failed to save step state %s: %w", state.ID, err)
	}

	return nil
}

func (e *Engine) appendLog(ctx context.Context, workflowID, runID string, stepID *string, action string, status models.LogStatus, message string, data map[string]any) {
	err := e.persistence.AppendLog(ctx, &models.WorkflowLog{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		RunID:      runID,
		StepID:     stepID,
		Action:     action,
		Status:     status,
		Message:    message,
		Data:       data,
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to append workflow log", "workflow_id", workflowID, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.eventBus == nil {
		return
	}

	err := e.eventBus.Publish(ctx, key, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
