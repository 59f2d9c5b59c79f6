// Package dispatcher matches incoming business events against active
// workflow definitions and instantiates runs.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowbill/flowbill/pkg/eventbus"
	"github.com/flowbill/flowbill/pkg/events"
	"github.com/flowbill/flowbill/pkg/models"
	"github.com/flowbill/flowbill/pkg/persistence"
)

type Dispatcher struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	logger      *slog.Logger
}

// Result reports how many workflows an event instantiated. "No subscribers"
// is a normal outcome, not a failure.
type Result struct {
	Triggered int `json:"triggered"`
	Failed    int `json:"failed"`
}

func NewDispatcher(persistence persistence.Persistence, eventBus eventbus.EventBus, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		persistence: persistence,
		eventBus:    eventBus,
		logger:      logger,
	}
}

// Dispatch finds every active workflow of the owner subscribed to the
// trigger type and instantiates one run per match. Each match is an
// independent unit of work: a failure is logged and counted but never stops
// the remaining matches.
func (d *Dispatcher) Dispatch(ctx context.Context, trigger models.TriggerType, ownerID string, payload map[string]any) (Result, error) {
	if !trigger.Valid() {
		return Result{}, fmt.Errorf("unknown trigger type %q", trigger)
	}

	if ownerID == "" {
		return Result{}, fmt.Errorf("owner id is required")
	}

	workflows, err := d.persistence.ActiveWorkflowsByTrigger(ctx, trigger, ownerID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to match workflows for trigger %s: %w", trigger, err)
	}

	result := Result{}

	for _, workflow := range workflows {
		err := d.instantiate(ctx, workflow, trigger, payload)
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to instantiate workflow",
				"workflow_id", workflow.ID,
				"trigger_type", trigger,
				"error", err)

			d.appendLog(ctx, &models.WorkflowLog{
				ID:         uuid.New().String(),
				WorkflowID: workflow.ID,
				Action:     models.LogActionTrigger,
				Status:     models.LogStatusFailure,
				Message:    "workflow instantiation failed: " + err.Error(),
			})

			result.Failed++

			continue
		}

		result.Triggered++
	}

	d.logger.InfoContext(ctx, "Dispatched event",
		"trigger_type", trigger,
		"owner_id", ownerID,
		"triggered", result.Triggered,
		"failed", result.Failed)

	return result, nil
}

func (d *Dispatcher) instantiate(ctx context.Context, workflow *models.Workflow, trigger models.TriggerType, payload map[string]any) error {
	now := time.Now().UTC()

	run := &models.WorkflowRun{
		ID:          uuid.New().String(),
		WorkflowID:  workflow.ID,
		TriggerType: trigger,
		EntityID:    entityIDFromPayload(payload),
		TriggerData: payload,
		CreatedAt:   now,
	}

	err := d.persistence.CreateRun(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	first := workflow.FirstStep()
	if first != nil {
		state := models.NewStepState(uuid.New().String(), run, first.ID, now)

		err = d.persistence.SaveStepState(ctx, state)
		if err != nil {
			return fmt.Errorf("failed to create first step state: %w", err)
		}
	}

	d.appendLog(ctx, &models.WorkflowLog{
		ID:         uuid.New().String(),
		WorkflowID: workflow.ID,
		RunID:      run.ID,
		Action:     models.LogActionTrigger,
		Status:     models.LogStatusSuccess,
		Message:    fmt.Sprintf("workflow triggered by %s", trigger),
		Data:       map[string]any{"entity_id": run.EntityID},
	})

	d.publish(ctx, run.ID, events.RunTriggered{
		BaseEvent: events.BaseEvent{
			Type:       events.RunTriggeredEvent,
			Timestamp:  now,
			WorkflowID: workflow.ID,
			OwnerID:    workflow.OwnerID,
		},
		RunID:       run.ID,
		TriggerType: trigger,
		EntityID:    run.EntityID,
		TriggerData: payload,
	})

	return nil
}

// appendLog writes an audit entry; audit failures are logged but never fail
// the dispatch itself.
func (d *Dispatcher) appendLog(ctx context.Context, entry *models.WorkflowLog) {
	err := d.persistence.AppendLog(ctx, entry)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to append workflow log", "workflow_id", entry.WorkflowID, "error", err)
	}
}

func (d *Dispatcher) publish(ctx context.Context, key string, event eventbus.Event) {
	if d.eventBus == nil {
		return
	}

	err := d.eventBus.Publish(ctx, key, event)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func entityIDFromPayload(payload map[string]any) string {
	raw, exists := payload["entity_id"]
	if !exists {
		return ""
	}

	switch value := raw.(type) {
	case string:
		return value
	case fmt.Stringer:
		return value.String()
	default:
		return fmt.Sprintf("%v", value)
	}
}
