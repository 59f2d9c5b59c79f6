// Package memory provides an in-memory persistence implementation used by
// tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowbill/flowbill/pkg/models"
	"github.com/flowbill/flowbill/pkg/persistence"
)

// Persistence keeps the entire engine state in process memory. Reads return
// copies so callers never share mutable state with the store.
type Persistence struct {
	mu         sync.RWMutex
	workflows  map[string]*models.Workflow
	runs       map[string]*models.WorkflowRun
	stepStates map[string]*models.StepState
	emails     map[string]*models.ScheduledEmail
	logs       []*models.WorkflowLog
}

// NewPersistence creates an empty in-memory persistence layer.
func NewPersistence() *Persistence {
	return &Persistence{
		workflows:  make(map[string]*models.Workflow),
		runs:       make(map[string]*models.WorkflowRun),
		stepStates: make(map[string]*models.StepState),
		emails:     make(map[string]*models.ScheduledEmail),
		logs:       make([]*models.WorkflowLog, 0),
	}
}

func (p *Persistence) Workflows(ctx context.Context, ownerID string) ([]*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflows := make([]*models.Workflow, 0)

	for _, workflow := range p.workflows {
		if workflow.OwnerID == ownerID {
			workflows = append(workflows, copyWorkflow(workflow))
		}
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflow, exists := p.workflows[id]
	if !exists {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return copyWorkflow(workflow), nil
}

func (p *Persistence) ActiveWorkflowsByTrigger(ctx context.Context, trigger models.TriggerType, ownerID string) ([]*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflows := make([]*models.Workflow, 0)

	for _, workflow := range p.workflows {
		if workflow.Active && workflow.TriggerType == trigger && workflow.OwnerID == ownerID {
			workflows = append(workflows, copyWorkflow(workflow))
		}
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	seenOrders := make(map[int]bool, len(workflow.Steps))
	for _, step := range workflow.Steps {
		if seenOrders[step.StepOrder] {
			return persistence.NewWorkflowError("Save", workflow.ID, persistence.ErrDuplicateStepOrder)
		}

		seenOrders[step.StepOrder] = true
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now
	p.workflows[workflow.ID] = copyWorkflow(workflow)

	return nil
}

func (p *Persistence) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	stored := *run
	p.runs[run.ID] = &stored

	return nil
}

func (p *Persistence) RunByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	run, exists := p.runs[id]
	if !exists {
		return nil, persistence.ErrRunNotFound
	}

	result := *run

	return &result, nil
}

func (p *Persistence) SaveStepState(ctx context.Context, state *models.StepState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	state.UpdatedAt = time.Now().UTC()
	stored := *state
	p.stepStates[state.ID] = &stored

	return nil
}

func (p *Persistence) StepStateByID(ctx context.Context, id string) (*models.StepState, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	state, exists := p.stepStates[id]
	if !exists {
		return nil, persistence.ErrStepStateNotFound
	}

	result := *state

	return &result, nil
}

func (p *Persistence) StepStatesByRun(ctx context.Context, runID string) ([]*models.StepState, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	states := make([]*models.StepState, 0)

	for _, state := range p.stepStates {
		if state.RunID == runID {
			result := *state
			states = append(states, &result)
		}
	}

	sortStates(states)

	return states, nil
}

func (p *Persistence) ActiveStepStates(ctx context.Context) ([]*models.StepState, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	states := make([]*models.StepState, 0)

	for _, state := range p.stepStates {
		if state.Status == models.StepStatusPending || state.Status == models.StepStatusWaiting {
			result := *state
			states = append(states, &result)
		}
	}

	sortStates(states)

	return states, nil
}

func (p *Persistence) AppendLog(ctx context.Context, entry *models.WorkflowLog) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	stored := *entry
	p.logs = append(p.logs, &stored)

	return nil
}

func (p *Persistence) LogsByRun(ctx context.Context, runID string, limit int) ([]*models.WorkflowLog, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := make([]*models.WorkflowLog, 0)

	for _, entry := range p.logs {
		if entry.RunID != runID {
			continue
		}

		result := *entry
		entries = append(entries, &result)

		if limit > 0 && len(entries) >= limit {
			break
		}
	}

	return entries, nil
}

func (p *Persistence) SaveScheduledEmail(ctx context.Context, email *models.ScheduledEmail) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	if email.CreatedAt.IsZero() {
		email.CreatedAt = now
	}

	email.UpdatedAt = now
	stored := *email
	p.emails[email.ID] = &stored

	return nil
}

func (p *Persistence) ScheduledEmailByID(ctx context.Context, id string) (*models.ScheduledEmail, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	email, exists := p.emails[id]
	if !exists {
		return nil, persistence.NewScheduledEmailError("GetByID", id, persistence.ErrScheduledEmailNotFound)
	}

	result := *email

	return &result, nil
}

func (p *Persistence) DueScheduledEmails(ctx context.Context, before time.Time) ([]*models.ScheduledEmail, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	emails := make([]*models.ScheduledEmail, 0)

	for _, email := range p.emails {
		if email.Status == models.ScheduledEmailStatusScheduled && !email.ScheduledAt.After(before) {
			result := *email
			emails = append(emails, &result)
		}
	}

	sort.Slice(emails, func(i, j int) bool {
		return emails[i].ScheduledAt.Before(emails[j].ScheduledAt)
	})

	return emails, nil
}

func (p *Persistence) TransitionScheduledEmail(ctx context.Context, id string, from, to models.ScheduledEmailStatus, sentAt *time.Time, errorMessage string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	email, exists := p.emails[id]
	if !exists {
		return persistence.NewScheduledEmailError("Transition", id, persistence.ErrScheduledEmailNotFound)
	}

	if email.Status != from {
		return persistence.NewScheduledEmailError("Transition", id, persistence.ErrStatusConflict)
	}

	email.Status = to
	email.SentAt = sentAt
	email.ErrorMessage = errorMessage
	email.UpdatedAt = time.Now().UTC()

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return nil
}

func (p *Persistence) Close(ctx context.Context) error {
	return nil
}

func copyWorkflow(workflow *models.Workflow) *models.Workflow {
	result := *workflow
	result.Steps = make([]*models.WorkflowStep, len(workflow.Steps))

	for i, step := range workflow.Steps {
		stepCopy := *step
		result.Steps[i] = &stepCopy
	}

	return &result
}

func sortStates(states []*models.StepState) {
	sort.Slice(states, func(i, j int) bool {
		if states[i].EnteredAt.Equal(states[j].EnteredAt) {
			return states[i].ID < states[j].ID
		}

		return states[i].EnteredAt.Before(states[j].EnteredAt)
	})
}
