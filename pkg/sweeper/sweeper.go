// Package sweeper runs the periodic maintenance pass: drain due scheduled
// emails, then advance due workflow step states.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowbill/flowbill/pkg/engine"
	"github.com/flowbill/flowbill/pkg/eventbus"
	"github.com/flowbill/flowbill/pkg/events"
	"github.com/flowbill/flowbill/pkg/otelhelper"
	"github.com/flowbill/flowbill/pkg/schedqueue"
)

// DefaultInterval is the sweep cadence when none is configured.
const DefaultInterval = 1 * time.Minute

// Sweeper is the single logical scheduler of the system. Overlap prevention
// is the deployment's job: run one sweeper, or accept that the queue's
// compare-and-set transitions make concurrent sweeps safe but wasteful.
type Sweeper struct {
	queue    *schedqueue.Queue
	engine   *engine.Engine
	eventBus eventbus.EventBus
	logger   *slog.Logger
	tracer   trace.Tracer
	interval time.Duration
	schedule cron.Schedule
	done     chan bool
	started  bool
	mu       sync.RWMutex
}

// Outcome aggregates one sweep: the email phase and the workflow phase.
type Outcome struct {
	Emails    schedqueue.SweepResult `json:"emails"`
	Workflows engine.Result          `json:"workflows"`
	Duration  time.Duration          `json:"duration"`
}

func NewSweeper(queue *schedqueue.Queue, engine *engine.Engine, eventBus eventbus.EventBus, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		queue:    queue,
		engine:   engine,
		eventBus: eventBus,
		logger:   logger,
		interval: DefaultInterval,
	}
}

func (s *Sweeper) WithTracer(tracer trace.Tracer) *Sweeper {
	s.tracer = tracer

	return s
}

// SetCadence accepts either a Go duration ("90s", "5m") or a standard cron
// expression ("*/5 * * * *").
func (s *Sweeper) SetCadence(raw string) error {
	if interval, err := time.ParseDuration(raw); err == nil {
		if interval <= 0 {
			return fmt.Errorf("sweep interval %q must be positive", raw)
		}

		s.interval = interval
		s.schedule = nil

		return nil
	}

	schedule, err := cron.ParseStandard(raw)
	if err != nil {
		return fmt.Errorf("invalid sweep cadence %q: %w", raw, err)
	}

	s.schedule = schedule

	return nil
}

// RunOnce executes one sweep: emails first, then workflow advancement. The
// phases are isolated; a failing phase is logged and never prevents the
// other one from running.
func (s *Sweeper) RunOnce(ctx context.Context) Outcome {
	var span trace.Span

	if s.tracer != nil {
		ctx, span = otelhelper.StartSpan(ctx, s.tracer, "sweep")
		defer span.End()
	}

	start := time.Now().UTC()

	emails := s.queue.SweepDue(ctx, start)

	workflows, err := s.engine.AdvanceDue(ctx, time.Now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Workflow advancement phase failed", "error", err)

		if span != nil {
			otelhelper.SetError(span, err)
		}
	}

	outcome := Outcome{
		Emails:    emails,
		Workflows: workflows,
		Duration:  time.Since(start),
	}

	if span != nil {
		span.SetAttributes(
			attribute.Int("flowbill.sweep.emails_processed", emails.Processed),
			attribute.Int("flowbill.sweep.emails_sent", emails.Sent),
			attribute.Int("flowbill.sweep.emails_failed", emails.Failed),
			attribute.Int("flowbill.sweep.workflows_processed", workflows.Processed),
			attribute.Int("flowbill.sweep.workflows_failed", workflows.Failed),
		)
	}

	s.logger.InfoContext(ctx, "Sweep completed",
		"emails_processed", emails.Processed,
		"emails_sent", emails.Sent,
		"emails_failed", emails.Failed,
		"workflows_processed", workflows.Processed,
		"workflows_advanced", workflows.Advanced,
		"workflows_failed", workflows.Failed,
		"duration", outcome.Duration)

	s.publish(ctx, events.SweepCompleted{
		BaseEvent: events.BaseEvent{
			Type:      events.SweepCompletedEvent,
			Timestamp: start,
		},
		EmailsProcessed:    emails.Processed,
		EmailsSent:         emails.Sent,
		EmailsFailed:       emails.Failed,
		WorkflowsProcessed: workflows.Processed,
		WorkflowsFailed:    workflows.Failed,
		Duration:           outcome.Duration,
	})

	return outcome
}

// Start begins the periodic sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info("Starting sweeper", "interval", s.interval, "cron", s.schedule != nil)

	s.done = make(chan bool)
	s.started = true

	go s.loop(ctx)

	return nil
}

// Stop gracefully shuts down the sweep loop.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info("Stopping sweeper")

	select {
	case s.done <- true:
	default:
	}

	s.started = false

	return nil
}

func (s *Sweeper) loop(ctx context.Context) {
	timer := time.NewTimer(s.untilNext(time.Now()))
	defer timer.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			s.RunOnce(ctx)
			timer.Reset(s.untilNext(time.Now()))
		}
	}
}

func (s *Sweeper) untilNext(now time.Time) time.Duration {
	if s.schedule == nil {
		return s.interval
	}

	wait := time.Until(s.schedule.Next(now))
	if wait < 0 {
		wait = 0
	}

	return wait
}

func (s *Sweeper) publish(ctx context.Context, event eventbus.Event) {
	if s.eventBus == nil {
		return
	}

	err := s.eventBus.Publish(ctx, "sweep", event)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
