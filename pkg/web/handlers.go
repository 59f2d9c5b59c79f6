// Package web provides HTTP handlers for the automation engine API.
package web

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/flowbill/flowbill/pkg/dispatcher"
	"github.com/flowbill/flowbill/pkg/models"
	"github.com/flowbill/flowbill/pkg/persistence"
	"github.com/flowbill/flowbill/pkg/registry"
	"github.com/flowbill/flowbill/pkg/schedqueue"
	"github.com/flowbill/flowbill/pkg/sweeper"
)

type APIHandlers struct {
	persistence persistence.Persistence
	dispatcher  *dispatcher.Dispatcher
	queue       *schedqueue.Queue
	sweeper     *sweeper.Sweeper
	registry    *registry.Registry
	validator   *validator.Validate
	sweepSecret string
}

func NewAPIHandlers(
	persistence persistence.Persistence,
	dispatcher *dispatcher.Dispatcher,
	queue *schedqueue.Queue,
	sweeper *sweeper.Sweeper,
	registry *registry.Registry,
	validator *validator.Validate,
	sweepSecret string,
) *APIHandlers {
	return &APIHandlers{
		persistence: persistence,
		dispatcher:  dispatcher,
		queue:       queue,
		sweeper:     sweeper,
		registry:    registry,
		validator:   validator,
		sweepSecret: sweepSecret,
	}
}

// DispatchEvent accepts a business event and instantiates matching workflow
// runs. Zero matches is a success.
func (h *APIHandlers) DispatchEvent(c fiber.Ctx) error {
	var req DispatchEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	trigger := models.TriggerType(req.TriggerType)
	if !trigger.Valid() {
		return badRequest(c, "Unknown trigger type: "+req.TriggerType)
	}

	result, err := h.dispatcher.Dispatch(c.Context(), trigger, req.OwnerID, req.Payload)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(result)
}

// ScheduleEmail creates a user "send later" delivery.
func (h *APIHandlers) ScheduleEmail(c fiber.Ctx) error {
	var req ScheduleEmailRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	email := models.NewScheduledEmail(uuid.New().String(), req.Recipient, req.Subject, req.Body, req.CreatedBy, req.ScheduledAt)

	err := h.queue.Schedule(c.Context(), email)
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(email)
}

// CancelScheduledEmail moves a scheduled delivery to canceled. A row that
// already left scheduled yields a conflict, never an overwrite.
func (h *APIHandlers) CancelScheduledEmail(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Scheduled email ID is required")
	}

	err := h.queue.Cancel(c.Context(), id)
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// RetryScheduledEmail explicitly re-queues a failed delivery.
func (h *APIHandlers) RetryScheduledEmail(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Scheduled email ID is required")
	}

	err := h.queue.Retry(c.Context(), id)
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// GetScheduledEmail returns one scheduled delivery.
func (h *APIHandlers) GetScheduledEmail(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Scheduled email ID is required")
	}

	email, err := h.persistence.ScheduledEmailByID(c.Context(), id)
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(email)
}

// GetRun returns a run with its step states and audit trail.
func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit: "+limitStr)
		}

		limit = parsed
	}

	run, err := h.persistence.RunByID(c.Context(), id)
	if err != nil {
		return handlePersistenceError(c, err)
	}

	steps, err := h.persistence.StepStatesByRun(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	logs, err := h.persistence.LogsByRun(c.Context(), id, limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(RunResponse{Run: run, Steps: steps, Logs: logs})
}

// Sweep triggers one sweep pass. The caller authenticates with the shared
// sweep secret; a mismatch is rejected before any sweep work happens.
func (h *APIHandlers) Sweep(c fiber.Ctx) error {
	if !h.authorizeSweep(c) {
		return unauthorized(c, "Invalid sweep credentials")
	}

	outcome := h.sweeper.RunOnce(c.Context())

	return c.JSON(fiber.Map{
		"success": true,
		"processed": fiber.Map{
			"emails":    outcome.Emails.Processed,
			"workflows": outcome.Workflows.Processed,
		},
	})
}

// authorizeSweep compares the bearer token against the shared secret in
// constant time. An unconfigured secret rejects every request.
func (h *APIHandlers) authorizeSweep(c fiber.Ctx) bool {
	if h.sweepSecret == "" {
		return false
	}

	header := c.Get("Authorization")

	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(token), []byte(h.sweepSecret)) == 1
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryErr := h.persistence.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Flowbill API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repositoryErr == nil {
		status = "healthy"
		message = "Flowbill API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryErr == nil,
		},
		"timestamp": time.Now().UTC(),
	})
}
