// Package main provides the Flowbill API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/flowbill/flowbill/pkg/dispatcher"
	"github.com/flowbill/flowbill/pkg/engine"
	"github.com/flowbill/flowbill/pkg/eventbus"
	"github.com/flowbill/flowbill/pkg/mailer"
	"github.com/flowbill/flowbill/pkg/persistence"
	"github.com/flowbill/flowbill/pkg/registry"
	"github.com/flowbill/flowbill/pkg/renderer"
	"github.com/flowbill/flowbill/pkg/schedqueue"
	"github.com/flowbill/flowbill/pkg/sweeper"
	"github.com/flowbill/flowbill/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	validate    *validator.Validate
	sweepSecret string
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	sweepSecret string,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		sweepSecret: sweepSecret,
	}
}

func (a *API) App() *fiber.App {
	mail := mailer.NewLogMailer(a.logger)
	render := renderer.NewTemplateRenderer()
	reg := registry.NewRegistry(a.logger)

	disp := dispatcher.NewDispatcher(a.persistence, a.eventBus, a.logger)
	queue := schedqueue.NewQueue(a.persistence, mail, a.eventBus, a.logger)
	eng := engine.NewEngine(a.persistence, mail, render, a.eventBus, a.logger)
	sweep := sweeper.NewSweeper(queue, eng, a.eventBus, a.logger)

	handlers := web.NewAPIHandlers(a.persistence, disp, queue, sweep, reg, a.validate, a.sweepSecret)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowbill API")
	})

	app.Post("/events", handlers.DispatchEvent)

	e := app.Group("/scheduled-emails")
	e.Post("/", handlers.ScheduleEmail)
	e.Get("/:id", handlers.GetScheduledEmail)
	e.Post("/:id/cancel", handlers.CancelScheduledEmail)
	e.Post("/:id/retry", handlers.RetryScheduledEmail)

	app.Get("/runs/:id", handlers.GetRun)
	app.Post("/sweep", handlers.Sweep)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
