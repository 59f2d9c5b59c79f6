// Package main provides the Flowbill sweeper daemon: the single logical
// scheduler that drains due scheduled emails and advances due workflow steps.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/flowbill/flowbill/pkg/cmd"
	"github.com/flowbill/flowbill/pkg/engine"
	"github.com/flowbill/flowbill/pkg/log"
	"github.com/flowbill/flowbill/pkg/mailer"
	"github.com/flowbill/flowbill/pkg/otelhelper"
	"github.com/flowbill/flowbill/pkg/renderer"
	"github.com/flowbill/flowbill/pkg/schedqueue"
	"github.com/flowbill/flowbill/pkg/sweeper"
)

func main() {
	logger := log.WithModule("sweeper")

	command := &cli.Command{
		Name:                  "flowbill-sweeper",
		Usage:                 "Run the periodic sweep over scheduled emails and workflow steps",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "sweep-interval",
				Usage:   "Sweep cadence: Go duration (\"1m\") or cron expression (\"*/5 * * * *\")",
				Value:   "1m",
				Sources: cli.EnvVars("SWEEP_INTERVAL"),
			},
			&cli.BoolFlag{
				Name:    "once",
				Usage:   "Run a single sweep and exit",
				Sources: cli.EnvVars("SWEEP_ONCE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Flowbill sweeper")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "flowbill-sweeper", logger)

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			mail := mailer.NewLogMailer(logger)
			queue := schedqueue.NewQueue(persistence, mail, eventBus, logger)
			eng := engine.NewEngine(persistence, mail, renderer.NewTemplateRenderer(), eventBus, logger)

			sweep := sweeper.NewSweeper(queue, eng, eventBus, logger)

			err := sweep.SetCadence(command.String("sweep-interval"))
			if err != nil {
				return err
			}

			if os.Getenv("OTEL_ENABLED") == "true" {
				tracer, err := otelhelper.NewTracer(ctx, "flowbill-sweeper")
				if err != nil {
					logger.ErrorContext(ctx, "Failed to initialize tracer", "error", err)
				} else {
					sweep.WithTracer(tracer)
				}
			}

			if command.Bool("once") {
				sweep.RunOnce(ctx)

				return nil
			}

			err = sweep.Start(ctx)
			if err != nil {
				return err
			}

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

			sig := <-signals
			logger.InfoContext(ctx, "Received signal, shutting down gracefully", "signal", sig)

			return sweep.Stop(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
