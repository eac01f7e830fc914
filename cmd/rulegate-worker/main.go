// Package main provides the rulegate worker, which consumes record events
// from the bus and runs the matching automations and approval processes.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/rulegate/rulegate/pkg/cmd"
	"github.com/rulegate/rulegate/pkg/log"
	"github.com/rulegate/rulegate/pkg/otelhelper"
)

func main() {
	command := &cli.Command{
		Name:                  "rulegate-worker",
		EnableShellCompletion: true,
		Usage:                 "Consume record events and run automations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list; empty runs the in-process bus",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the webform submission lock",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "directory-path",
				Usage:   "Path to the JSON user directory for approver resolution",
				Sources: cli.EnvVars("DIRECTORY_PATH"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing rulegate worker")

			shutdownTracer, err := otelhelper.Setup(ctx, "rulegate-worker")
			if err != nil {
				logger.WarnContext(ctx, "Tracing disabled", "error", err)
			} else {
				defer func() {
					if err := shutdownTracer(context.Background()); err != nil {
						logger.ErrorContext(ctx, "Failed to shut down tracer", "error", err)
					}
				}()
			}

			rt, err := cmd.NewRuntime(ctx, logger, cmd.Config{
				DatabaseURL:   command.String("database-url"),
				KafkaBrokers:  command.String("kafka-brokers"),
				RedisURL:      command.String("redis-url"),
				DirectoryPath: command.String("directory-path"),
				ServiceName:   "rulegate-worker",
			})
			if err != nil {
				return err
			}

			defer func() {
				if err := rt.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			subCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			if err := rt.Bus.Subscribe(subCtx, rt.Engine.ProcessEvent); err != nil {
				return err
			}

			logger.InfoContext(ctx, "Worker started")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan

			logger.InfoContext(ctx, "Shutting down worker")
			cancel()

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
