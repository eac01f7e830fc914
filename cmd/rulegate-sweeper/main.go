// Package main provides the rulegate sweeper, which fires scheduled
// automation ticks and advances approval deadlines in the background.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	cli "github.com/urfave/cli/v3"

	"github.com/rulegate/rulegate/pkg/approval"
	"github.com/rulegate/rulegate/pkg/cmd"
	"github.com/rulegate/rulegate/pkg/log"
	"github.com/rulegate/rulegate/pkg/otelhelper"
	"github.com/rulegate/rulegate/pkg/schedule"
)

func main() {
	logger := log.WithModule("sweeper")

	command := &cli.Command{
		Name:                  "rulegate-sweeper",
		EnableShellCompletion: true,
		Usage:                 "Fire scheduled automations and sweep approval deadlines",
		Flags: []cli.Flag{
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
				Name:    "directory-path",
				Usage:   "Path to the JSON user directory for approver resolution",
				Sources: cli.EnvVars("DIRECTORY_PATH"),
			},
			&cli.DurationFlag{
				Name:    "sweep-interval",
				Usage:   "How often to sweep approval timeouts and auto-approvals",
				Value:   approval.DefaultSweepInterval,
				Sources: cli.EnvVars("SWEEP_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "reload-interval",
				Usage:   "How often to reload scheduled automation definitions",
				Value:   time.Minute,
				Sources: cli.EnvVars("RELOAD_INTERVAL"),
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

			logger.InfoContext(ctx, "Initializing rulegate sweeper")

			shutdownTracer, err := otelhelper.Setup(ctx, "rulegate-sweeper")
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
				DirectoryPath: command.String("directory-path"),
				ServiceName:   "rulegate-sweeper",
			})
			if err != nil {
				return err
			}

			defer func() {
				if err := rt.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			source := schedule.NewSource(logger, rt.Store, rt.Bus)
			if err := source.Start(runCtx); err != nil {
				return err
			}
			defer source.Stop()

			go reloadLoop(runCtx, logger, source, command.Duration("reload-interval"))

			sweeper := approval.NewSweeper(logger, rt.Approvals, clockwork.NewRealClock(), command.Duration("sweep-interval"))

			go func() {
				if err := sweeper.Run(runCtx); err != nil {
					logger.ErrorContext(runCtx, "Sweeper stopped", "error", err)
				}
			}()

			logger.InfoContext(ctx, "Sweeper started")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan

			logger.InfoContext(ctx, "Shutting down sweeper")
			cancel()

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

// reloadLoop keeps the cron table in sync with definition edits made through
// the API.
func reloadLoop(ctx context.Context, logger *slog.Logger, source *schedule.Source, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := source.Reload(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to reload schedules", "error", err)
			}
		}
	}
}
