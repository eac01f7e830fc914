// Package main provides the rulegate HTTP API server.
package main

import (
	"context"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"

	"github.com/rulegate/rulegate/pkg/cmd"
	"github.com/rulegate/rulegate/pkg/log"
	"github.com/rulegate/rulegate/pkg/otelhelper"
	"github.com/rulegate/rulegate/pkg/web"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "rulegate-api",
		Usage:                 "Manage automation and approval definitions and submit record events",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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

			logger.InfoContext(ctx, "Initializing rulegate API")

			shutdownTracer, err := otelhelper.Setup(ctx, "rulegate-api")
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
				ServiceName:   "rulegate-api",
			})
			if err != nil {
				return err
			}

			defer func() {
				if err := rt.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			handlers := web.NewAPIHandlers(rt.Engine, rt.Store, validator.New())
			app := web.NewApp(handlers)

			return app.Listen(":" + strconv.Itoa(command.Int("port")))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
