package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/rulegate/rulegate/pkg/actions/subworkflow"
	"github.com/rulegate/rulegate/pkg/approval"
	"github.com/rulegate/rulegate/pkg/dedupe"
	"github.com/rulegate/rulegate/pkg/engine"
	"github.com/rulegate/rulegate/pkg/eventbus"
	"github.com/rulegate/rulegate/pkg/executor"
	"github.com/rulegate/rulegate/pkg/macro"
	"github.com/rulegate/rulegate/pkg/persistence"
	"github.com/rulegate/rulegate/pkg/registry"
	"github.com/rulegate/rulegate/pkg/runner"
	"github.com/rulegate/rulegate/pkg/trigger"
)

// Config carries the process-level settings shared by every binary.
type Config struct {
	DatabaseURL   string
	KafkaBrokers  string
	RedisURL      string
	DirectoryPath string
	ServiceName   string
}

// Runtime is the fully wired evaluation stack. Binaries pick the pieces they
// need: the API serves Engine over HTTP, the worker subscribes Engine to the
// bus, the sweeper drives Approvals.
type Runtime struct {
	Logger    *slog.Logger
	Store     persistence.Persistence
	Bus       eventbus.EventBus
	Registry  *registry.Registry
	Runner    *runner.Runner
	Approvals *approval.Engine
	Engine    *engine.Engine

	redisClient *redis.Client
}

func NewRuntime(ctx context.Context, logger *slog.Logger, cfg Config) (*Runtime, error) {
	store, err := NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	bus, err := NewEventBus(logger, cfg.KafkaBrokers, cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	resolver, err := NewApproverResolver(cfg.DirectoryPath)
	if err != nil {
		return nil, err
	}

	reg := NewRegistry(logger, store.Records())
	exec := executor.NewExecutor(logger, reg, store.Reports())
	matcher := trigger.NewMatcher(logger)
	run := runner.NewRunner(logger, store, matcher, exec)
	reg.RegisterAction(subworkflow.NewActionFactory(run))

	approvals := approval.NewEngine(logger, store, resolver, exec, clockwork.NewRealClock())
	macros := macro.NewExecutor(logger, store, run)

	rt := &Runtime{
		Logger:    logger,
		Store:     store,
		Bus:       bus,
		Registry:  reg,
		Runner:    run,
		Approvals: approvals,
	}

	locker, err := rt.newLocker(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	deduper := dedupe.NewResolver(logger, store.Records(), locker)
	rt.Engine = engine.New(logger, store, reg, matcher, run, approvals, macros, deduper, bus)

	return rt, nil
}

// newLocker picks the webform submission lock. Redis coordinates across
// instances; the local locker only covers a single process.
func (rt *Runtime) newLocker(redisURL string) (dedupe.Locker, error) {
	if redisURL == "" {
		return dedupe.NewLocalLocker(), nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rt.redisClient = redis.NewClient(opts)

	return dedupe.NewRedisLocker(rt.redisClient, 0), nil
}

func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error

	if err := rt.Bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close event bus: %w", err))
	}

	if rt.redisClient != nil {
		if err := rt.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis client: %w", err))
		}
	}

	if err := rt.Store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close persistence: %w", err))
	}

	return errors.Join(errs...)
}
