// Package engine is the facade collaborators call: event submission,
// approval decisions, macro runs, previews and definition management.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rulegate/rulegate/pkg/approval"
	"github.com/rulegate/rulegate/pkg/dedupe"
	"github.com/rulegate/rulegate/pkg/eventbus"
	"github.com/rulegate/rulegate/pkg/macro"
	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
	"github.com/rulegate/rulegate/pkg/registry"
	"github.com/rulegate/rulegate/pkg/runner"
	"github.com/rulegate/rulegate/pkg/trigger"
)

// ErrInvalidDefinition wraps all definition validation failures.
var ErrInvalidDefinition = errors.New("invalid definition")

// Engine wires the evaluation pipeline together behind one surface. The API
// publishes events through the bus; the worker consumes them with
// ProcessEvent.
type Engine struct {
	logger    *slog.Logger
	store     persistence.Persistence
	registry  *registry.Registry
	matcher   *trigger.Matcher
	runner    *runner.Runner
	approvals *approval.Engine
	macros    *macro.Executor
	resolver  *dedupe.Resolver
	bus       eventbus.EventBus
	validate  *validator.Validate
}

// New creates the engine facade over already-wired components.
func New(
	logger *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	matcher *trigger.Matcher,
	run *runner.Runner,
	approvals *approval.Engine,
	macros *macro.Executor,
	resolver *dedupe.Resolver,
	bus eventbus.EventBus,
) *Engine {
	return &Engine{
		logger:    logger.With("module", "engine"),
		store:     store,
		registry:  reg,
		matcher:   matcher,
		runner:    run,
		approvals: approvals,
		macros:    macros,
		resolver:  resolver,
		bus:       bus,
		validate:  validator.New(),
	}
}

// SubmitEvent queues a record lifecycle event for processing. Missing ID and
// timestamp are filled in.
func (e *Engine) SubmitEvent(ctx context.Context, event *models.RecordEvent) error {
	if event.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate event ID: %w", err)
		}

		event.ID = id.String()
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	return e.bus.Publish(ctx, event)
}

// ProcessEvent runs one event through the pipeline: workflow matching and
// execution, follow-up queuing, then approval process starts. Depth-capped
// cycles are terminal for the event, not errors to retry.
func (e *Engine) ProcessEvent(ctx context.Context, event *models.RecordEvent) error {
	result, err := e.runner.HandleEvent(ctx, event)
	if err != nil {
		if runner.IsCycleDetected(err) {
			e.logger.WarnContext(ctx, "Dropping event, cycle depth cap reached",
				"event_id", event.ID, "depth", event.Depth)

			return nil
		}

		return err
	}

	for _, followUp := range result.FollowUps {
		if err := e.bus.Publish(ctx, followUp); err != nil {
			return fmt.Errorf("failed to queue follow-up event: %w", err)
		}
	}

	return e.startApprovals(ctx, event)
}

func (e *Engine) startApprovals(ctx context.Context, event *models.RecordEvent) error {
	if event.Record == nil {
		return nil
	}

	processes, err := e.store.Definitions().ListApprovalProcesses(ctx, event.ModuleID)
	if err != nil {
		return fmt.Errorf("failed to load approval processes: %w", err)
	}

	for _, process := range e.matcher.MatchProcesses(event, processes) {
		_, err := e.approvals.StartForEvent(ctx, process, event)
		if err != nil {
			if errors.Is(err, approval.ErrAlreadyOpen) {
				continue
			}

			if errors.Is(err, approval.ErrNoApprovers) {
				e.logger.WarnContext(ctx, "Cannot start approval, no approvers resolve",
					"process_id", process.ID, "record_id", event.Record.ID, "error", err)

				continue
			}

			if errors.Is(err, approval.ErrNoSteps) {
				e.logger.WarnContext(ctx, "Cannot start approval, process has no steps",
					"process_id", process.ID, "record_id", event.Record.ID)

				continue
			}

			return fmt.Errorf("failed to start approval %s: %w", process.ID, err)
		}
	}

	return nil
}

// SubmitWebform resolves a public submission through the dedupe policy and
// queues the resulting lifecycle event, if any.
func (e *Engine) SubmitWebform(ctx context.Context, sub dedupe.Submission, cfg models.DedupeConfig) (*dedupe.Resolution, error) {
	res, err := e.resolver.Resolve(ctx, sub, cfg)
	if err != nil {
		return nil, err
	}

	if res.Event != nil {
		if err := e.bus.Publish(ctx, res.Event); err != nil {
			return nil, fmt.Errorf("failed to queue submission event: %w", err)
		}
	}

	return res, nil
}

// DecideStep records an approver's verdict on one step of a request. A
// stale step index fails with the same conflict a lost decision race does.
func (e *Engine) DecideStep(ctx context.Context, requestID string, stepIndex int, actor models.Actor, decision models.Decision, comment string) (*models.ApprovalRequest, error) {
	return e.approvals.Decide(ctx, requestID, stepIndex, actor, decision, comment)
}

// DelegateStep hands one step of a request to another user.
func (e *Engine) DelegateStep(ctx context.Context, requestID string, stepIndex int, actor models.Actor, delegateID, comment string) (*models.ApprovalStepInstance, error) {
	return e.approvals.Delegate(ctx, requestID, stepIndex, actor, delegateID, comment)
}

// ListPendingApprovals returns the step instances waiting on an actor.
func (e *Engine) ListPendingApprovals(ctx context.Context, actor models.Actor) ([]*models.ApprovalStepInstance, error) {
	return e.approvals.PendingForApprover(ctx, actor.ID)
}

// ApprovalRequest loads a request with its step history.
func (e *Engine) ApprovalRequest(ctx context.Context, requestID string) (*models.ApprovalRequest, []*models.ApprovalStepInstance, error) {
	return e.approvals.RequestWithSteps(ctx, requestID)
}

// RunMacro executes a macro live against one record on behalf of an actor
// and queues the mutations it produced.
func (e *Engine) RunMacro(ctx context.Context, macroID string, actor models.Actor, recordID string) (*models.ExecutionReport, error) {
	report, mutations, err := e.macros.Run(ctx, macroID, actor, recordID, models.ModeLive)
	if err != nil {
		return nil, err
	}

	for _, mutation := range mutations {
		event, err := e.mutationEvent(mutation)
		if err != nil {
			return nil, err
		}

		if err := e.bus.Publish(ctx, event); err != nil {
			return nil, fmt.Errorf("failed to queue macro mutation event: %w", err)
		}
	}

	return report, nil
}

// PreviewWorkflow dry-runs a definition against a record. Nothing is
// persisted except the execution report.
func (e *Engine) PreviewWorkflow(ctx context.Context, definitionID, recordID string) (*models.ExecutionReport, error) {
	def, err := e.store.Definitions().AutomationByID(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	record, err := e.store.Records().GetRecord(ctx, def.ModuleID, recordID)
	if err != nil {
		return nil, err
	}

	report, _, err := e.runner.RunDefinition(ctx, def, record, models.ModeDryRun)

	return report, err
}

// ExecutionHistory lists the execution reports recorded against a record.
func (e *Engine) ExecutionHistory(ctx context.Context, moduleID, recordID string) ([]*models.ExecutionReport, error) {
	return e.store.Reports().ListReportsByRecord(ctx, moduleID, recordID)
}

// ApprovalHistory lists every approval request opened for a record, newest
// first.
func (e *Engine) ApprovalHistory(ctx context.Context, moduleID, recordID string) ([]*models.ApprovalRequest, error) {
	return e.store.Approvals().ListRequestsByRecord(ctx, moduleID, recordID)
}

// mutationEvent converts a collected record mutation into a depth-1 event.
// Macro mutations start their own cycle budget.
func (e *Engine) mutationEvent(mutation models.RecordMutation) (*models.RecordEvent, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate event ID: %w", err)
	}

	return &models.RecordEvent{
		ID:            id.String(),
		Type:          mutation.Type,
		ModuleID:      mutation.Record.ModuleID,
		Record:        mutation.Record,
		OldRecord:     mutation.OldRecord,
		ChangedFields: mutation.ChangedFields,
		Depth:         1,
		OccurredAt:    time.Now().UTC(),
	}, nil
}
