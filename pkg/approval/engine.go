// Package approval implements the durable approval state machine: request
// creation, step decisions, delegation and the timeout sweepers.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rulegate/rulegate/pkg/executor"
	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
)

// SystemActorID marks transitions performed by the engine itself rather
// than a human approver.
const SystemActorID = "system"

// Engine drives approval requests through their lifecycle. All state
// transitions go through the store's conditional operations, so concurrent
// deciders and sweepers race safely: the first writer wins and the loser
// gets ErrTransitionConflict.
type Engine struct {
	logger   *slog.Logger
	store    persistence.Persistence
	resolver ApproverResolver
	executor *executor.Executor
	clock    clockwork.Clock
}

// NewEngine creates an approval engine.
func NewEngine(logger *slog.Logger, store persistence.Persistence, resolver ApproverResolver, exec *executor.Executor, clock clockwork.Clock) *Engine {
	return &Engine{
		logger:   logger.With("module", "approval_engine"),
		store:    store,
		resolver: resolver,
		executor: exec,
		clock:    clock,
	}
}

// StartForEvent opens a new request for a matched process against the
// event's record. The process's steps are snapshotted onto the request so
// later definition edits never change it in flight. At most one open request
// exists per (process, record); a second start returns the existing request
// with ErrAlreadyOpen.
func (e *Engine) StartForEvent(ctx context.Context, process *models.ApprovalProcessDefinition, event *models.RecordEvent) (*models.ApprovalRequest, error) {
	record := event.Record
	if record == nil {
		return nil, errors.New("event has no record")
	}

	// Stored definitions are not trusted: a stepless process is a no-match,
	// never a pipeline fault.
	if len(process.Steps) == 0 {
		return nil, ErrNoSteps
	}

	existing, err := e.store.Approvals().OpenRequestForRecord(ctx, process.ID, record.ID)
	if err == nil {
		return existing, ErrAlreadyOpen
	}

	if !errors.Is(err, persistence.ErrRequestNotFound) {
		return nil, fmt.Errorf("failed to check for open request: %w", err)
	}

	approvers, err := resolveApprovers(ctx, e.resolver, process.Steps[0], record)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now().UTC()

	requestID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate request ID: %w", err)
	}

	req := &models.ApprovalRequest{
		ID:               requestID.String(),
		ProcessID:        process.ID,
		ModuleID:         process.ModuleID,
		RecordID:         record.ID,
		Status:           models.RequestPending,
		CurrentStepIndex: 0,
		Steps:            append([]models.ApprovalStepDefinition(nil), process.Steps...),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if process.AutoApproveAfterHours > 0 {
		deadline := now.Add(time.Duration(process.AutoApproveAfterHours) * time.Hour)
		req.AutoApproveAt = &deadline
	}

	first, err := e.newStepInstance(req, 0, approvers, now)
	if err != nil {
		return nil, err
	}

	err = e.store.Approvals().CreateRequest(ctx, req, first)
	if err != nil {
		return nil, fmt.Errorf("failed to create approval request: %w", err)
	}

	e.logger.InfoContext(ctx, "Opened approval request",
		"request_id", req.ID, "process_id", process.ID, "record_id", record.ID)

	return req, nil
}

// Decide applies an approver's verdict to one step of a request. The step
// index must still be the request's current step: a retried or stale call
// against an advanced request surfaces persistence.ErrTransitionConflict
// instead of deciding whatever step is pending now. The first decision wins:
// a concurrent second decision loses the conditional step transition and
// surfaces the same conflict.
func (e *Engine) Decide(ctx context.Context, requestID string, stepIndex int, actor models.Actor, decision models.Decision, comment string) (*models.ApprovalRequest, error) {
	req, step, stepDef, err := e.currentStep(ctx, requestID, stepIndex)
	if err != nil {
		return nil, err
	}

	if !step.CanDecide(actor.ID) {
		return nil, ErrNotApprover
	}

	if stepDef.RequireComment && comment == "" {
		return nil, ErrCommentRequired
	}

	if decision == models.DecisionReject {
		return e.rejectStep(ctx, req, step, actor.ID, comment)
	}

	return e.approveStep(ctx, req, step, actor.ID, comment)
}

// Delegate hands the current step to another user. The original instance is
// closed as delegated and a fresh pending instance opens at the same step
// index with its own deadline.
func (e *Engine) Delegate(ctx context.Context, requestID string, stepIndex int, actor models.Actor, delegateID, comment string) (*models.ApprovalStepInstance, error) {
	req, step, stepDef, err := e.currentStep(ctx, requestID, stepIndex)
	if err != nil {
		return nil, err
	}

	if !stepDef.CanDelegate {
		return nil, ErrDelegationNotAllowed
	}

	if !step.CanDecide(actor.ID) {
		return nil, ErrNotApprover
	}

	if delegateID == actor.ID {
		return nil, ErrSelfDelegation
	}

	now := e.clock.Now().UTC()

	_, err = e.store.Approvals().TransitionStep(ctx, step.ID, models.StepPending, models.StepDelegated, persistence.StepDecision{
		DecidedBy:   actor.ID,
		DecidedAt:   now,
		Comment:     comment,
		DelegatedTo: delegateID,
	})
	if err != nil {
		return nil, err
	}

	next, err := e.newStepInstance(req, req.CurrentStepIndex, []string{delegateID}, now)
	if err != nil {
		return nil, err
	}

	err = e.store.Approvals().CreateStep(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("failed to create delegated step: %w", err)
	}

	e.logger.InfoContext(ctx, "Delegated approval step",
		"request_id", req.ID, "step_index", req.CurrentStepIndex,
		"from", actor.ID, "to", delegateID)

	return next, nil
}

// PendingForApprover lists the step instances currently waiting on a user.
func (e *Engine) PendingForApprover(ctx context.Context, approverID string) ([]*models.ApprovalStepInstance, error) {
	return e.store.Approvals().ListPendingByApprover(ctx, approverID)
}

// RequestWithSteps loads a request and its full step instance history.
func (e *Engine) RequestWithSteps(ctx context.Context, requestID string) (*models.ApprovalRequest, []*models.ApprovalStepInstance, error) {
	req, err := e.store.Approvals().RequestByID(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}

	steps, err := e.store.Approvals().StepsByRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}

	return req, steps, nil
}

func (e *Engine) currentStep(ctx context.Context, requestID string, stepIndex int) (*models.ApprovalRequest, *models.ApprovalStepInstance, models.ApprovalStepDefinition, error) {
	var none models.ApprovalStepDefinition

	req, err := e.store.Approvals().RequestByID(ctx, requestID)
	if err != nil {
		return nil, nil, none, err
	}

	if req.Status.IsTerminal() {
		return nil, nil, none, ErrRequestClosed
	}

	if stepIndex != req.CurrentStepIndex {
		return nil, nil, none, fmt.Errorf("step %d is not the current step %d: %w",
			stepIndex, req.CurrentStepIndex, persistence.ErrTransitionConflict)
	}

	step, err := e.store.Approvals().PendingStep(ctx, req.ID, req.CurrentStepIndex)
	if err != nil {
		return nil, nil, none, err
	}

	return req, step, req.Steps[req.CurrentStepIndex], nil
}

// approveStep closes the current step as approved and either advances the
// request to the next step or finalizes it.
func (e *Engine) approveStep(ctx context.Context, req *models.ApprovalRequest, step *models.ApprovalStepInstance, decidedBy, comment string) (*models.ApprovalRequest, error) {
	now := e.clock.Now().UTC()

	lastStep := req.CurrentStepIndex == len(req.Steps)-1

	var (
		nextApprovers []string
		err           error
	)

	if !lastStep {
		record, err := e.store.Records().GetRecord(ctx, req.ModuleID, req.RecordID)
		if err != nil {
			return nil, fmt.Errorf("failed to load record under approval: %w", err)
		}

		nextApprovers, err = resolveApprovers(ctx, e.resolver, req.Steps[req.CurrentStepIndex+1], record)
		if err != nil {
			return nil, err
		}
	}

	_, err = e.store.Approvals().TransitionStep(ctx, step.ID, models.StepPending, models.StepApproved, persistence.StepDecision{
		DecidedBy: decidedBy,
		DecidedAt: now,
		Comment:   comment,
	})
	if err != nil {
		return nil, err
	}

	if lastStep {
		updated, err := e.store.Approvals().TransitionRequest(ctx, req.ID, models.RequestPending, req.CurrentStepIndex, models.RequestApproved, req.CurrentStepIndex)
		if err != nil {
			return nil, err
		}

		e.logger.InfoContext(ctx, "Approval request approved",
			"request_id", req.ID, "decided_by", decidedBy)

		e.dispatchOutcomeActions(ctx, updated, true)

		return updated, nil
	}

	updated, err := e.store.Approvals().TransitionRequest(ctx, req.ID, models.RequestPending, req.CurrentStepIndex, models.RequestPending, req.CurrentStepIndex+1)
	if err != nil {
		return nil, err
	}

	next, err := e.newStepInstance(req, req.CurrentStepIndex+1, nextApprovers, now)
	if err != nil {
		return nil, err
	}

	err = e.store.Approvals().CreateStep(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("failed to create next step: %w", err)
	}

	e.logger.InfoContext(ctx, "Approval step approved",
		"request_id", req.ID, "step_index", req.CurrentStepIndex, "decided_by", decidedBy)

	return updated, nil
}

// rejectStep closes the current step and the whole request as rejected.
func (e *Engine) rejectStep(ctx context.Context, req *models.ApprovalRequest, step *models.ApprovalStepInstance, decidedBy, comment string) (*models.ApprovalRequest, error) {
	now := e.clock.Now().UTC()

	_, err := e.store.Approvals().TransitionStep(ctx, step.ID, models.StepPending, models.StepRejected, persistence.StepDecision{
		DecidedBy: decidedBy,
		DecidedAt: now,
		Comment:   comment,
	})
	if err != nil {
		return nil, err
	}

	updated, err := e.store.Approvals().TransitionRequest(ctx, req.ID, models.RequestPending, req.CurrentStepIndex, models.RequestRejected, req.CurrentStepIndex)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Approval request rejected",
		"request_id", req.ID, "decided_by", decidedBy)

	e.dispatchOutcomeActions(ctx, updated, false)

	return updated, nil
}

// dispatchOutcomeActions runs the process's on-approve or on-reject action
// chain. Outcome actions are best effort: a failure is logged and recorded
// in its report but never rolls the decision back.
func (e *Engine) dispatchOutcomeActions(ctx context.Context, req *models.ApprovalRequest, approved bool) {
	process, err := e.store.Definitions().ApprovalProcessByID(ctx, req.ProcessID)
	if err != nil {
		e.logger.WarnContext(ctx, "Cannot dispatch outcome actions, process definition missing",
			"request_id", req.ID, "process_id", req.ProcessID, "error", err)

		return
	}

	actions := process.OnApproveActions
	suffix := "on_approve"

	if !approved {
		actions = process.OnRejectActions
		suffix = "on_reject"
	}

	if len(actions) == 0 {
		return
	}

	record, err := e.store.Records().GetRecord(ctx, req.ModuleID, req.RecordID)
	if err != nil {
		e.logger.WarnContext(ctx, "Cannot dispatch outcome actions, record missing",
			"request_id", req.ID, "record_id", req.RecordID, "error", err)

		return
	}

	def := &models.AutomationDefinition{
		ID:       process.ID + ":" + suffix,
		ModuleID: process.ModuleID,
		Name:     process.Name + " " + suffix,
		Kind:     models.DefinitionWorkflow,
		Actions:  actions,
	}

	executionID, err := uuid.NewV7()
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to generate execution ID", "error", err)

		return
	}

	execCtx := &models.ExecutionContext{
		ID:           executionID.String(),
		DefinitionID: def.ID,
		ModuleID:     def.ModuleID,
		Mode:         models.ModeLive,
		Record:       record,
	}

	report, err := e.executor.Execute(ctx, def, execCtx)
	if err != nil {
		e.logger.ErrorContext(ctx, "Outcome action dispatch failed",
			"request_id", req.ID, "error", err)

		return
	}

	if report.Failed() {
		e.logger.WarnContext(ctx, "Outcome action chain reported failure",
			"request_id", req.ID, "report_id", report.ID)
	}
}

func (e *Engine) newStepInstance(req *models.ApprovalRequest, stepIndex int, approvers []string, now time.Time) (*models.ApprovalStepInstance, error) {
	instanceID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate step instance ID: %w", err)
	}

	instance := &models.ApprovalStepInstance{
		ID:                  instanceID.String(),
		RequestID:           req.ID,
		StepIndex:           stepIndex,
		ResolvedApproverIDs: approvers,
		Status:              models.StepPending,
		CreatedAt:           now,
	}

	if hours := req.Steps[stepIndex].TimeoutHours; hours > 0 {
		deadline := now.Add(time.Duration(hours) * time.Hour)
		instance.Deadline = &deadline
	}

	return instance, nil
}
