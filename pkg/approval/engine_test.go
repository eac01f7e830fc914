package approval

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulegate/rulegate/pkg/actions/updatefield"
	"github.com/rulegate/rulegate/pkg/executor"
	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
	"github.com/rulegate/rulegate/pkg/persistence/file"
	"github.com/rulegate/rulegate/pkg/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testResolver() *StaticResolver {
	return &StaticResolver{
		Roles:    map[string][]string{"finance": {"fin-1", "fin-2"}},
		Managers: map[string]string{"owner-1": "mgr-1"},
	}
}

func setup(t *testing.T) (*Engine, persistence.Persistence, *clockwork.FakeClock) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	logger := testLogger()
	clock := clockwork.NewFakeClock()

	reg := registry.NewRegistry(logger)
	reg.RegisterAction(updatefield.NewActionFactory(store.Records()))

	exec := executor.NewExecutor(logger, reg, store.Reports())
	engine := NewEngine(logger, store, testResolver(), exec, clock)

	return engine, store, clock
}

func seedRecord(t *testing.T, store persistence.Persistence) *models.Record {
	t.Helper()

	record := &models.Record{
		ID:       "deal-1",
		ModuleID: "deals",
		OwnerID:  "owner-1",
		Stage:    "negotiation",
		Data:     map[string]any{"amount": 25000.0},
	}
	require.NoError(t, store.Records().SaveRecord(context.Background(), record))

	return record
}

func twoStepProcess() *models.ApprovalProcessDefinition {
	return &models.ApprovalProcessDefinition{
		ID:        "proc-1",
		ModuleID:  "deals",
		Name:      "large deal approval",
		IsEnabled: true,
		Steps: []models.ApprovalStepDefinition{
			{Type: models.ApproverManager, CanDelegate: true},
			{Type: models.ApproverRole, Value: "finance", RequireComment: true},
		},
		OnApproveActions: []models.ActionSpec{
			{ID: "mark", Type: models.ActionUpdateField, Configuration: map[string]any{"field": "stage", "value": "approved"}},
		},
		OnRejectActions: []models.ActionSpec{
			{ID: "mark", Type: models.ActionUpdateField, Configuration: map[string]any{"field": "stage", "value": "rejected"}},
		},
	}
}

func eventFor(record *models.Record) *models.RecordEvent {
	return &models.RecordEvent{
		ID:       "evt-1",
		Type:     models.EventRecordUpdated,
		ModuleID: record.ModuleID,
		Record:   record,
	}
}

func startRequest(t *testing.T, engine *Engine, store persistence.Persistence) *models.ApprovalRequest {
	t.Helper()

	process := twoStepProcess()
	require.NoError(t, store.Definitions().SaveApprovalProcess(context.Background(), process))

	record := seedRecord(t, store)

	req, err := engine.StartForEvent(context.Background(), process, eventFor(record))
	require.NoError(t, err)

	return req
}

func TestStartForEventResolvesFirstStep(t *testing.T) {
	engine, store, _ := setup(t)
	req := startRequest(t, engine, store)

	assert.Equal(t, models.RequestPending, req.Status)
	assert.Equal(t, 0, req.CurrentStepIndex)
	require.Len(t, req.Steps, 2)

	step, err := store.Approvals().PendingStep(context.Background(), req.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"mgr-1"}, step.ResolvedApproverIDs)
	assert.Nil(t, step.Deadline)
}

func TestStartForEventSecondOpenRequestRejected(t *testing.T) {
	engine, store, _ := setup(t)
	req := startRequest(t, engine, store)

	record, err := store.Records().GetRecord(context.Background(), "deals", "deal-1")
	require.NoError(t, err)

	process, err := store.Definitions().ApprovalProcessByID(context.Background(), "proc-1")
	require.NoError(t, err)

	again, err := engine.StartForEvent(context.Background(), process, eventFor(record))
	require.ErrorIs(t, err, ErrAlreadyOpen)
	assert.Equal(t, req.ID, again.ID)
}

func TestDecideRejectsNonApprover(t *testing.T) {
	engine, store, _ := setup(t)
	req := startRequest(t, engine, store)

	_, err := engine.Decide(context.Background(), req.ID, 0, models.Actor{ID: "intruder"}, models.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrNotApprover)
}

func TestDecideFullApprovalFlow(t *testing.T) {
	engine, store, _ := setup(t)
	req := startRequest(t, engine, store)

	updated, err := engine.Decide(context.Background(), req.ID, 0, models.Actor{ID: "mgr-1"}, models.DecisionApprove, "fine by me")
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, updated.Status)
	assert.Equal(t, 1, updated.CurrentStepIndex)

	step, err := store.Approvals().PendingStep(context.Background(), req.ID, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fin-1", "fin-2"}, step.ResolvedApproverIDs)

	// second step requires a comment
	_, err = engine.Decide(context.Background(), req.ID, 1, models.Actor{ID: "fin-1"}, models.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrCommentRequired)

	final, err := engine.Decide(context.Background(), req.ID, 1, models.Actor{ID: "fin-1"}, models.DecisionApprove, "budget confirmed")
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, final.Status)

	record, err := store.Records().GetRecord(context.Background(), "deals", "deal-1")
	require.NoError(t, err)
	assert.Equal(t, "approved", record.Stage)
}

func TestDecideRejectClosesRequest(t *testing.T) {
	engine, store, _ := setup(t)
	req := startRequest(t, engine, store)

	final, err := engine.Decide(context.Background(), req.ID, 0, models.Actor{ID: "mgr-1"}, models.DecisionReject, "too risky")
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, final.Status)

	record, err := store.Records().GetRecord(context.Background(), "deals", "deal-1")
	require.NoError(t, err)
	assert.Equal(t, "rejected", record.Stage)

	_, err = engine.Decide(context.Background(), req.ID, 0, models.Actor{ID: "mgr-1"}, models.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrRequestClosed)
}

func TestDecideFirstDecisionWins(t *testing.T) {
	engine, store, _ := setup(t)
	req := startRequest(t, engine, store)

	step, err := store.Approvals().PendingStep(context.Background(), req.ID, 0)
	require.NoError(t, err)

	// simulate a concurrent decider landing first
	_, err = store.Approvals().TransitionStep(context.Background(), step.ID, models.StepPending, models.StepApproved, persistence.StepDecision{
		DecidedBy: "mgr-1",
		DecidedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = store.Approvals().TransitionStep(context.Background(), step.ID, models.StepPending, models.StepRejected, persistence.StepDecision{
		DecidedBy: "mgr-1",
		DecidedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, persistence.ErrTransitionConflict)
}

func TestDecideStaleStepIndexConflicts(t *testing.T) {
	engine, store, _ := setup(t)
	req := startRequest(t, engine, store)

	updated, err := engine.Decide(context.Background(), req.ID, 0, models.Actor{ID: "mgr-1"}, models.DecisionApprove, "")
	require.NoError(t, err)
	require.Equal(t, 1, updated.CurrentStepIndex)

	// a retried approve against the step already decided must not land on
	// the finance step, even when the actor could approve both
	_, err = engine.Decide(context.Background(), req.ID, 0, models.Actor{ID: "mgr-1"}, models.DecisionApprove, "")
	assert.ErrorIs(t, err, persistence.ErrTransitionConflict)

	after, err := store.Approvals().RequestByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, after.Status)
	assert.Equal(t, 1, after.CurrentStepIndex)

	step, err := store.Approvals().PendingStep(context.Background(), req.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StepPending, step.Status)

	_, err = engine.Delegate(context.Background(), req.ID, 0, models.Actor{ID: "mgr-1"}, "vp-1", "")
	assert.ErrorIs(t, err, persistence.ErrTransitionConflict)
}

func TestDelegateReassignsStep(t *testing.T) {
	engine, store, clock := setup(t)
	req := startRequest(t, engine, store)

	clock.Advance(time.Minute)

	next, err := engine.Delegate(context.Background(), req.ID, 0, models.Actor{ID: "mgr-1"}, "vp-1", "on vacation")
	require.NoError(t, err)
	assert.Equal(t, 0, next.StepIndex)
	assert.Equal(t, []string{"vp-1"}, next.ResolvedApproverIDs)

	// the original approver no longer holds the step
	_, err = engine.Decide(context.Background(), req.ID, 0, models.Actor{ID: "mgr-1"}, models.DecisionApprove, "")
	assert.ErrorIs(t, err, ErrNotApprover)

	updated, err := engine.Decide(context.Background(), req.ID, 0, models.Actor{ID: "vp-1"}, models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, 1, updated.CurrentStepIndex)

	steps, err := store.Approvals().StepsByRequest(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, models.StepDelegated, steps[0].Status)
	assert.Equal(t, "vp-1", steps[0].DelegatedTo)
	assert.Equal(t, models.StepApproved, steps[1].Status)
}

func TestDelegateGuards(t *testing.T) {
	engine, store, _ := setup(t)
	req := startRequest(t, engine, store)

	_, err := engine.Delegate(context.Background(), req.ID, 0, models.Actor{ID: "mgr-1"}, "mgr-1", "")
	assert.ErrorIs(t, err, ErrSelfDelegation)

	_, err = engine.Delegate(context.Background(), req.ID, 0, models.Actor{ID: "outsider"}, "vp-1", "")
	assert.ErrorIs(t, err, ErrNotApprover)

	// advance to the finance step, which does not allow delegation
	_, err = engine.Decide(context.Background(), req.ID, 0, models.Actor{ID: "mgr-1"}, models.DecisionApprove, "")
	require.NoError(t, err)

	_, err = engine.Delegate(context.Background(), req.ID, 1, models.Actor{ID: "fin-1"}, "fin-3", "")
	assert.ErrorIs(t, err, ErrDelegationNotAllowed)
}

func TestPendingForApprover(t *testing.T) {
	engine, store, _ := setup(t)
	req := startRequest(t, engine, store)

	pending, err := engine.PendingForApprover(context.Background(), "mgr-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].RequestID)

	none, err := engine.PendingForApprover(context.Background(), "fin-1")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = engine.Decide(context.Background(), req.ID, 0, models.Actor{ID: "mgr-1"}, models.DecisionApprove, "")
	require.NoError(t, err)

	pending, err = engine.PendingForApprover(context.Background(), "fin-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, steps, err := engine.RequestWithSteps(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
}

func TestStartForEventSteplessProcess(t *testing.T) {
	engine, store, _ := setup(t)

	process := &models.ApprovalProcessDefinition{
		ID:        "proc-3",
		ModuleID:  "deals",
		Name:      "empty approval",
		IsEnabled: true,
	}
	require.NoError(t, store.Definitions().SaveApprovalProcess(context.Background(), process))

	record := seedRecord(t, store)

	_, err := engine.StartForEvent(context.Background(), process, eventFor(record))
	assert.ErrorIs(t, err, ErrNoSteps)
}

func TestStartForEventNoApprovers(t *testing.T) {
	engine, store, _ := setup(t)

	process := &models.ApprovalProcessDefinition{
		ID:        "proc-2",
		ModuleID:  "deals",
		Name:      "unstaffed approval",
		IsEnabled: true,
		Steps: []models.ApprovalStepDefinition{
			{Type: models.ApproverRole, Value: "legal"},
		},
	}
	require.NoError(t, store.Definitions().SaveApprovalProcess(context.Background(), process))

	record := seedRecord(t, store)

	_, err := engine.StartForEvent(context.Background(), process, eventFor(record))
	assert.ErrorIs(t, err, ErrNoApprovers)
}
