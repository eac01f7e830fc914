package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulegate/rulegate/pkg/actions/notify"
	"github.com/rulegate/rulegate/pkg/actions/sendemail"
	"github.com/rulegate/rulegate/pkg/actions/tag"
	"github.com/rulegate/rulegate/pkg/actions/updatefield"
	"github.com/rulegate/rulegate/pkg/actions/webhook"
	"github.com/rulegate/rulegate/pkg/approval"
	"github.com/rulegate/rulegate/pkg/channels/gochannel"
	"github.com/rulegate/rulegate/pkg/dedupe"
	"github.com/rulegate/rulegate/pkg/eventbus"
	"github.com/rulegate/rulegate/pkg/executor"
	"github.com/rulegate/rulegate/pkg/macro"
	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
	"github.com/rulegate/rulegate/pkg/persistence/file"
	"github.com/rulegate/rulegate/pkg/registry"
	"github.com/rulegate/rulegate/pkg/runner"
	"github.com/rulegate/rulegate/pkg/trigger"
)

func setup(t *testing.T) (*Engine, persistence.Persistence, eventbus.EventBus) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(logger, pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	eng, store := setupWithBus(t, bus)

	return eng, store, bus
}

func setupWithBus(t *testing.T, bus eventbus.EventBus) (*Engine, persistence.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(logger)
	reg.RegisterAction(updatefield.NewActionFactory(store.Records()))
	reg.RegisterAction(tag.NewAddFactory(store.Records()))
	reg.RegisterAction(webhook.NewActionFactory())
	reg.RegisterAction(notify.NewActionFactory(&notify.LogNotifier{Logger: logger}))
	reg.RegisterAction(sendemail.NewActionFactory(&sendemail.LogSender{Logger: logger}))

	exec := executor.NewExecutor(logger, reg, store.Reports())
	matcher := trigger.NewMatcher(logger)
	run := runner.NewRunner(logger, store, matcher, exec)

	resolver := &approval.StaticResolver{
		Roles:    map[string][]string{"finance": {"fin-1"}},
		Managers: map[string]string{"owner-1": "mgr-1"},
	}
	approvals := approval.NewEngine(logger, store, resolver, exec, clockwork.NewFakeClock())
	macros := macro.NewExecutor(logger, store, run)
	deduper := dedupe.NewResolver(logger, store.Records(), dedupe.NewLocalLocker())

	return New(logger, store, reg, matcher, run, approvals, macros, deduper, bus), store
}

func seedRecord(t *testing.T, store persistence.Persistence) *models.Record {
	t.Helper()

	record := &models.Record{
		ID:       "deal-1",
		ModuleID: "deals",
		OwnerID:  "owner-1",
		Stage:    "negotiation",
		Data:     map[string]any{"amount": 50000.0},
	}
	require.NoError(t, store.Records().SaveRecord(context.Background(), record))

	return record
}

func collectEvents(t *testing.T, bus eventbus.EventBus) <-chan *models.RecordEvent {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	events := make(chan *models.RecordEvent, 16)

	require.NoError(t, bus.Subscribe(ctx, func(_ context.Context, event *models.RecordEvent) error {
		events <- event

		return nil
	}))

	return events
}

func updateEvent(record *models.Record) *models.RecordEvent {
	return &models.RecordEvent{
		ID:         "evt-1",
		Type:       models.EventRecordUpdated,
		ModuleID:   "deals",
		Record:     record,
		OccurredAt: time.Now().UTC(),
	}
}

func TestProcessEventRunsWorkflowsAndQueuesFollowUps(t *testing.T) {
	eng, store, bus := setup(t)
	record := seedRecord(t, store)

	def := &models.AutomationDefinition{
		ID:        "wf-1",
		ModuleID:  "deals",
		Name:      "tag big deals",
		Kind:      models.DefinitionWorkflow,
		IsEnabled: true,
		Trigger:   &models.TriggerConfig{Type: models.TriggerOnUpdate},
		Conditions: []models.ConditionNode{
			{Field: "amount", Operator: models.OperatorGte, Value: 10000.0},
		},
		Actions: []models.ActionSpec{
			{ID: "a1", Type: models.ActionAddTag, Configuration: map[string]any{"tag": "big-deal"}},
		},
	}
	require.NoError(t, store.Definitions().SaveAutomation(context.Background(), def))

	events := collectEvents(t, bus)

	require.NoError(t, eng.ProcessEvent(context.Background(), updateEvent(record)))

	stored, err := store.Records().GetRecord(context.Background(), "deals", "deal-1")
	require.NoError(t, err)
	assert.Contains(t, stored.Data[tag.TagsField], "big-deal")

	select {
	case followUp := <-events:
		assert.Equal(t, models.EventRecordUpdated, followUp.Type)
		assert.Equal(t, 1, followUp.Depth)
		assert.Equal(t, []string{tag.TagsField}, followUp.ChangedFields)
	case <-time.After(2 * time.Second):
		t.Fatal("follow-up event not queued")
	}
}

func TestProcessEventStartsMatchingApproval(t *testing.T) {
	eng, store, _ := setup(t)
	record := seedRecord(t, store)

	process := &models.ApprovalProcessDefinition{
		ID:        "proc-1",
		ModuleID:  "deals",
		Name:      "big deal approval",
		IsEnabled: true,
		Trigger:   models.TriggerConfig{Type: models.TriggerOnUpdate},
		Conditions: []models.ConditionNode{
			{Field: "amount", Operator: models.OperatorGte, Value: 10000.0},
		},
		Steps: []models.ApprovalStepDefinition{
			{Type: models.ApproverManager},
		},
	}
	require.NoError(t, store.Definitions().SaveApprovalProcess(context.Background(), process))

	require.NoError(t, eng.ProcessEvent(context.Background(), updateEvent(record)))

	req, err := store.Approvals().OpenRequestForRecord(context.Background(), "proc-1", "deal-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.Status)

	// replaying the event must not open a second request
	require.NoError(t, eng.ProcessEvent(context.Background(), updateEvent(record)))

	pending, err := eng.ListPendingApprovals(context.Background(), models.Actor{ID: "mgr-1"})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestProcessEventSkipsSteplessApproval(t *testing.T) {
	eng, store, _ := setup(t)
	record := seedRecord(t, store)

	// a stepless definition can only exist via a direct store write; the
	// event pipeline must treat it as a no-match, not a fault
	process := &models.ApprovalProcessDefinition{
		ID:        "proc-empty",
		ModuleID:  "deals",
		Name:      "misconfigured approval",
		IsEnabled: true,
		Trigger:   models.TriggerConfig{Type: models.TriggerOnUpdate},
	}
	require.NoError(t, store.Definitions().SaveApprovalProcess(context.Background(), process))

	require.NoError(t, eng.ProcessEvent(context.Background(), updateEvent(record)))

	_, err := store.Approvals().OpenRequestForRecord(context.Background(), "proc-empty", "deal-1")
	assert.ErrorIs(t, err, persistence.ErrRequestNotFound)
}

func TestSubmitWebformQueuesCreatedEvent(t *testing.T) {
	eng, _, bus := setup(t)

	events := collectEvents(t, bus)

	res, err := eng.SubmitWebform(context.Background(), dedupe.Submission{
		ModuleID:  "leads",
		WebformID: "contact-form",
		Fields:    map[string]any{"email": "jo@example.com"},
	}, models.DedupeConfig{Enabled: true, Fields: []string{"email"}, Strategy: models.DedupeSkip})
	require.NoError(t, err)
	assert.True(t, res.IsNew)

	select {
	case event := <-events:
		assert.Equal(t, models.EventRecordCreated, event.Type)
		assert.Equal(t, "contact-form", event.WebformID)
	case <-time.After(2 * time.Second):
		t.Fatal("submission event not queued")
	}

	// a duplicate submission is counted but emits nothing
	res, err = eng.SubmitWebform(context.Background(), dedupe.Submission{
		ModuleID:  "leads",
		WebformID: "contact-form",
		Fields:    map[string]any{"email": "jo@example.com"},
	}, models.DedupeConfig{Enabled: true, Fields: []string{"email"}, Strategy: models.DedupeSkip})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestPreviewWorkflowIsIdempotent(t *testing.T) {
	eng, store, _ := setup(t)
	seedRecord(t, store)

	def := &models.AutomationDefinition{
		ID:        "wf-1",
		ModuleID:  "deals",
		Name:      "close deal",
		Kind:      models.DefinitionWorkflow,
		IsEnabled: true,
		Trigger:   &models.TriggerConfig{Type: models.TriggerOnUpdate},
		Actions: []models.ActionSpec{
			{ID: "a1", Type: models.ActionUpdateField, Configuration: map[string]any{"field": "stage", "value": "won"}},
		},
	}
	require.NoError(t, store.Definitions().SaveAutomation(context.Background(), def))

	first, err := eng.PreviewWorkflow(context.Background(), "wf-1", "deal-1")
	require.NoError(t, err)

	second, err := eng.PreviewWorkflow(context.Background(), "wf-1", "deal-1")
	require.NoError(t, err)

	assert.Equal(t, first.Actions[0].Description, second.Actions[0].Description)
	assert.Equal(t, models.ActionPreviewed, first.Actions[0].Status)

	record, err := store.Records().GetRecord(context.Background(), "deals", "deal-1")
	require.NoError(t, err)
	assert.Equal(t, "negotiation", record.Stage)

	history, err := eng.ExecutionHistory(context.Background(), "deals", "deal-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRunMacroQueuesMutations(t *testing.T) {
	eng, store, bus := setup(t)
	seedRecord(t, store)

	def := &models.AutomationDefinition{
		ID:           "macro-1",
		ModuleID:     "deals",
		Name:         "mark reviewed",
		Kind:         models.DefinitionMacro,
		IsEnabled:    true,
		AllowedRoles: []string{"sales"},
		Actions: []models.ActionSpec{
			{ID: "a1", Type: models.ActionUpdateField, Configuration: map[string]any{"field": "reviewed", "value": "yes"}},
		},
	}
	require.NoError(t, store.Definitions().SaveAutomation(context.Background(), def))

	events := collectEvents(t, bus)

	report, err := eng.RunMacro(context.Background(), "macro-1", models.Actor{ID: "u-1", Roles: []string{"sales"}}, "deal-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReportSucceeded, report.Status)

	select {
	case event := <-events:
		assert.Equal(t, models.EventRecordUpdated, event.Type)
		assert.Equal(t, 1, event.Depth)
	case <-time.After(2 * time.Second):
		t.Fatal("mutation event not queued")
	}
}

func TestSaveAutomationValidation(t *testing.T) {
	eng, _, _ := setup(t)
	ctx := context.Background()

	base := func() *models.AutomationDefinition {
		return &models.AutomationDefinition{
			ModuleID:  "deals",
			Name:      "valid workflow",
			Kind:      models.DefinitionWorkflow,
			IsEnabled: true,
			Trigger:   &models.TriggerConfig{Type: models.TriggerOnUpdate},
			Actions: []models.ActionSpec{
				{ID: "a1", Type: models.ActionUpdateField, Configuration: map[string]any{"field": "stage", "value": "won"}},
			},
		}
	}

	require.NoError(t, eng.SaveAutomation(ctx, base(), nil))

	noTrigger := base()
	noTrigger.Trigger = nil
	assert.ErrorIs(t, eng.SaveAutomation(ctx, noTrigger, nil), ErrInvalidDefinition)

	badCron := base()
	badCron.Trigger = &models.TriggerConfig{Type: models.TriggerScheduled, Cron: "nope"}
	assert.ErrorIs(t, eng.SaveAutomation(ctx, badCron, nil), ErrInvalidDefinition)

	unknownAction := base()
	unknownAction.Actions = []models.ActionSpec{{ID: "a1", Type: "no_such_action"}}
	assert.ErrorIs(t, eng.SaveAutomation(ctx, unknownAction, nil), ErrInvalidDefinition)

	macroWithTrigger := base()
	macroWithTrigger.Kind = models.DefinitionMacro
	assert.ErrorIs(t, eng.SaveAutomation(ctx, macroWithTrigger, nil), ErrInvalidDefinition)

	badCondition := base()
	badCondition.Conditions = []models.ConditionNode{{Field: "", Operator: models.OperatorEquals}}
	assert.ErrorIs(t, eng.SaveAutomation(ctx, badCondition, nil), ErrInvalidDefinition)
}

func TestSaveApprovalProcessValidation(t *testing.T) {
	eng, _, _ := setup(t)
	ctx := context.Background()

	base := func() *models.ApprovalProcessDefinition {
		return &models.ApprovalProcessDefinition{
			ModuleID:  "deals",
			Name:      "deal approval",
			IsEnabled: true,
			Trigger:   models.TriggerConfig{Type: models.TriggerOnUpdate},
			Steps: []models.ApprovalStepDefinition{
				{Type: models.ApproverRole, Value: "finance"},
			},
		}
	}

	require.NoError(t, eng.SaveApprovalProcess(ctx, base(), nil))

	noValue := base()
	noValue.Steps = []models.ApprovalStepDefinition{{Type: models.ApproverRole}}
	assert.ErrorIs(t, eng.SaveApprovalProcess(ctx, noValue, nil), ErrInvalidDefinition)

	noSteps := base()
	noSteps.Steps = nil
	assert.ErrorIs(t, eng.SaveApprovalProcess(ctx, noSteps, nil), ErrInvalidDefinition)

	badOutcome := base()
	badOutcome.OnApproveActions = []models.ActionSpec{{ID: "a1", Type: "no_such_action"}}
	assert.ErrorIs(t, eng.SaveApprovalProcess(ctx, badOutcome, nil), ErrInvalidDefinition)
}
