package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulegate/rulegate/pkg/actions/updatefield"
	"github.com/rulegate/rulegate/pkg/approval"
	"github.com/rulegate/rulegate/pkg/channels/gochannel"
	"github.com/rulegate/rulegate/pkg/dedupe"
	"github.com/rulegate/rulegate/pkg/engine"
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

func setupApp(t *testing.T) (*fiber.App, persistence.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(logger)
	reg.RegisterAction(updatefield.NewActionFactory(store.Records()))

	exec := executor.NewExecutor(logger, reg, store.Reports())
	matcher := trigger.NewMatcher(logger)
	run := runner.NewRunner(logger, store, matcher, exec)

	resolver := &approval.StaticResolver{
		Managers: map[string]string{"owner-1": "mgr-1"},
	}
	approvals := approval.NewEngine(logger, store, resolver, exec, clockwork.NewFakeClock())
	macros := macro.NewExecutor(logger, store, run)
	deduper := dedupe.NewResolver(logger, store.Records(), dedupe.NewLocalLocker())

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(logger, pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	eng := engine.New(logger, store, reg, matcher, run, approvals, macros, deduper, bus)
	handlers := NewAPIHandlers(eng, store, validator.New())

	return NewApp(handlers), store
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

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	return req
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func TestHealthCheck(t *testing.T) {
	app, _ := setupApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSaveAndListAutomations(t *testing.T) {
	app, _ := setupApp(t)

	def := models.AutomationDefinition{
		ModuleID:  "deals",
		Name:      "close big deals",
		Kind:      models.DefinitionWorkflow,
		IsEnabled: true,
		Trigger:   &models.TriggerConfig{Type: models.TriggerOnUpdate},
		Actions: []models.ActionSpec{
			{ID: "a1", Type: models.ActionUpdateField, Configuration: map[string]any{"field": "stage", "value": "won"}},
		},
	}

	resp, err := app.Test(jsonRequest(t, http.MethodPut, "/automations/", def))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	saved := decode[models.AutomationDefinition](t, resp)
	assert.NotEmpty(t, saved.ID)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/automations/?module_id=deals", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	listed := decode[map[string][]models.AutomationDefinition](t, resp)
	assert.Len(t, listed["automations"], 1)
}

func TestSaveAutomationRejectsUnknownAction(t *testing.T) {
	app, _ := setupApp(t)

	def := models.AutomationDefinition{
		ModuleID:  "deals",
		Name:      "broken workflow",
		Kind:      models.DefinitionWorkflow,
		IsEnabled: true,
		Trigger:   &models.TriggerConfig{Type: models.TriggerOnUpdate},
		Actions:   []models.ActionSpec{{ID: "a1", Type: "no_such_action"}},
	}

	resp, err := app.Test(jsonRequest(t, http.MethodPut, "/automations/", def))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetAutomationNotFound(t *testing.T) {
	app, _ := setupApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/automations/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitEvent(t *testing.T) {
	app, store := setupApp(t)
	record := seedRecord(t, store)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/events", SubmitEventRequest{
		Type:     models.EventRecordUpdated,
		ModuleID: "deals",
		Record:   record,
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decode[map[string]string](t, resp)
	assert.NotEmpty(t, body["event_id"])
}

func TestApprovalDecisionFlow(t *testing.T) {
	app, store := setupApp(t)
	record := seedRecord(t, store)

	process := &models.ApprovalProcessDefinition{
		ID:        "proc-1",
		ModuleID:  "deals",
		Name:      "deal approval",
		IsEnabled: true,
		Steps: []models.ApprovalStepDefinition{
			{Type: models.ApproverManager, CanDelegate: true},
		},
	}
	require.NoError(t, store.Definitions().SaveApprovalProcess(context.Background(), process))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.NewRegistry(logger)
	exec := executor.NewExecutor(logger, reg, store.Reports())
	approvals := approval.NewEngine(logger, store, &approval.StaticResolver{Managers: map[string]string{"owner-1": "mgr-1"}}, exec, clockwork.NewFakeClock())

	req, err := approvals.StartForEvent(context.Background(), process, &models.RecordEvent{
		Type: models.EventRecordUpdated, ModuleID: "deals", Record: record,
	})
	require.NoError(t, err)

	// an outsider may not decide
	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/approvals/"+req.ID+"/decision", DecisionRequest{
		Actor:     ActorDTO{ID: "intruder"},
		StepIndex: 0,
		Decision:  models.DecisionApprove,
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// pending list shows the manager's step
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/approvals/pending?approver_id=mgr-1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	pending := decode[map[string][]models.ApprovalStepInstance](t, resp)
	require.Len(t, pending["pending"], 1)

	// the manager approves
	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/approvals/"+req.ID+"/decision", DecisionRequest{
		Actor:     ActorDTO{ID: "mgr-1"},
		StepIndex: 0,
		Decision:  models.DecisionApprove,
		Comment:   "ok",
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decode[models.ApprovalRequest](t, resp)
	assert.Equal(t, models.RequestApproved, updated.Status)

	// deciding a terminal request conflicts
	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/approvals/"+req.ID+"/decision", DecisionRequest{
		Actor:     ActorDTO{ID: "mgr-1"},
		StepIndex: 0,
		Decision:  models.DecisionReject,
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// the record's approval history includes the closed request
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/records/deals/deal-1/approvals", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	history := decode[map[string][]models.ApprovalRequest](t, resp)
	require.Len(t, history["approvals"], 1)
	assert.Equal(t, models.RequestApproved, history["approvals"][0].Status)
}

func TestWebformSubmission(t *testing.T) {
	app, _ := setupApp(t)

	body := WebformSubmissionRequest{
		ModuleID: "leads",
		Fields:   map[string]any{"email": "jo@example.com"},
		Dedupe:   models.DedupeConfig{Enabled: true, Fields: []string{"email"}, Strategy: models.DedupeSkip},
	}

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/webforms/contact-form/submissions", body))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	first := decode[WebformSubmissionResponse](t, resp)
	assert.True(t, first.IsNew)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/webforms/contact-form/submissions", body))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	second := decode[WebformSubmissionResponse](t, resp)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.RecordID, second.RecordID)
}

func TestRunMacroEndpoint(t *testing.T) {
	app, store := setupApp(t)
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

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/macros/macro-1/run", RunMacroRequest{
		Actor:    ActorDTO{ID: "u-1", Roles: []string{"support"}},
		RecordID: "deal-1",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/macros/macro-1/run", RunMacroRequest{
		Actor:    ActorDTO{ID: "u-1", Roles: []string{"sales"}},
		RecordID: "deal-1",
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	report := decode[models.ExecutionReport](t, resp)
	assert.Equal(t, models.ReportSucceeded, report.Status)
}

func TestPreviewEndpointPersistsNothing(t *testing.T) {
	app, store := setupApp(t)
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

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/automations/wf-1/preview", PreviewRequest{RecordID: "deal-1"}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	report := decode[models.ExecutionReport](t, resp)
	assert.Equal(t, models.ActionPreviewed, report.Actions[0].Status)

	record, err := store.Records().GetRecord(context.Background(), "deals", "deal-1")
	require.NoError(t, err)
	assert.Equal(t, "negotiation", record.Stage)

	reports, err := store.Reports().ListReportsByRecord(context.Background(), "deals", "deal-1")
	require.NoError(t, err)
	assert.Empty(t, reports)
}
