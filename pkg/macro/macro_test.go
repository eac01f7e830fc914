package macro

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulegate/rulegate/pkg/actions/updatefield"
	"github.com/rulegate/rulegate/pkg/executor"
	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
	"github.com/rulegate/rulegate/pkg/persistence/file"
	"github.com/rulegate/rulegate/pkg/registry"
	"github.com/rulegate/rulegate/pkg/runner"
	"github.com/rulegate/rulegate/pkg/trigger"
)

func setup(t *testing.T) (*Executor, persistence.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(logger)
	reg.RegisterAction(updatefield.NewActionFactory(store.Records()))

	exec := executor.NewExecutor(logger, reg, store.Reports())
	r := runner.NewRunner(logger, store, trigger.NewMatcher(logger), exec)

	return NewExecutor(logger, store, r), store
}

func seed(t *testing.T, store persistence.Persistence, def *models.AutomationDefinition) *models.Record {
	t.Helper()

	require.NoError(t, store.Definitions().SaveAutomation(context.Background(), def))

	record := &models.Record{
		ID:       "deal-1",
		ModuleID: "deals",
		Stage:    "negotiation",
		Data:     map[string]any{"amount": 9000.0},
	}
	require.NoError(t, store.Records().SaveRecord(context.Background(), record))

	return record
}

func closeWonMacro() *models.AutomationDefinition {
	return &models.AutomationDefinition{
		ID:           "macro-close",
		ModuleID:     "deals",
		Name:         "close as won",
		Kind:         models.DefinitionMacro,
		IsEnabled:    true,
		AllowedRoles: []string{"sales_manager"},
		Actions: []models.ActionSpec{
			{ID: "a1", Type: models.ActionUpdateField, Configuration: map[string]any{"field": "stage", "value": "won"}},
		},
	}
}

func TestRunAppliesMacroForAllowedRole(t *testing.T) {
	exec, store := setup(t)
	seed(t, store, closeWonMacro())

	actor := models.Actor{ID: "u-1", Roles: []string{"sales_manager"}}

	report, mutations, err := exec.Run(context.Background(), "macro-close", actor, "deal-1", models.ModeLive)
	require.NoError(t, err)
	assert.Equal(t, models.ReportSucceeded, report.Status)
	require.Len(t, mutations, 1)
	assert.Equal(t, models.EventRecordUpdated, mutations[0].Type)

	record, err := store.Records().GetRecord(context.Background(), "deals", "deal-1")
	require.NoError(t, err)
	assert.Equal(t, "won", record.Stage)
}

func TestRunDeniesActorWithoutRole(t *testing.T) {
	exec, store := setup(t)
	seed(t, store, closeWonMacro())

	actor := models.Actor{ID: "u-2", Roles: []string{"support"}}

	_, _, err := exec.Run(context.Background(), "macro-close", actor, "deal-1", models.ModeLive)
	assert.ErrorIs(t, err, ErrRoleDenied)

	record, err := store.Records().GetRecord(context.Background(), "deals", "deal-1")
	require.NoError(t, err)
	assert.Equal(t, "negotiation", record.Stage)
}

func TestRunAllowsAnyActorWhenNoRolesConfigured(t *testing.T) {
	exec, store := setup(t)

	def := closeWonMacro()
	def.AllowedRoles = nil
	seed(t, store, def)

	_, _, err := exec.Run(context.Background(), "macro-close", models.Actor{ID: "u-3"}, "deal-1", models.ModeLive)
	require.NoError(t, err)
}

func TestRunRejectsWorkflowDefinitions(t *testing.T) {
	exec, store := setup(t)

	def := closeWonMacro()
	def.Kind = models.DefinitionWorkflow
	def.Trigger = &models.TriggerConfig{Type: models.TriggerOnUpdate}
	seed(t, store, def)

	_, _, err := exec.Run(context.Background(), "macro-close", models.Actor{ID: "u-1", Roles: []string{"sales_manager"}}, "deal-1", models.ModeLive)
	assert.ErrorIs(t, err, ErrNotAMacro)
}

func TestRunRejectsDisabledMacro(t *testing.T) {
	exec, store := setup(t)

	def := closeWonMacro()
	def.IsEnabled = false
	seed(t, store, def)

	_, _, err := exec.Run(context.Background(), "macro-close", models.Actor{ID: "u-1", Roles: []string{"sales_manager"}}, "deal-1", models.ModeLive)
	assert.ErrorIs(t, err, ErrMacroDisabled)
}

func TestRunHonorsConditions(t *testing.T) {
	exec, store := setup(t)

	def := closeWonMacro()
	def.Conditions = []models.ConditionNode{
		{Field: "amount", Operator: models.OperatorGt, Value: 10000.0},
	}
	seed(t, store, def)

	_, _, err := exec.Run(context.Background(), "macro-close", models.Actor{ID: "u-1", Roles: []string{"sales_manager"}}, "deal-1", models.ModeLive)
	assert.ErrorIs(t, err, ErrConditionsNotMet)
}

func TestRunDryRunLeavesRecordUntouched(t *testing.T) {
	exec, store := setup(t)
	seed(t, store, closeWonMacro())

	report, mutations, err := exec.Run(context.Background(), "macro-close", models.Actor{ID: "u-1", Roles: []string{"sales_manager"}}, "deal-1", models.ModeDryRun)
	require.NoError(t, err)
	assert.Equal(t, models.ReportSucceeded, report.Status)
	assert.Empty(t, mutations)
	assert.Equal(t, models.ActionPreviewed, report.Actions[0].Status)

	record, err := store.Records().GetRecord(context.Background(), "deals", "deal-1")
	require.NoError(t, err)
	assert.Equal(t, "negotiation", record.Stage)
}
