// Package macro runs manually invoked automations with role gating.
package macro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rulegate/rulegate/pkg/condition"
	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
	"github.com/rulegate/rulegate/pkg/runner"
)

var (
	// ErrNotAMacro indicates the definition exists but is a workflow.
	ErrNotAMacro = errors.New("definition is not a macro")

	// ErrMacroDisabled indicates the macro is switched off.
	ErrMacroDisabled = errors.New("macro is disabled")

	// ErrRoleDenied indicates the actor holds none of the macro's allowed
	// roles.
	ErrRoleDenied = errors.New("actor lacks a role allowed to run this macro")

	// ErrConditionsNotMet indicates the target record does not satisfy the
	// macro's conditions.
	ErrConditionsNotMet = errors.New("record does not satisfy macro conditions")
)

// Executor runs macros against single records on behalf of an actor.
type Executor struct {
	logger *slog.Logger
	store  persistence.Persistence
	runner *runner.Runner
}

// NewExecutor creates a macro executor.
func NewExecutor(logger *slog.Logger, store persistence.Persistence, r *runner.Runner) *Executor {
	return &Executor{
		logger: logger.With("module", "macro_executor"),
		store:  store,
		runner: r,
	}
}

// Run executes the macro against one record. The actor must hold one of the
// macro's allowed roles; an empty allowed set means any actor may run it.
// Live runs return the record mutations the action chain produced so the
// caller can feed them back through event handling.
func (e *Executor) Run(ctx context.Context, macroID string, actor models.Actor, recordID string, mode models.ExecutionMode) (*models.ExecutionReport, []models.RecordMutation, error) {
	def, err := e.store.Definitions().AutomationByID(ctx, macroID)
	if err != nil {
		return nil, nil, err
	}

	if def.Kind != models.DefinitionMacro {
		return nil, nil, fmt.Errorf("%q: %w", macroID, ErrNotAMacro)
	}

	if !def.IsEnabled {
		return nil, nil, fmt.Errorf("%q: %w", macroID, ErrMacroDisabled)
	}

	if err := authorize(def, actor); err != nil {
		return nil, nil, err
	}

	record, err := e.store.Records().GetRecord(ctx, def.ModuleID, recordID)
	if err != nil {
		return nil, nil, err
	}

	if !condition.EvaluateAll(record, def.Conditions) {
		return nil, nil, fmt.Errorf("%q on record %q: %w", macroID, recordID, ErrConditionsNotMet)
	}

	e.logger.InfoContext(ctx, "Running macro",
		"macro_id", macroID, "record_id", recordID, "actor_id", actor.ID, "mode", mode)

	report, execCtx, err := e.runner.RunDefinition(ctx, def, record, mode)
	if err != nil {
		return nil, nil, err
	}

	return report, execCtx.Mutations, nil
}

func authorize(def *models.AutomationDefinition, actor models.Actor) error {
	if len(def.AllowedRoles) == 0 {
		return nil
	}

	for _, role := range def.AllowedRoles {
		if actor.HasRole(role) {
			return nil
		}
	}

	return fmt.Errorf("macro %q requires one of %v: %w", def.ID, def.AllowedRoles, ErrRoleDenied)
}
