// Package subworkflow provides the run_sub_workflow action handler.
package subworkflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rulegate/rulegate/pkg/models"
)

var ErrDefinitionMissing = errors.New("missing or invalid 'definition_id' in configuration")

// DefinitionRunner runs another workflow definition against the current
// execution context. The workflow runner implements it; the indirection
// keeps this package free of a dependency cycle. RunSub honors the context's
// execution mode, so dry runs nest.
type DefinitionRunner interface {
	RunSub(ctx context.Context, definitionID string, execCtx *models.ExecutionContext) (*models.ExecutionReport, error)
}

// Action runs a named workflow definition inline, sharing the parent's
// record, depth and mode. A fatal failure in the sub-workflow aborts the
// parent chain.
type Action struct {
	ID           string
	DefinitionID string
	runner       DefinitionRunner
}

// NewAction creates a new run_sub_workflow action from configuration.
func NewAction(config map[string]any, runner DefinitionRunner) (*Action, error) {
	actionID, _ := config["id"].(string)

	definitionID, ok := config["definition_id"].(string)
	if !ok || definitionID == "" {
		return nil, ErrDefinitionMissing
	}

	return &Action{
		ID:           actionID,
		DefinitionID: definitionID,
		runner:       runner,
	}, nil
}

// Apply runs the sub-workflow and surfaces its outcome.
func (a *Action) Apply(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	report, err := a.runner.RunSub(ctx, a.DefinitionID, execCtx)
	if err != nil {
		return nil, fmt.Errorf("sub-workflow %s: %w", a.DefinitionID, err)
	}

	logger.InfoContext(ctx, "Sub-workflow finished",
		"definition_id", a.DefinitionID, "status", report.Status)

	if report.Failed() {
		return nil, fmt.Errorf("sub-workflow %s failed: %s", a.DefinitionID, firstFailure(report))
	}

	return map[string]any{
		"definition_id": a.DefinitionID,
		"report_id":     report.ID,
		"status":        string(report.Status),
	}, nil
}

// Preview runs the sub-workflow in dry-run mode through the same runner.
func (a *Action) Preview(ctx context.Context, execCtx *models.ExecutionContext) (map[string]any, string, error) {
	report, err := a.runner.RunSub(ctx, a.DefinitionID, execCtx)
	if err != nil {
		return nil, "", fmt.Errorf("sub-workflow %s: %w", a.DefinitionID, err)
	}

	output := map[string]any{
		"definition_id": a.DefinitionID,
		"report_id":     report.ID,
		"status":        string(report.Status),
	}

	return output, fmt.Sprintf("would run sub-workflow %s (%d actions)", a.DefinitionID, len(report.Actions)), nil
}

func firstFailure(report *models.ExecutionReport) string {
	for _, result := range report.Actions {
		if result.Status == models.ActionFailed {
			return result.Error
		}
	}

	return "unknown failure"
}
