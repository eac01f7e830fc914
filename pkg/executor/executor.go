// Package executor dispatches a definition's actions in order and records
// the outcome as an execution report.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/otelhelper"
	"github.com/rulegate/rulegate/pkg/persistence"
	"github.com/rulegate/rulegate/pkg/protocol"
	"github.com/rulegate/rulegate/pkg/registry"
)

// Executor runs the action chain of one definition. Actions run strictly in
// list order; a fatal failure aborts the remainder of the chain, a
// recoverable failure is recorded and the chain continues.
type Executor struct {
	logger   *slog.Logger
	registry *registry.Registry
	reports  persistence.ReportRepository
	tracer   trace.Tracer
}

// NewExecutor creates an executor around the given registry and report
// store.
func NewExecutor(logger *slog.Logger, reg *registry.Registry, reports persistence.ReportRepository) *Executor {
	return &Executor{
		logger:   logger.With("module", "executor"),
		registry: reg,
		reports:  reports,
		tracer:   otel.Tracer("rulegate/executor"),
	}
}

// Execute runs the definition's actions against the execution context and
// persists the resulting report, except for dry runs, which persist nothing.
// The returned error covers infrastructure failures only; handler failures
// are reflected in the report.
func (e *Executor) Execute(ctx context.Context, def *models.AutomationDefinition, execCtx *models.ExecutionContext) (*models.ExecutionReport, error) {
	logger := e.logger.With(
		"definition_id", def.ID,
		"execution_id", execCtx.ID,
		"mode", execCtx.Mode,
	)
	logger.InfoContext(ctx, "Starting action chain", "actions", len(def.Actions))

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "executor.execute",
		attribute.String(otelhelper.DefinitionIDKey, def.ID),
		attribute.String(otelhelper.DefinitionKindKey, string(def.Kind)),
		attribute.String(otelhelper.ModuleIDKey, execCtx.ModuleID),
		attribute.String(otelhelper.ExecutionIDKey, execCtx.ID),
		attribute.String(otelhelper.ExecutionModeKey, string(execCtx.Mode)),
	)
	defer span.End()

	if execCtx.Scratch == nil {
		execCtx.Scratch = make(map[string]any)
	}

	reportID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate report ID: %w", err)
	}

	report := &models.ExecutionReport{
		ID:           reportID.String(),
		DefinitionID: def.ID,
		ModuleID:     execCtx.ModuleID,
		Mode:         execCtx.Mode,
		Status:       models.ReportSucceeded,
		Actions:      make([]models.ActionResult, 0, len(def.Actions)),
		StartedAt:    time.Now().UTC(),
	}

	if execCtx.Record != nil {
		report.RecordID = execCtx.Record.ID
	}

	for index, spec := range def.Actions {
		result := e.runAction(ctx, index, spec, execCtx, logger)
		report.Actions = append(report.Actions, result)

		if result.Status == models.ActionFailed && result.Severity == models.SeverityFatal {
			report.Status = models.ReportFailed

			e.skipRemaining(report, def.Actions, index+1)

			break
		}
	}

	report.FinishedAt = time.Now().UTC()

	// Dry runs leave no trace: the report goes back to the caller only.
	if execCtx.Mode != models.ModeDryRun {
		err = e.reports.SaveReport(ctx, report)
		if err != nil {
			return nil, fmt.Errorf("failed to save execution report: %w", err)
		}
	}

	logger.InfoContext(ctx, "Action chain finished",
		"report_id", report.ID, "status", report.Status)

	return report, nil
}

func (e *Executor) runAction(ctx context.Context, index int, spec models.ActionSpec, execCtx *models.ExecutionContext, logger *slog.Logger) models.ActionResult {
	result := models.ActionResult{
		Index:    index,
		ActionID: spec.ID,
		Type:     spec.Type,
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "executor.action",
		attribute.String(otelhelper.ActionIDKey, spec.ID),
		attribute.String(otelhelper.ActionTypeKey, string(spec.Type)),
	)
	defer span.End()

	handler, err := e.registry.CreateHandler(spec)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to materialize action handler",
			"action_index", index, "action_type", spec.Type, "error", err)
		otelhelper.SetError(span, err)

		result.Status = models.ActionFailed
		result.Severity = models.SeverityFatal
		result.Error = err.Error()

		return result
	}

	if execCtx.Mode == models.ModeDryRun {
		output, description, err := handler.Preview(ctx, execCtx)
		if err != nil {
			otelhelper.SetError(span, err)

			result.Status = models.ActionFailed
			result.Severity = classifySeverity(err)
			result.Error = err.Error()

			return result
		}

		result.Status = models.ActionPreviewed
		result.Output = output
		result.Description = description

		e.stash(execCtx, spec.ID, output)

		return result
	}

	output, err := handler.Apply(ctx, execCtx, logger)
	if err != nil {
		severity := classifySeverity(err)
		logger.ErrorContext(ctx, "Action failed",
			"action_index", index, "action_type", spec.Type,
			"severity", severity, "error", err)
		otelhelper.SetError(span, err)

		result.Status = models.ActionFailed
		result.Severity = severity
		result.Error = err.Error()

		return result
	}

	result.Status = models.ActionApplied
	result.Output = output

	e.stash(execCtx, spec.ID, output)

	return result
}

func (e *Executor) stash(execCtx *models.ExecutionContext, actionID string, output map[string]any) {
	if actionID == "" || output == nil {
		return
	}

	execCtx.Scratch[actionID] = output
}

func (e *Executor) skipRemaining(report *models.ExecutionReport, actions []models.ActionSpec, from int) {
	for index := from; index < len(actions); index++ {
		report.Actions = append(report.Actions, models.ActionResult{
			Index:    index,
			ActionID: actions[index].ID,
			Type:     actions[index].Type,
			Status:   models.ActionSkipped,
		})
	}
}

// classifySeverity treats handler errors as fatal unless the handler marked
// them recoverable.
func classifySeverity(err error) models.FailureSeverity {
	var recoverable *protocol.RecoverableError
	if errors.As(err, &recoverable) {
		return models.SeverityRecoverable
	}

	return models.SeverityFatal
}
