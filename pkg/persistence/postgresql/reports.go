package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
)

// ReportRepository handles execution report operations.
type ReportRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewReportRepository creates a new report repository.
func NewReportRepository(db *sql.DB, logger *slog.Logger) *ReportRepository {
	return &ReportRepository{db: db, logger: logger}
}

// SaveReport persists an execution report. Reports are append-only.
func (r *ReportRepository) SaveReport(ctx context.Context, report *models.ExecutionReport) error {
	actionsJSON, err := json.Marshal(report.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal action results: %w", err)
	}

	query := `
		INSERT INTO execution_reports (id, definition_id, record_id, module_id, mode,
			status, actions, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		report.ID,
		report.DefinitionID,
		report.RecordID,
		report.ModuleID,
		report.Mode,
		report.Status,
		actionsJSON,
		report.StartedAt,
		report.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution report: %w", err)
	}

	return nil
}

// ReportByID returns an execution report by its ID.
func (r *ReportRepository) ReportByID(ctx context.Context, id string) (*models.ExecutionReport, error) {
	query := reportSelect + ` WHERE id = $1`

	report, err := r.scanReport(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("ReportByID", "report", id, persistence.ErrReportNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution report: %w", err)
	}

	return report, nil
}

// ListReportsByRecord returns the reports for a record, oldest first.
func (r *ReportRepository) ListReportsByRecord(ctx context.Context, moduleID, recordID string) ([]*models.ExecutionReport, error) {
	query := reportSelect + ` WHERE module_id = $1 AND record_id = $2 ORDER BY started_at`

	rows, err := r.db.QueryContext(ctx, query, moduleID, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution reports: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	reports := make([]*models.ExecutionReport, 0)

	for rows.Next() {
		report, err := r.scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution report: %w", err)
		}

		reports = append(reports, report)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating execution reports: %w", err)
	}

	return reports, nil
}

const reportSelect = `
	SELECT
		id
	  , definition_id
	  , record_id
	  , module_id
	  , mode
	  , status
	  , actions
	  , started_at
	  , finished_at
	FROM execution_reports
`

func (r *ReportRepository) scanReport(scanner interface {
	Scan(dest ...any) error
}) (*models.ExecutionReport, error) {
	var (
		report      models.ExecutionReport
		recordID    sql.NullString
		actionsJSON []byte
	)

	err := scanner.Scan(
		&report.ID,
		&report.DefinitionID,
		&recordID,
		&report.ModuleID,
		&report.Mode,
		&report.Status,
		&actionsJSON,
		&report.StartedAt,
		&report.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	report.RecordID = recordID.String

	err = json.Unmarshal(actionsJSON, &report.Actions)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal action results: %w", err)
	}

	return &report, nil
}
