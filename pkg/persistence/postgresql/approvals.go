package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
)

// ApprovalRepository handles approval request and step instance operations.
// All state changes go through conditional updates so concurrent deciders and
// sweepers cannot double-transition a row.
type ApprovalRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewApprovalRepository creates a new approval repository.
func NewApprovalRepository(db *sql.DB, logger *slog.Logger) *ApprovalRepository {
	return &ApprovalRepository{db: db, logger: logger}
}

// CreateRequest persists a new request together with its first pending step
// instance in one transaction.
func (r *ApprovalRepository) CreateRequest(ctx context.Context, req *models.ApprovalRequest, first *models.ApprovalStepInstance) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stepsJSON, err := json.Marshal(req.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal step snapshot: %w", err)
	}

	requestQuery := `
		INSERT INTO approval_requests (id, process_id, module_id, record_id, status,
			current_step_index, steps, auto_approve_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = tx.ExecContext(ctx, requestQuery,
		req.ID,
		req.ProcessID,
		req.ModuleID,
		req.RecordID,
		req.Status,
		req.CurrentStepIndex,
		stepsJSON,
		req.AutoApproveAt,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval request: %w", err)
	}

	err = r.insertStep(ctx, tx, first)
	if err != nil {
		return fmt.Errorf("failed to insert first step instance: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// RequestByID returns an approval request by its ID.
func (r *ApprovalRepository) RequestByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	query := requestSelect + ` WHERE id = $1`

	req, err := r.scanRequest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("RequestByID", "request", id, persistence.ErrRequestNotFound)
		}

		return nil, fmt.Errorf("failed to scan approval request: %w", err)
	}

	return req, nil
}

// OpenRequestForRecord returns the non-terminal request for the
// (process, record) pair.
func (r *ApprovalRepository) OpenRequestForRecord(ctx context.Context, processID, recordID string) (*models.ApprovalRequest, error) {
	query := requestSelect + ` WHERE process_id = $1 AND record_id = $2 AND status = 'pending'`

	req, err := r.scanRequest(r.db.QueryRowContext(ctx, query, processID, recordID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("OpenRequestForRecord", "request", recordID, persistence.ErrRequestNotFound)
		}

		return nil, fmt.Errorf("failed to scan approval request: %w", err)
	}

	return req, nil
}

// PendingStep returns the single pending instance at the given step index.
func (r *ApprovalRepository) PendingStep(ctx context.Context, requestID string, stepIndex int) (*models.ApprovalStepInstance, error) {
	query := stepSelect + ` WHERE request_id = $1 AND step_index = $2 AND status = 'pending'`

	step, err := r.scanStep(r.db.QueryRowContext(ctx, query, requestID, stepIndex))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("PendingStep", "step", requestID, persistence.ErrStepNotFound)
		}

		return nil, fmt.Errorf("failed to scan step instance: %w", err)
	}

	return step, nil
}

// StepsByRequest returns all step instances for a request in creation order.
func (r *ApprovalRepository) StepsByRequest(ctx context.Context, requestID string) ([]*models.ApprovalStepInstance, error) {
	query := stepSelect + ` WHERE request_id = $1 ORDER BY created_at`

	return r.querySteps(ctx, query, requestID)
}

// CreateStep persists a new step instance.
func (r *ApprovalRepository) CreateStep(ctx context.Context, step *models.ApprovalStepInstance) error {
	err := r.insertStep(ctx, r.db, step)
	if err != nil {
		return fmt.Errorf("failed to insert step instance: %w", err)
	}

	return nil
}

// TransitionStep atomically moves a step instance from expected to next,
// applying the decision fields. The WHERE clause on the current status makes
// the first writer win; a zero rows-affected result means the race was lost.
func (r *ApprovalRepository) TransitionStep(ctx context.Context, instanceID string, expected, next models.StepStatus, decision persistence.StepDecision) (*models.ApprovalStepInstance, error) {
	query := `
		UPDATE approval_steps SET
			status = $1,
			decided_by = $2,
			decided_at = $3,
			comment = $4,
			delegated_to = $5
		WHERE id = $6 AND status = $7
	`

	var decidedAt *time.Time
	if !decision.DecidedAt.IsZero() {
		decidedAt = &decision.DecidedAt
	}

	result, err := r.db.ExecContext(ctx, query,
		next,
		decision.DecidedBy,
		decidedAt,
		decision.Comment,
		decision.DelegatedTo,
		instanceID,
		expected,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to transition step instance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return nil, persistence.NewStoreError("TransitionStep", "step", instanceID, persistence.ErrTransitionConflict)
	}

	step, err := r.scanStep(r.db.QueryRowContext(ctx, stepSelect+` WHERE id = $1`, instanceID))
	if err != nil {
		return nil, fmt.Errorf("failed to reload step instance: %w", err)
	}

	return step, nil
}

// TransitionRequest atomically moves a request from
// (expectedStatus, expectedStep) to (newStatus, newStep).
func (r *ApprovalRepository) TransitionRequest(ctx context.Context, requestID string, expectedStatus models.RequestStatus, expectedStep int, newStatus models.RequestStatus, newStep int) (*models.ApprovalRequest, error) {
	query := `
		UPDATE approval_requests SET
			status = $1,
			current_step_index = $2,
			updated_at = NOW()
		WHERE id = $3 AND status = $4 AND current_step_index = $5
	`

	result, err := r.db.ExecContext(ctx, query, newStatus, newStep, requestID, expectedStatus, expectedStep)
	if err != nil {
		return nil, fmt.Errorf("failed to transition approval request: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return nil, persistence.NewStoreError("TransitionRequest", "request", requestID, persistence.ErrTransitionConflict)
	}

	req, err := r.scanRequest(r.db.QueryRowContext(ctx, requestSelect+` WHERE id = $1`, requestID))
	if err != nil {
		return nil, fmt.Errorf("failed to reload approval request: %w", err)
	}

	return req, nil
}

// ListPendingByApprover returns pending step instances whose resolved
// approver set contains the given user.
func (r *ApprovalRepository) ListPendingByApprover(ctx context.Context, approverID string) ([]*models.ApprovalStepInstance, error) {
	query := stepSelect + ` WHERE status = 'pending' AND resolved_approver_ids @> $1 ORDER BY created_at`

	approverJSON, err := json.Marshal([]string{approverID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal approver filter: %w", err)
	}

	return r.querySteps(ctx, query, approverJSON)
}

// ListRequestsByRecord returns every request ever opened for a record,
// newest first.
func (r *ApprovalRepository) ListRequestsByRecord(ctx context.Context, moduleID, recordID string) ([]*models.ApprovalRequest, error) {
	query := requestSelect + ` WHERE module_id = $1 AND record_id = $2 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, moduleID, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval requests: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	requests := make([]*models.ApprovalRequest, 0)

	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval request: %w", err)
		}

		requests = append(requests, req)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating approval requests: %w", err)
	}

	return requests, nil
}

// ListPendingPastDeadline returns pending step instances whose deadline has
// passed.
func (r *ApprovalRepository) ListPendingPastDeadline(ctx context.Context, now time.Time) ([]*models.ApprovalStepInstance, error) {
	query := stepSelect + ` WHERE status = 'pending' AND deadline IS NOT NULL AND deadline <= $1 ORDER BY deadline`

	return r.querySteps(ctx, query, now)
}

// ListPendingAutoApprove returns pending requests whose auto-approve deadline
// has passed.
func (r *ApprovalRepository) ListPendingAutoApprove(ctx context.Context, now time.Time) ([]*models.ApprovalRequest, error) {
	query := requestSelect + ` WHERE status = 'pending' AND auto_approve_at IS NOT NULL AND auto_approve_at <= $1 ORDER BY auto_approve_at`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query auto-approve requests: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	requests := make([]*models.ApprovalRequest, 0)

	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval request: %w", err)
		}

		requests = append(requests, req)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating approval requests: %w", err)
	}

	return requests, nil
}

const requestSelect = `
	SELECT
		id
	  , process_id
	  , module_id
	  , record_id
	  , status
	  , current_step_index
	  , steps
	  , auto_approve_at
	  , created_at
	  , updated_at
	FROM approval_requests
`

const stepSelect = `
	SELECT
		id
	  , request_id
	  , step_index
	  , resolved_approver_ids
	  , status
	  , decided_by
	  , decided_at
	  , comment
	  , delegated_to
	  , deadline
	  , created_at
	FROM approval_steps
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *ApprovalRepository) insertStep(ctx context.Context, db execer, step *models.ApprovalStepInstance) error {
	approversJSON, err := json.Marshal(step.ResolvedApproverIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal resolved approvers: %w", err)
	}

	query := `
		INSERT INTO approval_steps (id, request_id, step_index, resolved_approver_ids,
			status, decided_by, decided_at, comment, delegated_to, deadline, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = db.ExecContext(ctx, query,
		step.ID,
		step.RequestID,
		step.StepIndex,
		approversJSON,
		step.Status,
		step.DecidedBy,
		step.DecidedAt,
		step.Comment,
		step.DelegatedTo,
		step.Deadline,
		step.CreatedAt,
	)

	return err
}

func (r *ApprovalRepository) querySteps(ctx context.Context, query string, args ...any) ([]*models.ApprovalStepInstance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query step instances: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	steps := make([]*models.ApprovalStepInstance, 0)

	for rows.Next() {
		step, err := r.scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step instance: %w", err)
		}

		steps = append(steps, step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating step instances: %w", err)
	}

	return steps, nil
}

func (r *ApprovalRepository) scanRequest(scanner interface {
	Scan(dest ...any) error
}) (*models.ApprovalRequest, error) {
	var (
		req       models.ApprovalRequest
		stepsJSON []byte
	)

	err := scanner.Scan(
		&req.ID,
		&req.ProcessID,
		&req.ModuleID,
		&req.RecordID,
		&req.Status,
		&req.CurrentStepIndex,
		&stepsJSON,
		&req.AutoApproveAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(stepsJSON, &req.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal step snapshot: %w", err)
	}

	return &req, nil
}

func (r *ApprovalRepository) scanStep(scanner interface {
	Scan(dest ...any) error
}) (*models.ApprovalStepInstance, error) {
	var (
		step          models.ApprovalStepInstance
		approversJSON []byte
	)

	err := scanner.Scan(
		&step.ID,
		&step.RequestID,
		&step.StepIndex,
		&approversJSON,
		&step.Status,
		&step.DecidedBy,
		&step.DecidedAt,
		&step.Comment,
		&step.DelegatedTo,
		&step.Deadline,
		&step.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(approversJSON, &step.ResolvedApproverIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal resolved approvers: %w", err)
	}

	return &step, nil
}
