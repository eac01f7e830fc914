package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
)

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const uniqueViolation = "23505"

// RecordRepository handles business record operations.
type RecordRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRecordRepository creates a new record repository.
func NewRecordRepository(db *sql.DB, logger *slog.Logger) *RecordRepository {
	return &RecordRepository{db: db, logger: logger}
}

// GetRecord returns a record by module and ID.
func (r *RecordRepository) GetRecord(ctx context.Context, moduleID, id string) (*models.Record, error) {
	query := `
		SELECT
			id
		  , module_id
		  , owner_id
		  , stage
		  , data
		  , created_at
		  , updated_at
		FROM records
		WHERE module_id = $1 AND id = $2
	`

	record, err := r.scanRecord(r.db.QueryRowContext(ctx, query, moduleID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetRecord", "record", id, persistence.ErrRecordNotFound)
		}

		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	return record, nil
}

// SaveRecord inserts or updates a record.
func (r *RecordRepository) SaveRecord(ctx context.Context, record *models.Record) error {
	now := time.Now().UTC()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	record.UpdatedAt = now

	dataJSON, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal record data: %w", err)
	}

	query := `
		INSERT INTO records (id, module_id, owner_id, stage, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (module_id, id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			stage = EXCLUDED.stage,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.ModuleID,
		record.OwnerID,
		record.Stage,
		dataJSON,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return persistence.NewStoreError("SaveRecord", "record", record.ID, persistence.ErrDuplicateRecord)
		}

		return fmt.Errorf("failed to save record: %w", err)
	}

	return nil
}

// FindByFields resolves a record matching all field values by equality.
// System fields become column predicates, everything else a JSONB
// containment match served by the GIN index. The oldest match wins when
// several records qualify.
func (r *RecordRepository) FindByFields(ctx context.Context, moduleID string, fields map[string]any) (*models.Record, error) {
	if len(fields) == 0 {
		return nil, persistence.NewStoreError("FindByFields", "record", "", persistence.ErrRecordNotFound)
	}

	query := `
		SELECT
			id
		  , module_id
		  , owner_id
		  , stage
		  , data
		  , created_at
		  , updated_at
		FROM records
		WHERE module_id = $1
	`
	args := []any{moduleID}
	dataFilter := make(map[string]any)

	for field, value := range fields {
		switch field {
		case models.FieldID:
			args = append(args, value)
			query += fmt.Sprintf(" AND id = $%d", len(args))
		case models.FieldOwnerID:
			args = append(args, value)
			query += fmt.Sprintf(" AND owner_id = $%d", len(args))
		case models.FieldStage:
			args = append(args, value)
			query += fmt.Sprintf(" AND stage = $%d", len(args))
		default:
			dataFilter[field] = value
		}
	}

	if len(dataFilter) > 0 {
		filterJSON, err := json.Marshal(dataFilter)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field filter: %w", err)
		}

		args = append(args, filterJSON)
		query += fmt.Sprintf(" AND data @> $%d", len(args))
	}

	query += " ORDER BY created_at LIMIT 1"

	record, err := r.scanRecord(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("FindByFields", "record", "", persistence.ErrRecordNotFound)
		}

		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	return record, nil
}

func (r *RecordRepository) scanRecord(scanner interface {
	Scan(dest ...any) error
}) (*models.Record, error) {
	var (
		record   models.Record
		dataJSON []byte
	)

	err := scanner.Scan(
		&record.ID,
		&record.ModuleID,
		&record.OwnerID,
		&record.Stage,
		&dataJSON,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if dataJSON != nil {
		err := json.Unmarshal(dataJSON, &record.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal record data: %w", err)
		}
	}

	return &record, nil
}
