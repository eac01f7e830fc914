// Package createrecord provides the create_record action handler.
package createrecord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
	"github.com/rulegate/rulegate/pkg/template"
)

var ErrDataMissing = errors.New("missing or invalid 'data' in configuration")

// Action creates a new record, optionally in another module, and exposes its
// ID to later actions in the chain.
type Action struct {
	ID       string
	ModuleID string
	OwnerID  string
	Stage    string
	Data     map[string]any
	records  persistence.RecordRepository
}

// NewAction creates a new create_record action from configuration.
func NewAction(config map[string]any, records persistence.RecordRepository) (*Action, error) {
	actionID, _ := config["id"].(string)

	data, ok := config["data"].(map[string]any)
	if !ok || len(data) == 0 {
		return nil, ErrDataMissing
	}

	moduleID, _ := config["module_id"].(string)
	ownerID, _ := config["owner_id"].(string)
	stage, _ := config["stage"].(string)

	return &Action{
		ID:       actionID,
		ModuleID: moduleID,
		OwnerID:  ownerID,
		Stage:    stage,
		Data:     data,
		records:  records,
	}, nil
}

// Apply creates and persists the record.
func (a *Action) Apply(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	record, err := a.buildRecord(execCtx)
	if err != nil {
		return nil, err
	}

	err = a.records.SaveRecord(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to save record: %w", err)
	}

	execCtx.AddMutation(models.RecordMutation{
		Type:   models.EventRecordCreated,
		Record: record.Clone(),
	})

	logger.InfoContext(ctx, "Created record",
		"record_id", record.ID, "module_id", record.ModuleID)

	return map[string]any{
		"record_id": record.ID,
		"module_id": record.ModuleID,
		"record":    record,
	}, nil
}

// Preview describes the record that would be created. The output carries a
// placeholder ID so later dry-run actions can still chain on it.
func (a *Action) Preview(_ context.Context, execCtx *models.ExecutionContext) (map[string]any, string, error) {
	record, err := a.buildRecord(execCtx)
	if err != nil {
		return nil, "", err
	}

	output := map[string]any{
		"record_id": record.ID,
		"module_id": record.ModuleID,
		"record":    record,
	}

	return output, fmt.Sprintf("would create record in module %s with %d fields", record.ModuleID, len(record.Data)), nil
}

func (a *Action) buildRecord(execCtx *models.ExecutionContext) (*models.Record, error) {
	moduleID := a.ModuleID
	if moduleID == "" {
		moduleID = execCtx.ModuleID
	}

	data := make(map[string]any, len(a.Data))

	for field, value := range a.Data {
		if s, ok := value.(string); ok {
			rendered, err := template.RenderWithContext(s, execCtx)
			if err != nil {
				return nil, fmt.Errorf("failed to render field %q: %w", field, err)
			}

			data[field] = rendered

			continue
		}

		data[field] = value
	}

	ownerID := a.OwnerID
	if ownerID != "" {
		rendered, err := template.RenderString(ownerID, execCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render owner: %w", err)
		}

		ownerID = rendered
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate record ID: %w", err)
	}

	now := time.Now().UTC()

	return &models.Record{
		ID:        id.String(),
		ModuleID:  moduleID,
		OwnerID:   ownerID,
		Stage:     a.Stage,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
