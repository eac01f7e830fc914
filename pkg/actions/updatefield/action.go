// Package updatefield provides the update_field action handler.
package updatefield

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
	"github.com/rulegate/rulegate/pkg/template"
)

var (
	ErrFieldMissing  = errors.New("missing or invalid 'field' in configuration")
	ErrFieldReadOnly = errors.New("field is not writable")
)

// Action sets one field of the execution record and persists the change.
type Action struct {
	ID      string
	Field   string
	Value   any
	records persistence.RecordRepository
}

// NewAction creates a new update_field action from configuration.
func NewAction(config map[string]any, records persistence.RecordRepository) (*Action, error) {
	actionID, _ := config["id"].(string)

	field, ok := config["field"].(string)
	if !ok || field == "" {
		return nil, ErrFieldMissing
	}

	if field == models.FieldID {
		return nil, fmt.Errorf("field %q: %w", field, ErrFieldReadOnly)
	}

	return &Action{
		ID:      actionID,
		Field:   field,
		Value:   config["value"],
		records: records,
	}, nil
}

// Apply sets the field on the record and saves it.
func (a *Action) Apply(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	if execCtx.Record == nil {
		return nil, errors.New("no record in execution context")
	}

	value, err := a.resolveValue(execCtx)
	if err != nil {
		return nil, err
	}

	record := execCtx.Record
	oldRecord := record.Clone()

	setField(record, a.Field, value)

	err = a.records.SaveRecord(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to save record: %w", err)
	}

	execCtx.AddMutation(models.RecordMutation{
		Type:          models.EventRecordUpdated,
		Record:        record.Clone(),
		OldRecord:     oldRecord,
		ChangedFields: []string{a.Field},
	})

	logger.InfoContext(ctx, "Updated record field",
		"record_id", record.ID, "field", a.Field)

	return map[string]any{
		"record_id": record.ID,
		"field":     a.Field,
		"value":     value,
	}, nil
}

// Preview describes the write without performing it.
func (a *Action) Preview(_ context.Context, execCtx *models.ExecutionContext) (map[string]any, string, error) {
	value, err := a.resolveValue(execCtx)
	if err != nil {
		return nil, "", err
	}

	recordID := ""
	if execCtx.Record != nil {
		recordID = execCtx.Record.ID
	}

	output := map[string]any{
		"record_id": recordID,
		"field":     a.Field,
		"value":     value,
	}

	return output, fmt.Sprintf("would set field %q to %v on record %s", a.Field, value, recordID), nil
}

func (a *Action) resolveValue(execCtx *models.ExecutionContext) (any, error) {
	if s, ok := a.Value.(string); ok {
		rendered, err := template.RenderWithContext(s, execCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render value: %w", err)
		}

		return rendered, nil
	}

	return a.Value, nil
}

func setField(record *models.Record, field string, value any) {
	switch field {
	case models.FieldOwnerID:
		record.OwnerID = fmt.Sprintf("%v", value)
	case models.FieldStage:
		record.Stage = fmt.Sprintf("%v", value)
	default:
		if record.Data == nil {
			record.Data = make(map[string]any)
		}

		record.Data[field] = value
	}
}
