// Package assignowner provides the assign_owner action handler.
package assignowner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
	"github.com/rulegate/rulegate/pkg/template"
)

var ErrOwnerMissing = errors.New("missing or invalid 'owner_id' in configuration")

// Action sets the owner of a record. By default it targets the triggering
// record; a templated record_id lets it target a record created earlier in
// the chain.
type Action struct {
	ID       string
	OwnerID  string
	RecordID string
	ModuleID string
	records  persistence.RecordRepository
}

// NewAction creates a new assign_owner action from configuration.
func NewAction(config map[string]any, records persistence.RecordRepository) (*Action, error) {
	actionID, _ := config["id"].(string)

	ownerID, ok := config["owner_id"].(string)
	if !ok || ownerID == "" {
		return nil, ErrOwnerMissing
	}

	recordID, _ := config["record_id"].(string)
	moduleID, _ := config["module_id"].(string)

	return &Action{
		ID:       actionID,
		OwnerID:  ownerID,
		RecordID: recordID,
		ModuleID: moduleID,
		records:  records,
	}, nil
}

// Apply resolves the target record, sets its owner and saves it.
func (a *Action) Apply(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	ownerID, record, err := a.resolve(ctx, execCtx)
	if err != nil {
		return nil, err
	}

	oldRecord := record.Clone()
	record.OwnerID = ownerID

	err = a.records.SaveRecord(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to save record: %w", err)
	}

	execCtx.AddMutation(models.RecordMutation{
		Type:          models.EventRecordUpdated,
		Record:        record.Clone(),
		OldRecord:     oldRecord,
		ChangedFields: []string{models.FieldOwnerID},
	})

	logger.InfoContext(ctx, "Assigned record owner",
		"record_id", record.ID, "owner_id", ownerID)

	return map[string]any{
		"record_id": record.ID,
		"owner_id":  ownerID,
	}, nil
}

// Preview describes the assignment without performing it. A target record
// that only exists as a dry-run placeholder is tolerated.
func (a *Action) Preview(ctx context.Context, execCtx *models.ExecutionContext) (map[string]any, string, error) {
	ownerID, record, err := a.resolve(ctx, execCtx)
	if err != nil {
		if !persistence.IsNotFound(err) {
			return nil, "", err
		}

		ownerID, err = template.RenderString(a.OwnerID, execCtx)
		if err != nil {
			return nil, "", err
		}

		recordID, err := template.RenderString(a.RecordID, execCtx)
		if err != nil {
			return nil, "", err
		}

		record = &models.Record{ID: recordID, ModuleID: execCtx.ModuleID}
	}

	output := map[string]any{
		"record_id": record.ID,
		"owner_id":  ownerID,
	}

	return output, fmt.Sprintf("would assign record %s to owner %s", record.ID, ownerID), nil
}

func (a *Action) resolve(ctx context.Context, execCtx *models.ExecutionContext) (string, *models.Record, error) {
	ownerID, err := template.RenderString(a.OwnerID, execCtx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to render owner: %w", err)
	}

	if a.RecordID == "" {
		if execCtx.Record == nil {
			return "", nil, errors.New("no record in execution context")
		}

		return ownerID, execCtx.Record, nil
	}

	recordID, err := template.RenderString(a.RecordID, execCtx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to render record id: %w", err)
	}

	moduleID := a.ModuleID
	if moduleID == "" {
		moduleID = execCtx.ModuleID
	}

	record, err := a.records.GetRecord(ctx, moduleID, recordID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load target record: %w", err)
	}

	return ownerID, record, nil
}
