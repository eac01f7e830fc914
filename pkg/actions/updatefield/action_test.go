package updatefield

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
	"github.com/rulegate/rulegate/pkg/persistence/file"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupRecord(t *testing.T) (persistence.RecordRepository, *models.Record) {
	t.Helper()

	records := file.NewPersistence(t.TempDir()).Records()
	record := &models.Record{
		ID:       "rec-1",
		ModuleID: "deals",
		OwnerID:  "user-1",
		Stage:    "qualified",
		Data:     map[string]any{"amount": 1500.0},
	}
	require.NoError(t, records.SaveRecord(context.Background(), record))

	return records, record
}

func TestNewActionRequiresField(t *testing.T) {
	records, _ := setupRecord(t)

	_, err := NewAction(map[string]any{"value": "won"}, records)
	require.ErrorIs(t, err, ErrFieldMissing)
}

func TestNewActionRejectsIDField(t *testing.T) {
	records, _ := setupRecord(t)

	_, err := NewAction(map[string]any{"field": "id", "value": "other"}, records)
	require.ErrorIs(t, err, ErrFieldReadOnly)
}

func TestApplySetsDataField(t *testing.T) {
	records, record := setupRecord(t)

	action, err := NewAction(map[string]any{"id": "a1", "field": "status", "value": "hot"}, records)
	require.NoError(t, err)

	execCtx := &models.ExecutionContext{ID: "exec-1", ModuleID: "deals", Record: record}

	output, err := action.Apply(context.Background(), execCtx, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "hot", output["value"])

	stored, err := records.GetRecord(context.Background(), "deals", "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "hot", stored.Data["status"])

	require.Len(t, execCtx.Mutations, 1)
	assert.Equal(t, models.EventRecordUpdated, execCtx.Mutations[0].Type)
	assert.Equal(t, []string{"status"}, execCtx.Mutations[0].ChangedFields)
	assert.Equal(t, "qualified", execCtx.Mutations[0].OldRecord.Stage)
}

func TestApplySetsStage(t *testing.T) {
	records, record := setupRecord(t)

	action, err := NewAction(map[string]any{"field": "stage", "value": "won"}, records)
	require.NoError(t, err)

	execCtx := &models.ExecutionContext{ID: "exec-1", ModuleID: "deals", Record: record}

	_, err = action.Apply(context.Background(), execCtx, testLogger())
	require.NoError(t, err)

	stored, err := records.GetRecord(context.Background(), "deals", "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "won", stored.Stage)
}

func TestApplyRendersTemplatedValue(t *testing.T) {
	records, record := setupRecord(t)

	action, err := NewAction(map[string]any{"field": "summary", "value": "amount is {{.record.data.amount}}"}, records)
	require.NoError(t, err)

	execCtx := &models.ExecutionContext{ID: "exec-1", ModuleID: "deals", Record: record}

	output, err := action.Apply(context.Background(), execCtx, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "amount is 1500", output["value"])
}

func TestPreviewDoesNotPersist(t *testing.T) {
	records, record := setupRecord(t)

	action, err := NewAction(map[string]any{"field": "stage", "value": "won"}, records)
	require.NoError(t, err)

	execCtx := &models.ExecutionContext{ID: "exec-1", ModuleID: "deals", Record: record, Mode: models.ModeDryRun}

	output, description, err := action.Preview(context.Background(), execCtx)
	require.NoError(t, err)
	assert.Equal(t, "won", output["value"])
	assert.Contains(t, description, "would set")

	stored, err := records.GetRecord(context.Background(), "deals", "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "qualified", stored.Stage)
	assert.Empty(t, execCtx.Mutations)
}
