package tag

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

func setupRecord(t *testing.T, tags []any) (persistence.RecordRepository, *models.Record) {
	t.Helper()

	records := file.NewPersistence(t.TempDir()).Records()
	record := &models.Record{
		ID:       "rec-1",
		ModuleID: "deals",
		Data:     map[string]any{},
	}

	if tags != nil {
		record.Data[TagsField] = tags
	}

	require.NoError(t, records.SaveRecord(context.Background(), record))

	return records, record
}

func TestAddTag(t *testing.T) {
	records, record := setupRecord(t, []any{"existing"})

	action, err := NewAction(map[string]any{"tag": "hot"}, false, records)
	require.NoError(t, err)

	execCtx := &models.ExecutionContext{ID: "exec-1", ModuleID: "deals", Record: record}

	output, err := action.Apply(context.Background(), execCtx, testLogger())
	require.NoError(t, err)
	assert.Equal(t, true, output["changed"])

	stored, err := records.GetRecord(context.Background(), "deals", "rec-1")
	require.NoError(t, err)
	assert.Equal(t, []any{"existing", "hot"}, stored.Data[TagsField])
	require.Len(t, execCtx.Mutations, 1)
}

func TestAddTagAlreadyPresent(t *testing.T) {
	records, record := setupRecord(t, []any{"hot"})

	action, err := NewAction(map[string]any{"tag": "hot"}, false, records)
	require.NoError(t, err)

	execCtx := &models.ExecutionContext{ID: "exec-1", ModuleID: "deals", Record: record}

	output, err := action.Apply(context.Background(), execCtx, testLogger())
	require.NoError(t, err)
	assert.Equal(t, false, output["changed"])
	assert.Empty(t, execCtx.Mutations)
}

func TestRemoveTag(t *testing.T) {
	records, record := setupRecord(t, []any{"hot", "cold"})

	action, err := NewAction(map[string]any{"tag": "hot"}, true, records)
	require.NoError(t, err)

	execCtx := &models.ExecutionContext{ID: "exec-1", ModuleID: "deals", Record: record}

	output, err := action.Apply(context.Background(), execCtx, testLogger())
	require.NoError(t, err)
	assert.Equal(t, true, output["changed"])

	stored, err := records.GetRecord(context.Background(), "deals", "rec-1")
	require.NoError(t, err)
	assert.Equal(t, []any{"cold"}, stored.Data[TagsField])
}

func TestRemoveAbsentTagIsNoOp(t *testing.T) {
	records, record := setupRecord(t, nil)

	action, err := NewAction(map[string]any{"tag": "hot"}, true, records)
	require.NoError(t, err)

	execCtx := &models.ExecutionContext{ID: "exec-1", ModuleID: "deals", Record: record}

	output, err := action.Apply(context.Background(), execCtx, testLogger())
	require.NoError(t, err)
	assert.Equal(t, false, output["changed"])
	assert.Empty(t, execCtx.Mutations)
}

func TestNewActionRequiresTag(t *testing.T) {
	records, _ := setupRecord(t, nil)

	_, err := NewAction(map[string]any{}, false, records)
	require.ErrorIs(t, err, ErrTagMissing)
}
