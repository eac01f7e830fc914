package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulegate/rulegate/pkg/models"
)

func testContext() *models.ExecutionContext {
	return &models.ExecutionContext{
		ID:           "exec-1",
		DefinitionID: "def-1",
		ModuleID:     "deals",
		Record: &models.Record{
			ID:      "rec-1",
			OwnerID: "user-7",
			Stage:   "qualified",
			Data: map[string]any{
				"amount": 1500.0,
				"name":   "Acme deal",
			},
		},
		Scratch: map[string]any{
			"create1": map[string]any{"record_id": "rec-2"},
		},
	}
}

func TestRenderWithContextRecordFields(t *testing.T) {
	result, err := RenderWithContext("{{.record.data.name}}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "Acme deal", result)
}

func TestRenderWithContextNumericCoercion(t *testing.T) {
	result, err := RenderWithContext("{{.record.data.amount}}", testContext())
	require.NoError(t, err)
	assert.InDelta(t, 1500.0, result, 0.001)
}

func TestRenderWithContextScratchLookup(t *testing.T) {
	result, err := RenderWithContext("{{.scratch.create1.record_id}}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "rec-2", result)
}

func TestRenderStringMixedContent(t *testing.T) {
	result, err := RenderString("Deal {{.record.data.name}} owned by {{.record.owner_id}}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "Deal Acme deal owned by user-7", result)
}

func TestRenderJSONResult(t *testing.T) {
	result, err := Render(`{"stage": "won"}`, map[string]any{})
	require.NoError(t, err)

	parsed, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "won", parsed["stage"])
}

func TestRenderInvalidTemplate(t *testing.T) {
	_, err := Render("{{.broken", map[string]any{})
	require.Error(t, err)
}

func TestRenderWithContextNilRecord(t *testing.T) {
	execCtx := &models.ExecutionContext{ID: "exec-2"}

	result, err := RenderWithContext("{{.execution.id}}", execCtx)
	require.NoError(t, err)
	assert.Equal(t, "exec-2", result)
}
