package registry

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulegate/rulegate/pkg/actions/notify"
	"github.com/rulegate/rulegate/pkg/actions/webhook"
	"github.com/rulegate/rulegate/pkg/models"
)

func testRegistry() *Registry {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(logger)
	r.RegisterAction(webhook.NewActionFactory())
	r.RegisterAction(notify.NewActionFactory(&notify.LogNotifier{Logger: logger}))

	return r
}

func TestCreateHandler(t *testing.T) {
	r := testRegistry()

	handler, err := r.CreateHandler(models.ActionSpec{
		ID:            "a1",
		Type:          models.ActionWebhook,
		Configuration: map[string]any{"url": "https://example.com/hook"},
	})
	require.NoError(t, err)
	require.NotNil(t, handler)
}

func TestCreateHandlerInjectsSpecID(t *testing.T) {
	r := testRegistry()

	handler, err := r.CreateHandler(models.ActionSpec{
		ID:            "hook-1",
		Type:          models.ActionWebhook,
		Configuration: map[string]any{"url": "https://example.com/hook"},
	})
	require.NoError(t, err)

	action, ok := handler.(*webhook.Action)
	require.True(t, ok)
	assert.Equal(t, "hook-1", action.ID)
}

func TestCreateHandlerUnknownType(t *testing.T) {
	r := testRegistry()

	_, err := r.CreateHandler(models.ActionSpec{Type: "no_such_action"})
	require.ErrorIs(t, err, ErrActionNotRegistered)
}

func TestCreateHandlerInvalidConfiguration(t *testing.T) {
	r := testRegistry()

	_, err := r.CreateHandler(models.ActionSpec{
		Type:          models.ActionWebhook,
		Configuration: map[string]any{},
	})
	require.ErrorIs(t, err, webhook.ErrURLMissing)
}

func TestAvailableActionsSorted(t *testing.T) {
	r := testRegistry()

	assert.Equal(t, []models.ActionType{models.ActionNotify, models.ActionWebhook}, r.AvailableActions())
}

func TestIsRegistered(t *testing.T) {
	r := testRegistry()

	assert.True(t, r.IsRegistered(models.ActionWebhook))
	assert.False(t, r.IsRegistered(models.ActionSendEmail))
}
