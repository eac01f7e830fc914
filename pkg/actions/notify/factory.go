package notify

import (
	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/protocol"
)

// ActionFactory creates notify handlers.
type ActionFactory struct {
	notifier Notifier
}

// NewActionFactory creates a new notify factory around the given notifier.
func NewActionFactory(notifier Notifier) *ActionFactory {
	return &ActionFactory{notifier: notifier}
}

// Create creates a new handler from the given configuration.
func (f *ActionFactory) Create(config map[string]any) (protocol.ActionHandler, error) {
	return NewAction(config, f.notifier)
}

// Type returns the action type served by this factory.
func (f *ActionFactory) Type() models.ActionType {
	return models.ActionNotify
}

// Name returns the name of the action.
func (f *ActionFactory) Name() string {
	return "Notify"
}

// Description returns a brief description of the action.
func (f *ActionFactory) Description() string {
	return "Sends a templated in-app notification to a user or channel."
}

// Schema returns the JSON schema for configuring this action.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"target": map[string]any{
				"type":        "string",
				"description": "User or channel to notify. Supports templating.",
				"examples": []string{
					"{{.record.owner_id}}",
					"channel:sales",
				},
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Notification text. Supports templating.",
			},
		},
		"required":             []string{"target", "message"},
		"additionalProperties": false,
	}
}
