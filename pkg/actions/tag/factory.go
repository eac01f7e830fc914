package tag

import (
	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
	"github.com/rulegate/rulegate/pkg/protocol"
)

// ActionFactory creates add_tag or remove_tag handlers depending on its
// direction.
type ActionFactory struct {
	remove  bool
	records persistence.RecordRepository
}

// NewAddFactory creates the add_tag factory.
func NewAddFactory(records persistence.RecordRepository) *ActionFactory {
	return &ActionFactory{records: records}
}

// NewRemoveFactory creates the remove_tag factory.
func NewRemoveFactory(records persistence.RecordRepository) *ActionFactory {
	return &ActionFactory{remove: true, records: records}
}

// Create creates a new handler from the given configuration.
func (f *ActionFactory) Create(config map[string]any) (protocol.ActionHandler, error) {
	return NewAction(config, f.remove, f.records)
}

// Type returns the action type served by this factory.
func (f *ActionFactory) Type() models.ActionType {
	if f.remove {
		return models.ActionRemoveTag
	}

	return models.ActionAddTag
}

// Name returns the name of the action.
func (f *ActionFactory) Name() string {
	if f.remove {
		return "Remove Tag"
	}

	return "Add Tag"
}

// Description returns a brief description of the action.
func (f *ActionFactory) Description() string {
	if f.remove {
		return "Removes a tag from the triggering record. Removing an absent tag is a no-op."
	}

	return "Adds a tag to the triggering record. Adding a present tag is a no-op."
}

// Schema returns the JSON schema for configuring this action.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tag": map[string]any{
				"type":        "string",
				"description": "Tag value. Supports templating.",
			},
		},
		"required":             []string{"tag"},
		"additionalProperties": false,
	}
}
