package createrecord

import (
	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
	"github.com/rulegate/rulegate/pkg/protocol"
)

// ActionFactory creates create_record handlers.
type ActionFactory struct {
	records persistence.RecordRepository
}

// NewActionFactory creates a new create_record factory.
func NewActionFactory(records persistence.RecordRepository) *ActionFactory {
	return &ActionFactory{records: records}
}

// Create creates a new handler from the given configuration.
func (f *ActionFactory) Create(config map[string]any) (protocol.ActionHandler, error) {
	return NewAction(config, f.records)
}

// Type returns the action type served by this factory.
func (f *ActionFactory) Type() models.ActionType {
	return models.ActionCreateRecord
}

// Name returns the name of the action.
func (f *ActionFactory) Name() string {
	return "Create Record"
}

// Description returns a brief description of the action.
func (f *ActionFactory) Description() string {
	return "Creates a new record, optionally in another module. Later actions can reference it through the scratch map."
}

// Schema returns the JSON schema for configuring this action.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"module_id": map[string]any{
				"type":        "string",
				"description": "Target module. Defaults to the triggering record's module.",
			},
			"owner_id": map[string]any{
				"type":        "string",
				"description": "Owner of the new record. Supports templating.",
			},
			"stage": map[string]any{
				"type":        "string",
				"description": "Initial stage of the new record.",
			},
			"data": map[string]any{
				"type":        "object",
				"description": "Field values for the new record. String values support templating.",
				"examples": []map[string]any{
					{"name": "Follow-up for {{.record.data.name}}", "amount": 0},
				},
			},
		},
		"required":             []string{"data"},
		"additionalProperties": false,
	}
}
