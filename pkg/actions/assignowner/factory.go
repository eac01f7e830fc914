package assignowner

import (
	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
	"github.com/rulegate/rulegate/pkg/protocol"
)

// ActionFactory creates assign_owner handlers.
type ActionFactory struct {
	records persistence.RecordRepository
}

// NewActionFactory creates a new assign_owner factory.
func NewActionFactory(records persistence.RecordRepository) *ActionFactory {
	return &ActionFactory{records: records}
}

// Create creates a new handler from the given configuration.
func (f *ActionFactory) Create(config map[string]any) (protocol.ActionHandler, error) {
	return NewAction(config, f.records)
}

// Type returns the action type served by this factory.
func (f *ActionFactory) Type() models.ActionType {
	return models.ActionAssignOwner
}

// Name returns the name of the action.
func (f *ActionFactory) Name() string {
	return "Assign Owner"
}

// Description returns a brief description of the action.
func (f *ActionFactory) Description() string {
	return "Sets the owner of the triggering record or of a record created earlier in the chain."
}

// Schema returns the JSON schema for configuring this action.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"owner_id": map[string]any{
				"type":        "string",
				"description": "New owner. Supports templating.",
				"examples": []string{
					"user-42",
					"{{.record.owner_id}}",
				},
			},
			"record_id": map[string]any{
				"type":        "string",
				"description": "Target record. Defaults to the triggering record. Supports templating against prior action outputs.",
				"examples": []string{
					"{{.scratch.create1.record_id}}",
				},
			},
			"module_id": map[string]any{
				"type":        "string",
				"description": "Module of the target record. Defaults to the triggering record's module.",
			},
		},
		"required":             []string{"owner_id"},
		"additionalProperties": false,
	}
}
