package updatefield

import (
	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
	"github.com/rulegate/rulegate/pkg/protocol"
)

// ActionFactory creates update_field handlers.
type ActionFactory struct {
	records persistence.RecordRepository
}

// NewActionFactory creates a new update_field factory.
func NewActionFactory(records persistence.RecordRepository) *ActionFactory {
	return &ActionFactory{records: records}
}

// Create creates a new handler from the given configuration.
func (f *ActionFactory) Create(config map[string]any) (protocol.ActionHandler, error) {
	return NewAction(config, f.records)
}

// Type returns the action type served by this factory.
func (f *ActionFactory) Type() models.ActionType {
	return models.ActionUpdateField
}

// Name returns the name of the action.
func (f *ActionFactory) Name() string {
	return "Update Field"
}

// Description returns a brief description of the action.
func (f *ActionFactory) Description() string {
	return "Sets one field of the triggering record. The value supports templating."
}

// Schema returns the JSON schema for configuring this action.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"field": map[string]any{
				"type":        "string",
				"description": "Field to set. System fields 'stage' and 'owner_id' are allowed; 'id' is not.",
			},
			"value": map[string]any{
				"description": "New value. Strings support templating with record fields and prior action outputs.",
				"examples": []string{
					"won",
					"{{.scratch.create1.record_id}}",
				},
			},
		},
		"required":             []string{"field", "value"},
		"additionalProperties": false,
	}
}
