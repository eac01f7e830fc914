package subworkflow

import (
	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/protocol"
)

// ActionFactory creates run_sub_workflow handlers.
type ActionFactory struct {
	runner DefinitionRunner
}

// NewActionFactory creates a new run_sub_workflow factory around the given
// runner.
func NewActionFactory(runner DefinitionRunner) *ActionFactory {
	return &ActionFactory{runner: runner}
}

// Create creates a new handler from the given configuration.
func (f *ActionFactory) Create(config map[string]any) (protocol.ActionHandler, error) {
	return NewAction(config, f.runner)
}

// Type returns the action type served by this factory.
func (f *ActionFactory) Type() models.ActionType {
	return models.ActionRunSubWorkflow
}

// Name returns the name of the action.
func (f *ActionFactory) Name() string {
	return "Run Sub-Workflow"
}

// Description returns a brief description of the action.
func (f *ActionFactory) Description() string {
	return "Runs another workflow definition inline against the same record. Shares the parent's recursion depth."
}

// Schema returns the JSON schema for configuring this action.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"definition_id": map[string]any{
				"type":        "string",
				"description": "ID of the workflow definition to run.",
			},
		},
		"required":             []string{"definition_id"},
		"additionalProperties": false,
	}
}
