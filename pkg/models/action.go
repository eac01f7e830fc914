package models

// ActionType is the closed set of action kinds the handler registry serves.
type ActionType string

const (
	ActionSendEmail      ActionType = "send_email"
	ActionUpdateField    ActionType = "update_field"
	ActionCreateRecord   ActionType = "create_record"
	ActionAssignOwner    ActionType = "assign_owner"
	ActionNotify         ActionType = "notify"
	ActionAddTag         ActionType = "add_tag"
	ActionRemoveTag      ActionType = "remove_tag"
	ActionRunSubWorkflow ActionType = "run_sub_workflow"
	ActionWebhook        ActionType = "webhook"
)

// KnownActionTypes enumerates every built-in action kind.
var KnownActionTypes = map[ActionType]bool{
	ActionSendEmail:      true,
	ActionUpdateField:    true,
	ActionCreateRecord:   true,
	ActionAssignOwner:    true,
	ActionNotify:         true,
	ActionAddTag:         true,
	ActionRemoveTag:      true,
	ActionRunSubWorkflow: true,
	ActionWebhook:        true,
}

// ActionSpec is one configured action on a definition. The typed payload is
// materialized by the matching handler factory at execution time; unknown
// keys in Configuration fail the factory, not the event pipeline.
type ActionSpec struct {
	ID            string         `json:"id"`
	Type          ActionType     `json:"type" validate:"required"`
	Name          string         `json:"name,omitempty"`
	Configuration map[string]any `json:"configuration"`
}
