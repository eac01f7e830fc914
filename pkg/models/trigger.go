package models

// TriggerType discriminates trigger configurations.
type TriggerType string

const (
	TriggerOnCreate        TriggerType = "on_create"
	TriggerOnUpdate        TriggerType = "on_update"
	TriggerOnDelete        TriggerType = "on_delete"
	TriggerFieldChange     TriggerType = "field_change"
	TriggerScheduled       TriggerType = "scheduled"
	TriggerWebform         TriggerType = "webform"
	TriggerManual          TriggerType = "manual"
	TriggerStageTransition TriggerType = "stage_transition"
	TriggerRecordCreate    TriggerType = "record_create"
)

// StageWildcard in StageFrom/StageTo matches any stage.
const StageWildcard = "*"

// TriggerConfig carries the trigger type and its type-specific fields.
type TriggerConfig struct {
	Type TriggerType `json:"type" validate:"required"`

	// field_change: the watched field.
	Field string `json:"field,omitempty"`

	// stage_transition: source/target stage, "*" wildcards either side.
	StageFrom string `json:"stage_from,omitempty"`
	StageTo   string `json:"stage_to,omitempty"`

	// scheduled: cron expression.
	Cron string `json:"cron,omitempty"`

	// webform: the form whose submissions feed this trigger.
	WebformID string `json:"webform_id,omitempty"`
}
