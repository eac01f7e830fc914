package models

import "time"

// DefinitionKind separates event-triggered workflows from manually invoked
// macros. Both share the automation definition shape.
type DefinitionKind string

const (
	DefinitionWorkflow DefinitionKind = "workflow"
	DefinitionMacro    DefinitionKind = "macro"
)

// AutomationDefinition is a tenant-authored workflow or macro. The engine
// treats definitions as read-only.
type AutomationDefinition struct {
	ID        string         `json:"id"`
	ModuleID  string         `json:"module_id"    validate:"required"`
	Name      string         `json:"name"         validate:"required,min=3"`
	Kind      DefinitionKind `json:"kind"         validate:"required"`
	IsEnabled bool           `json:"is_enabled"`
	Priority  int            `json:"priority"`

	// Trigger is required for workflows, absent for macros.
	Trigger *TriggerConfig `json:"trigger,omitempty"`

	// Conditions is an implicit AND group; empty means the definition matches
	// on trigger alone.
	Conditions []ConditionNode `json:"conditions,omitempty"`

	Actions []ActionSpec `json:"actions" validate:"required,min=1"`

	// AllowedRoles gates macro invocation. Ignored for workflows.
	AllowedRoles []string `json:"allowed_roles,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DedupeStrategy is the policy for a webform submission that matches an
// existing record.
type DedupeStrategy string

const (
	DedupeSkip            DedupeStrategy = "skip"
	DedupeUpdate          DedupeStrategy = "update"
	DedupeCreateDuplicate DedupeStrategy = "create_duplicate"
)

// DedupeConfig configures equality-based resolution of inbound webform
// submissions against existing records.
type DedupeConfig struct {
	Enabled  bool           `json:"enabled"`
	Fields   []string       `json:"fields,omitempty"`
	Strategy DedupeStrategy `json:"strategy,omitempty"`
}
