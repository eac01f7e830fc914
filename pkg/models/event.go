package models

import "time"

// EventType classifies a record lifecycle occurrence fed into the engine.
type EventType string

const (
	EventRecordCreated   EventType = "on_create"
	EventRecordUpdated   EventType = "on_update"
	EventRecordDeleted   EventType = "on_delete"
	EventScheduledTick   EventType = "scheduled"
	EventWebformReceived EventType = "webform"
	EventManualInvoke    EventType = "manual"
)

// RecordEvent is one lifecycle occurrence. Record is the post-mutation
// snapshot for create/update and the pre-deletion snapshot for delete.
type RecordEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	ModuleID      string    `json:"module_id"`
	Record        *Record   `json:"record"`
	OldRecord     *Record   `json:"old_record,omitempty"`
	ChangedFields []string  `json:"changed_fields,omitempty"`
	WebformID     string    `json:"webform_id,omitempty"`

	// DefinitionID scopes a scheduled tick to the definition whose cron
	// entry fired; empty means the tick addresses every scheduled definition
	// of the module.
	DefinitionID string `json:"definition_id,omitempty"`

	// Depth counts how many times engine-originated mutations have re-queued
	// evaluation of the same record; the workflow runner's cycle guard caps
	// it.
	Depth int `json:"depth,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// RecordMutation describes one record write performed by an action handler
// during a live run. The runner turns mutations into follow-up events at an
// incremented depth.
type RecordMutation struct {
	Type          EventType
	Record        *Record
	OldRecord     *Record
	ChangedFields []string
}

// ChangedFieldSet returns the changed fields as a set for intersection
// checks.
func (e *RecordEvent) ChangedFieldSet() map[string]bool {
	set := make(map[string]bool, len(e.ChangedFields))
	for _, f := range e.ChangedFields {
		set[f] = true
	}

	return set
}

// StageTransitioned reports the old/new stage pair when the event represents
// a stage change, or ok=false otherwise.
func (e *RecordEvent) StageTransitioned() (from, to string, ok bool) {
	if e.Type != EventRecordUpdated || e.OldRecord == nil || e.Record == nil {
		return "", "", false
	}

	if e.OldRecord.Stage == e.Record.Stage {
		return "", "", false
	}

	return e.OldRecord.Stage, e.Record.Stage, true
}
