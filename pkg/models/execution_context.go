package models

// ExecutionMode selects whether handlers apply effects or only describe them.
type ExecutionMode string

const (
	ModeLive   ExecutionMode = "live"
	ModeDryRun ExecutionMode = "dry_run"
)

// ExecutionContext is the immutable event context handed to every action in a
// chain, plus the scratch map accumulated from prior actions' outputs.
type ExecutionContext struct {
	ID           string         `json:"id"`
	DefinitionID string         `json:"definition_id"`
	ModuleID     string         `json:"module_id"`
	Mode         ExecutionMode  `json:"mode"`
	Record       *Record        `json:"record"`
	Event        *RecordEvent   `json:"event,omitempty"`
	TriggerData  map[string]any `json:"trigger_data,omitempty"`

	// Scratch carries declared outputs of prior actions in the chain, keyed
	// by action ID (e.g. the record created by a create_record action for a
	// following assign_owner).
	Scratch map[string]any `json:"scratch,omitempty"`

	// Mutations accumulates record writes performed by handlers during a
	// live run. Dry runs never append here.
	Mutations []RecordMutation `json:"-"`
}

// AddMutation records a handler's record write for follow-up event
// generation.
func (ec *ExecutionContext) AddMutation(m RecordMutation) {
	ec.Mutations = append(ec.Mutations, m)
}

// ScratchValue looks up a prior action's output.
func (ec *ExecutionContext) ScratchValue(key string) (any, bool) {
	if ec.Scratch == nil {
		return nil, false
	}

	v, ok := ec.Scratch[key]

	return v, ok
}
