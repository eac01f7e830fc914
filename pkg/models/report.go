package models

import "time"

// ReportStatus is the overall outcome of one executor run.
type ReportStatus string

const (
	ReportSucceeded ReportStatus = "succeeded"
	ReportFailed    ReportStatus = "failed"
)

// ActionStatus is the outcome of one action within a run.
type ActionStatus string

const (
	ActionApplied   ActionStatus = "applied"
	ActionPreviewed ActionStatus = "previewed"
	ActionFailed    ActionStatus = "failed"
	ActionSkipped   ActionStatus = "skipped"
)

// FailureSeverity classifies a handler failure. Fatal aborts the remaining
// chain; recoverable is recorded and the chain continues.
type FailureSeverity string

const (
	SeverityFatal       FailureSeverity = "fatal"
	SeverityRecoverable FailureSeverity = "recoverable"
)

// ActionResult records the outcome of one action in an execution.
type ActionResult struct {
	Index       int             `json:"index"`
	ActionID    string          `json:"action_id"`
	Type        ActionType      `json:"type"`
	Status      ActionStatus    `json:"status"`
	Output      map[string]any  `json:"output,omitempty"`
	Description string          `json:"description,omitempty"`
	Error       string          `json:"error,omitempty"`
	Severity    FailureSeverity `json:"severity,omitempty"`
}

// ExecutionReport is the audit record of one Action Executor run. Dry runs
// produce reports too; they carry previews instead of applied effects and
// cause no persisted mutations.
type ExecutionReport struct {
	ID           string         `json:"id"`
	DefinitionID string         `json:"definition_id"`
	RecordID     string         `json:"record_id,omitempty"`
	ModuleID     string         `json:"module_id"`
	Mode         ExecutionMode  `json:"mode"`
	Status       ReportStatus   `json:"status"`
	Actions      []ActionResult `json:"actions"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
}

// Failed reports whether any fatal failure occurred.
func (r *ExecutionReport) Failed() bool {
	return r.Status == ReportFailed
}
