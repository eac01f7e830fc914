package models

import "time"

// ApproverType selects how a step's approver set is resolved.
type ApproverType string

const (
	ApproverRole        ApproverType = "role"
	ApproverUser        ApproverType = "user"
	ApproverManager     ApproverType = "manager"
	ApproverRecordOwner ApproverType = "record_owner"
)

// ApprovalStepDefinition is one ordered stage of an approval process. Step
// order is fixed at definition time and snapshotted onto each request.
type ApprovalStepDefinition struct {
	Type           ApproverType `json:"type"  validate:"required"`
	Value          string       `json:"value,omitempty"`
	RequireComment bool         `json:"require_comment,omitempty"`
	CanDelegate    bool         `json:"can_delegate,omitempty"`
	TimeoutHours   int          `json:"timeout_hours,omitempty"`
}

// ApprovalProcessDefinition is a tenant-authored multi-step approval process.
type ApprovalProcessDefinition struct {
	ID        string `json:"id"`
	ModuleID  string `json:"module_id" validate:"required"`
	Name      string `json:"name"      validate:"required,min=3"`
	IsEnabled bool   `json:"is_enabled"`

	Trigger    TriggerConfig   `json:"trigger"`
	Conditions []ConditionNode `json:"conditions,omitempty"`

	Steps []ApprovalStepDefinition `json:"steps" validate:"required,min=1"`

	OnApproveActions []ActionSpec `json:"on_approve_actions,omitempty"`
	OnRejectActions  []ActionSpec `json:"on_reject_actions,omitempty"`

	// AutoApproveAfterHours, when set, converts expiry into approval of the
	// current step instead of expiring the request.
	AutoApproveAfterHours int `json:"auto_approve_after_hours,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RequestStatus is the lifecycle state of an approval request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
	RequestExpired  RequestStatus = "expired"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestApproved || s == RequestRejected || s == RequestExpired
}

// StepStatus is the lifecycle state of one step instance.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepApproved  StepStatus = "approved"
	StepRejected  StepStatus = "rejected"
	StepDelegated StepStatus = "delegated"
	StepExpired   StepStatus = "expired"
)

// ApprovalRequest is one running instance of an approval process against one
// record. Steps are snapshotted at creation so later definition edits never
// change an in-flight request.
type ApprovalRequest struct {
	ID               string                   `json:"id"`
	ProcessID        string                   `json:"process_id"`
	ModuleID         string                   `json:"module_id"`
	RecordID         string                   `json:"record_id"`
	Status           RequestStatus            `json:"status"`
	CurrentStepIndex int                      `json:"current_step_index"`
	Steps            []ApprovalStepDefinition `json:"steps"`
	AutoApproveAt    *time.Time               `json:"auto_approve_at,omitempty"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

// ApprovalStepInstance is the runtime state of one step of one request.
// Delegation creates a fresh pending instance at the same step index, so a
// (request, step index) pair can have several instances over time; only one
// may be pending.
type ApprovalStepInstance struct {
	ID                  string     `json:"id"`
	RequestID           string     `json:"request_id"`
	StepIndex           int        `json:"step_index"`
	ResolvedApproverIDs []string   `json:"resolved_approver_ids"`
	Status              StepStatus `json:"status"`
	DecidedBy           string     `json:"decided_by,omitempty"`
	DecidedAt           *time.Time `json:"decided_at,omitempty"`
	Comment             string     `json:"comment,omitempty"`
	DelegatedTo         string     `json:"delegated_to,omitempty"`
	Deadline            *time.Time `json:"deadline,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// CanDecide reports whether the actor is in the resolved approver set.
func (si *ApprovalStepInstance) CanDecide(actorID string) bool {
	for _, id := range si.ResolvedApproverIDs {
		if id == actorID {
			return true
		}
	}

	return false
}

// Decision is an approver's verdict on a step.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)
