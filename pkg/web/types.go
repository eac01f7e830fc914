package web

import (
	"github.com/rulegate/rulegate/pkg/models"
)

// ActorDTO identifies the principal a request acts as. Authentication is the
// host application's concern; these fields arrive pre-resolved.
type ActorDTO struct {
	ID    string   `json:"id"    validate:"required"`
	Roles []string `json:"roles"`
}

func (a ActorDTO) toModel() models.Actor {
	return models.Actor{ID: a.ID, Roles: a.Roles}
}

// SubmitEventRequest enqueues a record lifecycle event.
type SubmitEventRequest struct {
	Type          models.EventType `json:"type"      validate:"required"`
	ModuleID      string           `json:"module_id" validate:"required"`
	Record        *models.Record   `json:"record"`
	OldRecord     *models.Record   `json:"old_record,omitempty"`
	ChangedFields []string         `json:"changed_fields,omitempty"`
}

// DecisionRequest records an approve/reject verdict against one step. The
// step index pins the verdict to the step the caller saw; a retried call
// against an advanced request conflicts instead of deciding the next step.
type DecisionRequest struct {
	Actor     ActorDTO        `json:"actor"      validate:"required"`
	StepIndex int             `json:"step_index" validate:"min=0"`
	Decision  models.Decision `json:"decision"   validate:"required,oneof=approve reject"`
	Comment   string          `json:"comment"`
}

// DelegationRequest hands a pending step to another user.
type DelegationRequest struct {
	Actor      ActorDTO `json:"actor"       validate:"required"`
	StepIndex  int      `json:"step_index"  validate:"min=0"`
	DelegateID string   `json:"delegate_id" validate:"required"`
	Comment    string   `json:"comment"`
}

// RunMacroRequest invokes a macro against one record.
type RunMacroRequest struct {
	Actor    ActorDTO `json:"actor"     validate:"required"`
	RecordID string   `json:"record_id" validate:"required"`
}

// PreviewRequest dry-runs a workflow against one record.
type PreviewRequest struct {
	RecordID string `json:"record_id" validate:"required"`
}

// WebformSubmissionRequest carries one public form submission. The dedupe
// policy and optional payload schema come from the form's configuration,
// forwarded by the host application.
type WebformSubmissionRequest struct {
	ModuleID string              `json:"module_id" validate:"required"`
	Fields   map[string]any      `json:"fields"    validate:"required"`
	Schema   map[string]any      `json:"schema,omitempty"`
	Dedupe   models.DedupeConfig `json:"dedupe"`
}

// WebformSubmissionResponse reports how a submission resolved.
type WebformSubmissionResponse struct {
	RecordID string `json:"record_id"`
	IsNew    bool   `json:"is_new"`
	Skipped  bool   `json:"skipped"`
}

// RequestWithSteps is an approval request plus its step instance history.
type RequestWithSteps struct {
	Request *models.ApprovalRequest        `json:"request"`
	Steps   []*models.ApprovalStepInstance `json:"steps"`
}
