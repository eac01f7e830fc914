package persistence

import (
	"context"
	"time"

	"github.com/rulegate/rulegate/pkg/models"
)

// Persistence is the root storage handle. The engine treats the store as the
// sole shared mutable resource; all approval transitions go through the
// conditional operations below.
type Persistence interface {
	Definitions() DefinitionRepository
	Records() RecordRepository
	Approvals() ApprovalRepository
	Reports() ReportRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// DefinitionRepository reads and writes tenant-authored definitions. The
// engine only reads; writes happen through the admin API.
type DefinitionRepository interface {
	ListAutomations(ctx context.Context, moduleID string) ([]*models.AutomationDefinition, error)
	AutomationByID(ctx context.Context, id string) (*models.AutomationDefinition, error)
	SaveAutomation(ctx context.Context, def *models.AutomationDefinition) error

	ListApprovalProcesses(ctx context.Context, moduleID string) ([]*models.ApprovalProcessDefinition, error)
	ApprovalProcessByID(ctx context.Context, id string) (*models.ApprovalProcessDefinition, error)
	SaveApprovalProcess(ctx context.Context, def *models.ApprovalProcessDefinition) error
}

// RecordRepository is the opaque record store the engine reads from and
// writes through.
type RecordRepository interface {
	GetRecord(ctx context.Context, moduleID, id string) (*models.Record, error)
	SaveRecord(ctx context.Context, record *models.Record) error

	// FindByFields resolves a record matching all field values by equality.
	// System fields are compared directly, everything else inside the data
	// blob. Returns ErrRecordNotFound when nothing matches.
	FindByFields(ctx context.Context, moduleID string, fields map[string]any) (*models.Record, error)
}

// StepDecision carries the mutation applied alongside a successful step
// transition.
type StepDecision struct {
	DecidedBy   string
	DecidedAt   time.Time
	Comment     string
	DelegatedTo string
}

// ApprovalRepository stores the durable approval state machine. Requests and
// step instances are never deleted, only transitioned.
type ApprovalRepository interface {
	// CreateRequest persists a new request together with its first pending
	// step instance.
	CreateRequest(ctx context.Context, req *models.ApprovalRequest, first *models.ApprovalStepInstance) error

	RequestByID(ctx context.Context, id string) (*models.ApprovalRequest, error)

	// OpenRequestForRecord returns the non-terminal request for the
	// (process, record) pair, or ErrRequestNotFound.
	OpenRequestForRecord(ctx context.Context, processID, recordID string) (*models.ApprovalRequest, error)

	// PendingStep returns the single pending instance at the given step
	// index, or ErrStepNotFound.
	PendingStep(ctx context.Context, requestID string, stepIndex int) (*models.ApprovalStepInstance, error)

	StepsByRequest(ctx context.Context, requestID string) ([]*models.ApprovalStepInstance, error)

	CreateStep(ctx context.Context, step *models.ApprovalStepInstance) error

	// TransitionStep atomically moves a step instance from expected to next,
	// applying the decision fields. Returns ErrTransitionConflict when the
	// instance is no longer in the expected status.
	TransitionStep(ctx context.Context, instanceID string, expected, next models.StepStatus, decision StepDecision) (*models.ApprovalStepInstance, error)

	// TransitionRequest atomically moves a request from
	// (expectedStatus, expectedStep) to (newStatus, newStep). Returns
	// ErrTransitionConflict on mismatch.
	TransitionRequest(ctx context.Context, requestID string, expectedStatus models.RequestStatus, expectedStep int, newStatus models.RequestStatus, newStep int) (*models.ApprovalRequest, error)

	// ListPendingByApprover returns pending step instances whose resolved
	// approver set contains the given user.
	ListPendingByApprover(ctx context.Context, approverID string) ([]*models.ApprovalStepInstance, error)

	// ListRequestsByRecord returns every request ever opened for a record,
	// newest first.
	ListRequestsByRecord(ctx context.Context, moduleID, recordID string) ([]*models.ApprovalRequest, error)

	// ListPendingPastDeadline returns pending step instances whose deadline
	// has passed, for the timeout sweeper.
	ListPendingPastDeadline(ctx context.Context, now time.Time) ([]*models.ApprovalStepInstance, error)

	// ListPendingAutoApprove returns pending requests whose process-level
	// auto-approve deadline has passed.
	ListPendingAutoApprove(ctx context.Context, now time.Time) ([]*models.ApprovalRequest, error)
}

// ReportRepository stores execution reports as the audit trail of action
// dispatch.
type ReportRepository interface {
	SaveReport(ctx context.Context, report *models.ExecutionReport) error
	ReportByID(ctx context.Context, id string) (*models.ExecutionReport, error)
	ListReportsByRecord(ctx context.Context, moduleID, recordID string) ([]*models.ExecutionReport, error)
}
