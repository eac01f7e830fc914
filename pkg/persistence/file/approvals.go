package file

import (
	"context"
	"sort"
	"time"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
)

const kindRequests = "requests"

// requestEnvelope keeps a request and all of its step instances in one file
// so conditional transitions are a single read-modify-write under the store
// lock.
type requestEnvelope struct {
	Request *models.ApprovalRequest        `json:"request"`
	Steps   []*models.ApprovalStepInstance `json:"steps"`
}

// ApprovalRepository stores the durable approval state machine in JSON files.
type ApprovalRepository struct {
	p *Persistence
}

func (r *ApprovalRepository) CreateRequest(ctx context.Context, req *models.ApprovalRequest, first *models.ApprovalStepInstance) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	env := requestEnvelope{
		Request: req,
		Steps:   []*models.ApprovalStepInstance{first},
	}

	return r.p.writeEntity(kindRequests, req.ID, &env)
}

func (r *ApprovalRepository) RequestByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	env, err := r.readEnvelope(id)
	if err != nil {
		return nil, err
	}

	return env.Request, nil
}

func (r *ApprovalRepository) OpenRequestForRecord(ctx context.Context, processID, recordID string) (*models.ApprovalRequest, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	envs, err := r.readAll()
	if err != nil {
		return nil, err
	}

	for _, env := range envs {
		req := env.Request
		if req.ProcessID == processID && req.RecordID == recordID && !req.Status.IsTerminal() {
			return req, nil
		}
	}

	return nil, persistence.ErrRequestNotFound
}

func (r *ApprovalRepository) PendingStep(ctx context.Context, requestID string, stepIndex int) (*models.ApprovalStepInstance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	env, err := r.readEnvelope(requestID)
	if err != nil {
		return nil, err
	}

	for _, step := range env.Steps {
		if step.StepIndex == stepIndex && step.Status == models.StepPending {
			return step, nil
		}
	}

	return nil, persistence.ErrStepNotFound
}

func (r *ApprovalRepository) StepsByRequest(ctx context.Context, requestID string) ([]*models.ApprovalStepInstance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	env, err := r.readEnvelope(requestID)
	if err != nil {
		return nil, err
	}

	steps := make([]*models.ApprovalStepInstance, len(env.Steps))
	copy(steps, env.Steps)

	sort.Slice(steps, func(i, j int) bool {
		if steps[i].StepIndex != steps[j].StepIndex {
			return steps[i].StepIndex < steps[j].StepIndex
		}

		return steps[i].CreatedAt.Before(steps[j].CreatedAt)
	})

	return steps, nil
}

func (r *ApprovalRepository) CreateStep(ctx context.Context, step *models.ApprovalStepInstance) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	env, err := r.readEnvelope(step.RequestID)
	if err != nil {
		return err
	}

	env.Steps = append(env.Steps, step)

	return r.p.writeEntity(kindRequests, step.RequestID, env)
}

func (r *ApprovalRepository) TransitionStep(ctx context.Context, instanceID string, expected, next models.StepStatus, decision persistence.StepDecision) (*models.ApprovalStepInstance, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	envs, err := r.readAll()
	if err != nil {
		return nil, err
	}

	for _, env := range envs {
		for _, step := range env.Steps {
			if step.ID != instanceID {
				continue
			}

			if step.Status != expected {
				return nil, persistence.NewStoreError("TransitionStep", "step", instanceID, persistence.ErrTransitionConflict)
			}

			step.Status = next
			step.DecidedBy = decision.DecidedBy
			step.Comment = decision.Comment
			step.DelegatedTo = decision.DelegatedTo

			if !decision.DecidedAt.IsZero() {
				at := decision.DecidedAt
				step.DecidedAt = &at
			}

			if err := r.p.writeEntity(kindRequests, env.Request.ID, env); err != nil {
				return nil, err
			}

			return step, nil
		}
	}

	return nil, persistence.ErrStepNotFound
}

func (r *ApprovalRepository) TransitionRequest(ctx context.Context, requestID string, expectedStatus models.RequestStatus, expectedStep int, newStatus models.RequestStatus, newStep int) (*models.ApprovalRequest, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	env, err := r.readEnvelope(requestID)
	if err != nil {
		return nil, err
	}

	req := env.Request
	if req.Status != expectedStatus || req.CurrentStepIndex != expectedStep {
		return nil, persistence.NewStoreError("TransitionRequest", "request", requestID, persistence.ErrTransitionConflict)
	}

	req.Status = newStatus
	req.CurrentStepIndex = newStep
	req.UpdatedAt = time.Now().UTC()

	if err := r.p.writeEntity(kindRequests, requestID, env); err != nil {
		return nil, err
	}

	return req, nil
}

func (r *ApprovalRepository) ListPendingByApprover(ctx context.Context, approverID string) ([]*models.ApprovalStepInstance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	envs, err := r.readAll()
	if err != nil {
		return nil, err
	}

	var pending []*models.ApprovalStepInstance

	for _, env := range envs {
		if env.Request.Status.IsTerminal() {
			continue
		}

		for _, step := range env.Steps {
			if step.Status == models.StepPending && step.CanDecide(approverID) {
				pending = append(pending, step)
			}
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	return pending, nil
}

func (r *ApprovalRepository) ListRequestsByRecord(ctx context.Context, moduleID, recordID string) ([]*models.ApprovalRequest, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	envs, err := r.readAll()
	if err != nil {
		return nil, err
	}

	var requests []*models.ApprovalRequest

	for _, env := range envs {
		req := env.Request
		if req.ModuleID == moduleID && req.RecordID == recordID {
			requests = append(requests, req)
		}
	}

	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})

	return requests, nil
}

func (r *ApprovalRepository) ListPendingPastDeadline(ctx context.Context, now time.Time) ([]*models.ApprovalStepInstance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	envs, err := r.readAll()
	if err != nil {
		return nil, err
	}

	var expired []*models.ApprovalStepInstance

	for _, env := range envs {
		if env.Request.Status.IsTerminal() {
			continue
		}

		for _, step := range env.Steps {
			if step.Status == models.StepPending && step.Deadline != nil && !step.Deadline.After(now) {
				expired = append(expired, step)
			}
		}
	}

	return expired, nil
}

func (r *ApprovalRepository) ListPendingAutoApprove(ctx context.Context, now time.Time) ([]*models.ApprovalRequest, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	envs, err := r.readAll()
	if err != nil {
		return nil, err
	}

	var due []*models.ApprovalRequest

	for _, env := range envs {
		req := env.Request
		if req.Status == models.RequestPending && req.AutoApproveAt != nil && !req.AutoApproveAt.After(now) {
			due = append(due, req)
		}
	}

	return due, nil
}

// readEnvelope and readAll expect the caller to hold a lock.

func (r *ApprovalRepository) readEnvelope(requestID string) (*requestEnvelope, error) {
	var env requestEnvelope
	if err := r.p.readEntity(kindRequests, requestID, &env, persistence.ErrRequestNotFound); err != nil {
		return nil, err
	}

	return &env, nil
}

func (r *ApprovalRepository) readAll() ([]*requestEnvelope, error) {
	ids, err := r.p.listIDs(kindRequests)
	if err != nil {
		return nil, err
	}

	envs := make([]*requestEnvelope, 0, len(ids))

	for _, id := range ids {
		env, err := r.readEnvelope(id)
		if err != nil {
			return nil, err
		}

		envs = append(envs, env)
	}

	return envs, nil
}
