package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
)

// AutoApproveActorID marks step approvals performed by the auto-approve
// sweep rather than a human.
const AutoApproveActorID = "system:auto_approve"

// DefaultSweepInterval is how often the sweeper scans for expired steps and
// auto-approve deadlines when no interval is configured.
const DefaultSweepInterval = time.Minute

// Sweeper periodically expires overdue steps and applies process-level
// auto-approve deadlines. It is safe to run several sweepers against the
// same store: transitions are conditional and a lost race is skipped.
type Sweeper struct {
	logger   *slog.Logger
	engine   *Engine
	clock    clockwork.Clock
	interval time.Duration
}

// NewSweeper creates a sweeper around an engine.
func NewSweeper(logger *slog.Logger, engine *Engine, clock clockwork.Clock, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &Sweeper{
		logger:   logger.With("module", "approval_sweeper"),
		engine:   engine,
		clock:    clock,
		interval: interval,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Approval sweeper started", "interval", s.interval)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Approval sweeper stopped")

			return ctx.Err()
		case <-ticker.Chan():
			if err := s.Sweep(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Sweep failed", "error", err)
			}
		}
	}
}

// Sweep performs one pass of both sweeps. Auto-approve runs first so a
// request whose auto-approve deadline and step deadline have both passed is
// approved rather than expired.
func (s *Sweeper) Sweep(ctx context.Context) error {
	if err := s.engine.SweepAutoApprovals(ctx); err != nil {
		return err
	}

	return s.engine.SweepTimeouts(ctx)
}

// SweepAutoApprovals approves the current step of every pending request
// whose process-level auto-approve deadline has passed, advancing or
// finalizing the request exactly as a human approval would.
func (e *Engine) SweepAutoApprovals(ctx context.Context) error {
	now := e.clock.Now().UTC()

	requests, err := e.store.Approvals().ListPendingAutoApprove(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list auto-approve candidates: %w", err)
	}

	for _, req := range requests {
		step, err := e.store.Approvals().PendingStep(ctx, req.ID, req.CurrentStepIndex)
		if err != nil {
			if persistence.IsNotFound(err) {
				continue
			}

			return err
		}

		_, err = e.approveStep(ctx, req, step, AutoApproveActorID, "auto-approved after deadline")
		if err != nil {
			if errors.Is(err, persistence.ErrTransitionConflict) {
				continue
			}

			return err
		}

		e.logger.InfoContext(ctx, "Auto-approved step",
			"request_id", req.ID, "step_index", req.CurrentStepIndex)
	}

	return nil
}

// SweepTimeouts expires pending steps whose deadline has passed, closing
// their request as expired. Requests whose auto-approve deadline has also
// passed are left for SweepAutoApprovals.
func (e *Engine) SweepTimeouts(ctx context.Context) error {
	now := e.clock.Now().UTC()

	steps, err := e.store.Approvals().ListPendingPastDeadline(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list expired steps: %w", err)
	}

	for _, step := range steps {
		req, err := e.store.Approvals().RequestByID(ctx, step.RequestID)
		if err != nil {
			if persistence.IsNotFound(err) {
				continue
			}

			return err
		}

		if req.Status.IsTerminal() || req.CurrentStepIndex != step.StepIndex {
			continue
		}

		if req.AutoApproveAt != nil && !req.AutoApproveAt.After(now) {
			continue
		}

		_, err = e.store.Approvals().TransitionStep(ctx, step.ID, models.StepPending, models.StepExpired, persistence.StepDecision{
			DecidedBy: SystemActorID,
			DecidedAt: now,
			Comment:   "step deadline passed",
		})
		if err != nil {
			if errors.Is(err, persistence.ErrTransitionConflict) {
				continue
			}

			return err
		}

		_, err = e.store.Approvals().TransitionRequest(ctx, req.ID, models.RequestPending, req.CurrentStepIndex, models.RequestExpired, req.CurrentStepIndex)
		if err != nil {
			if errors.Is(err, persistence.ErrTransitionConflict) {
				continue
			}

			return err
		}

		e.logger.InfoContext(ctx, "Expired approval request",
			"request_id", req.ID, "step_index", step.StepIndex)
	}

	return nil
}
