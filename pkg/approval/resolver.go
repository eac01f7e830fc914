package approval

import (
	"context"
	"fmt"

	"github.com/rulegate/rulegate/pkg/models"
)

// ApproverResolver resolves approver references to concrete user IDs. The
// host application supplies the directory; the engine only needs these two
// lookups.
type ApproverResolver interface {
	// UsersByRole returns the user IDs holding a role.
	UsersByRole(ctx context.Context, role string) ([]string, error)

	// ManagerOf returns the manager of a user, or "" when the user has none.
	ManagerOf(ctx context.Context, userID string) (string, error)
}

// StaticResolver is a fixed in-memory directory, used in tests and
// single-tenant development setups.
type StaticResolver struct {
	Roles    map[string][]string
	Managers map[string]string
}

func (r *StaticResolver) UsersByRole(_ context.Context, role string) ([]string, error) {
	return r.Roles[role], nil
}

func (r *StaticResolver) ManagerOf(_ context.Context, userID string) (string, error) {
	return r.Managers[userID], nil
}

// resolveApprovers materializes a step definition's approver set against the
// record under approval.
func resolveApprovers(ctx context.Context, resolver ApproverResolver, step models.ApprovalStepDefinition, record *models.Record) ([]string, error) {
	switch step.Type {
	case models.ApproverUser:
		if step.Value == "" {
			return nil, fmt.Errorf("user approver step has no value: %w", ErrNoApprovers)
		}

		return []string{step.Value}, nil

	case models.ApproverRole:
		users, err := resolver.UsersByRole(ctx, step.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve role %q: %w", step.Value, err)
		}

		if len(users) == 0 {
			return nil, fmt.Errorf("role %q has no members: %w", step.Value, ErrNoApprovers)
		}

		return users, nil

	case models.ApproverManager:
		if record == nil || record.OwnerID == "" {
			return nil, fmt.Errorf("record has no owner: %w", ErrNoApprovers)
		}

		manager, err := resolver.ManagerOf(ctx, record.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve manager of %q: %w", record.OwnerID, err)
		}

		if manager == "" {
			return nil, fmt.Errorf("owner %q has no manager: %w", record.OwnerID, ErrNoApprovers)
		}

		return []string{manager}, nil

	case models.ApproverRecordOwner:
		if record == nil || record.OwnerID == "" {
			return nil, fmt.Errorf("record has no owner: %w", ErrNoApprovers)
		}

		return []string{record.OwnerID}, nil
	}

	return nil, fmt.Errorf("unknown approver type %q: %w", step.Type, ErrNoApprovers)
}
