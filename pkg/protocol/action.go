// Package protocol defines the contracts between the engine and pluggable
// action handlers.
package protocol

import (
	"context"
	"log/slog"

	"github.com/rulegate/rulegate/pkg/models"
)

// ActionHandler is one materialized action ready to run against an execution
// context.
type ActionHandler interface {
	// Apply performs the action's effect and returns its declared output for
	// the scratch map.
	Apply(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (map[string]any, error)

	// Preview describes the effect Apply would have without performing it.
	// The returned output stands in for Apply's so later actions in a dry
	// run can still chain.
	Preview(ctx context.Context, execCtx *models.ExecutionContext) (map[string]any, string, error)
}

// ActionFactory materializes typed handlers from an action's raw
// configuration. Create fails on missing or ill-typed keys so a bad
// definition surfaces at execution start, not mid-chain.
type ActionFactory interface {
	Create(config map[string]any) (ActionHandler, error)
	Type() models.ActionType
	Name() string
	Description() string
	Schema() map[string]any
}
