// Package registry maps action types to their handler factories.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/protocol"
)

// ErrActionNotRegistered indicates a definition references an action type
// with no registered factory.
var ErrActionNotRegistered = errors.New("action type not registered")

// Registry holds the closed set of action factories available to the
// executor. Registration happens at startup; lookups are read-only after
// that.
type Registry struct {
	logger          *slog.Logger
	actionFactories map[models.ActionType]protocol.ActionFactory
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:          logger,
		actionFactories: make(map[models.ActionType]protocol.ActionFactory),
	}
}

// RegisterAction adds a factory, replacing any previous factory for the same
// type.
func (r *Registry) RegisterAction(factory protocol.ActionFactory) {
	r.actionFactories[factory.Type()] = factory
	r.logger.Debug("Registered action factory", "type", factory.Type())
}

// CreateHandler materializes a handler for one configured action. The action
// ID is injected into the configuration so handlers can key their scratch
// output.
func (r *Registry) CreateHandler(spec models.ActionSpec) (protocol.ActionHandler, error) {
	factory, ok := r.actionFactories[spec.Type]
	if !ok {
		return nil, fmt.Errorf("action type %q: %w", spec.Type, ErrActionNotRegistered)
	}

	config := make(map[string]any, len(spec.Configuration)+1)
	for k, v := range spec.Configuration {
		config[k] = v
	}

	config["id"] = spec.ID

	handler, err := factory.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %q handler: %w", spec.Type, err)
	}

	return handler, nil
}

// IsRegistered reports whether a factory exists for the action type.
func (r *Registry) IsRegistered(actionType models.ActionType) bool {
	_, ok := r.actionFactories[actionType]

	return ok
}

// AvailableActions returns the registered action types in stable order.
func (r *Registry) AvailableActions() []models.ActionType {
	types := make([]models.ActionType, 0, len(r.actionFactories))
	for actionType := range r.actionFactories {
		types = append(types, actionType)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// Factory returns the factory for an action type, primarily for schema
// introspection on the admin API.
func (r *Registry) Factory(actionType models.ActionType) (protocol.ActionFactory, bool) {
	factory, ok := r.actionFactories[actionType]

	return factory, ok
}
