package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
)

// DefinitionRepository handles automation and approval process definitions.
type DefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDefinitionRepository creates a new definition repository.
func NewDefinitionRepository(db *sql.DB, logger *slog.Logger) *DefinitionRepository {
	return &DefinitionRepository{db: db, logger: logger}
}

// ListAutomations returns all automation definitions for a module, oldest
// first. An empty module ID lists every module.
func (r *DefinitionRepository) ListAutomations(ctx context.Context, moduleID string) ([]*models.AutomationDefinition, error) {
	query := `
		SELECT
			id
		  , module_id
		  , name
		  , kind
		  , is_enabled
		  , priority
		  , trigger_config
		  , conditions
		  , actions
		  , allowed_roles
		  , created_at
		  , updated_at
		FROM automation_definitions
		WHERE $1 = '' OR module_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query automation definitions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	definitions := make([]*models.AutomationDefinition, 0)

	for rows.Next() {
		def, err := r.scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation definition: %w", err)
		}

		definitions = append(definitions, def)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating automation definitions: %w", err)
	}

	return definitions, nil
}

// AutomationByID returns an automation definition by its ID.
func (r *DefinitionRepository) AutomationByID(ctx context.Context, id string) (*models.AutomationDefinition, error) {
	query := `
		SELECT
			id
		  , module_id
		  , name
		  , kind
		  , is_enabled
		  , priority
		  , trigger_config
		  , conditions
		  , actions
		  , allowed_roles
		  , created_at
		  , updated_at
		FROM automation_definitions
		WHERE id = $1
	`

	def, err := r.scanAutomation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("AutomationByID", "definition", id, persistence.ErrDefinitionNotFound)
		}

		return nil, fmt.Errorf("failed to scan automation definition: %w", err)
	}

	return def, nil
}

// SaveAutomation inserts or updates an automation definition.
func (r *DefinitionRepository) SaveAutomation(ctx context.Context, def *models.AutomationDefinition) error {
	now := time.Now().UTC()

	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	def.UpdatedAt = now

	if def.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate definition ID: %w", err)
		}

		def.ID = id.String()
	}

	triggerJSON, err := marshalNullable(def.Trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger: %w", err)
	}

	conditionsJSON, err := json.Marshal(def.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	actionsJSON, err := json.Marshal(def.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	rolesJSON, err := json.Marshal(def.AllowedRoles)
	if err != nil {
		return fmt.Errorf("failed to marshal allowed roles: %w", err)
	}

	query := `
		INSERT INTO automation_definitions (id, module_id, name, kind, is_enabled, priority,
			trigger_config, conditions, actions, allowed_roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			module_id = EXCLUDED.module_id,
			name = EXCLUDED.name,
			kind = EXCLUDED.kind,
			is_enabled = EXCLUDED.is_enabled,
			priority = EXCLUDED.priority,
			trigger_config = EXCLUDED.trigger_config,
			conditions = EXCLUDED.conditions,
			actions = EXCLUDED.actions,
			allowed_roles = EXCLUDED.allowed_roles,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		def.ID,
		def.ModuleID,
		def.Name,
		def.Kind,
		def.IsEnabled,
		def.Priority,
		triggerJSON,
		conditionsJSON,
		actionsJSON,
		rolesJSON,
		def.CreatedAt,
		def.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save automation definition: %w", err)
	}

	return nil
}

// ListApprovalProcesses returns all approval process definitions for a
// module, oldest first. An empty module ID lists every module.
func (r *DefinitionRepository) ListApprovalProcesses(ctx context.Context, moduleID string) ([]*models.ApprovalProcessDefinition, error) {
	query := `
		SELECT
			id
		  , module_id
		  , name
		  , is_enabled
		  , trigger_config
		  , conditions
		  , steps
		  , on_approve_actions
		  , on_reject_actions
		  , auto_approve_after_hours
		  , created_at
		  , updated_at
		FROM approval_processes
		WHERE $1 = '' OR module_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval processes: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	processes := make([]*models.ApprovalProcessDefinition, 0)

	for rows.Next() {
		process, err := r.scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval process: %w", err)
		}

		processes = append(processes, process)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating approval processes: %w", err)
	}

	return processes, nil
}

// ApprovalProcessByID returns an approval process definition by its ID.
func (r *DefinitionRepository) ApprovalProcessByID(ctx context.Context, id string) (*models.ApprovalProcessDefinition, error) {
	query := `
		SELECT
			id
		  , module_id
		  , name
		  , is_enabled
		  , trigger_config
		  , conditions
		  , steps
		  , on_approve_actions
		  , on_reject_actions
		  , auto_approve_after_hours
		  , created_at
		  , updated_at
		FROM approval_processes
		WHERE id = $1
	`

	process, err := r.scanProcess(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("ApprovalProcessByID", "process", id, persistence.ErrProcessNotFound)
		}

		return nil, fmt.Errorf("failed to scan approval process: %w", err)
	}

	return process, nil
}

// SaveApprovalProcess inserts or updates an approval process definition.
func (r *DefinitionRepository) SaveApprovalProcess(ctx context.Context, def *models.ApprovalProcessDefinition) error {
	now := time.Now().UTC()

	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	def.UpdatedAt = now

	if def.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate process ID: %w", err)
		}

		def.ID = id.String()
	}

	triggerJSON, err := json.Marshal(def.Trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger: %w", err)
	}

	conditionsJSON, err := json.Marshal(def.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	stepsJSON, err := json.Marshal(def.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	onApproveJSON, err := json.Marshal(def.OnApproveActions)
	if err != nil {
		return fmt.Errorf("failed to marshal on-approve actions: %w", err)
	}

	onRejectJSON, err := json.Marshal(def.OnRejectActions)
	if err != nil {
		return fmt.Errorf("failed to marshal on-reject actions: %w", err)
	}

	query := `
		INSERT INTO approval_processes (id, module_id, name, is_enabled, trigger_config,
			conditions, steps, on_approve_actions, on_reject_actions, auto_approve_after_hours,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			module_id = EXCLUDED.module_id,
			name = EXCLUDED.name,
			is_enabled = EXCLUDED.is_enabled,
			trigger_config = EXCLUDED.trigger_config,
			conditions = EXCLUDED.conditions,
			steps = EXCLUDED.steps,
			on_approve_actions = EXCLUDED.on_approve_actions,
			on_reject_actions = EXCLUDED.on_reject_actions,
			auto_approve_after_hours = EXCLUDED.auto_approve_after_hours,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		def.ID,
		def.ModuleID,
		def.Name,
		def.IsEnabled,
		triggerJSON,
		conditionsJSON,
		stepsJSON,
		onApproveJSON,
		onRejectJSON,
		def.AutoApproveAfterHours,
		def.CreatedAt,
		def.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save approval process: %w", err)
	}

	return nil
}

func (r *DefinitionRepository) scanAutomation(scanner interface {
	Scan(dest ...any) error
}) (*models.AutomationDefinition, error) {
	var (
		def                                                 models.AutomationDefinition
		triggerJSON, conditionsJSON, actionsJSON, rolesJSON []byte
	)

	err := scanner.Scan(
		&def.ID,
		&def.ModuleID,
		&def.Name,
		&def.Kind,
		&def.IsEnabled,
		&def.Priority,
		&triggerJSON,
		&conditionsJSON,
		&actionsJSON,
		&rolesJSON,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if triggerJSON != nil {
		err := json.Unmarshal(triggerJSON, &def.Trigger)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger: %w", err)
		}
	}

	if conditionsJSON != nil {
		err := json.Unmarshal(conditionsJSON, &def.Conditions)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
		}
	}

	err = json.Unmarshal(actionsJSON, &def.Actions)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
	}

	if rolesJSON != nil {
		err := json.Unmarshal(rolesJSON, &def.AllowedRoles)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal allowed roles: %w", err)
		}
	}

	return &def, nil
}

func (r *DefinitionRepository) scanProcess(scanner interface {
	Scan(dest ...any) error
}) (*models.ApprovalProcessDefinition, error) {
	var (
		process                                models.ApprovalProcessDefinition
		triggerJSON, conditionsJSON, stepsJSON []byte
		onApproveJSON, onRejectJSON            []byte
	)

	err := scanner.Scan(
		&process.ID,
		&process.ModuleID,
		&process.Name,
		&process.IsEnabled,
		&triggerJSON,
		&conditionsJSON,
		&stepsJSON,
		&onApproveJSON,
		&onRejectJSON,
		&process.AutoApproveAfterHours,
		&process.CreatedAt,
		&process.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(triggerJSON, &process.Trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger: %w", err)
	}

	if conditionsJSON != nil {
		err := json.Unmarshal(conditionsJSON, &process.Conditions)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
		}
	}

	err = json.Unmarshal(stepsJSON, &process.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}

	if onApproveJSON != nil {
		err := json.Unmarshal(onApproveJSON, &process.OnApproveActions)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal on-approve actions: %w", err)
		}
	}

	if onRejectJSON != nil {
		err := json.Unmarshal(onRejectJSON, &process.OnRejectActions)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal on-reject actions: %w", err)
		}
	}

	return &process, nil
}

// marshalNullable marshals an optional trigger, mapping nil to SQL NULL
// instead of the JSON literal null.
func marshalNullable(trigger *models.TriggerConfig) (any, error) {
	if trigger == nil {
		return nil, nil
	}

	data, err := json.Marshal(trigger)
	if err != nil {
		return nil, err
	}

	return data, nil
}
