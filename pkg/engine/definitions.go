package engine

import (
	"context"
	"fmt"

	"github.com/rulegate/rulegate/pkg/condition"
	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/schedule"
)

// SaveAutomation validates and persists a workflow or macro definition.
// Validation happens here, at save time; the evaluation pipeline trusts
// stored definitions.
func (e *Engine) SaveAutomation(ctx context.Context, def *models.AutomationDefinition, fields map[string]models.FieldType) error {
	if err := e.validateAutomation(def, fields); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	return e.store.Definitions().SaveAutomation(ctx, def)
}

// SaveApprovalProcess validates and persists an approval process definition.
func (e *Engine) SaveApprovalProcess(ctx context.Context, def *models.ApprovalProcessDefinition, fields map[string]models.FieldType) error {
	if err := e.validateProcess(def, fields); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	return e.store.Definitions().SaveApprovalProcess(ctx, def)
}

func (e *Engine) validateAutomation(def *models.AutomationDefinition, fields map[string]models.FieldType) error {
	if err := e.validate.Struct(def); err != nil {
		return err
	}

	switch def.Kind {
	case models.DefinitionWorkflow:
		if def.Trigger == nil {
			return fmt.Errorf("workflow %q has no trigger", def.Name)
		}

		if err := validateTrigger(def.Trigger); err != nil {
			return err
		}

	case models.DefinitionMacro:
		if def.Trigger != nil {
			return fmt.Errorf("macro %q must not declare a trigger", def.Name)
		}

	default:
		return fmt.Errorf("unknown definition kind %q", def.Kind)
	}

	if err := condition.Validate(def.Conditions, fields); err != nil {
		return err
	}

	return e.validateActions(def.Actions)
}

func (e *Engine) validateProcess(def *models.ApprovalProcessDefinition, fields map[string]models.FieldType) error {
	if err := e.validate.Struct(def); err != nil {
		return err
	}

	if err := validateTrigger(&def.Trigger); err != nil {
		return err
	}

	if err := condition.Validate(def.Conditions, fields); err != nil {
		return err
	}

	for i, step := range def.Steps {
		switch step.Type {
		case models.ApproverUser, models.ApproverRole:
			if step.Value == "" {
				return fmt.Errorf("step %d: approver type %q requires a value", i, step.Type)
			}

		case models.ApproverManager, models.ApproverRecordOwner:

		default:
			return fmt.Errorf("step %d: unknown approver type %q", i, step.Type)
		}

		if step.TimeoutHours < 0 {
			return fmt.Errorf("step %d: negative timeout", i)
		}
	}

	if def.AutoApproveAfterHours < 0 {
		return fmt.Errorf("negative auto-approve deadline")
	}

	if err := e.validateActions(def.OnApproveActions); err != nil {
		return err
	}

	return e.validateActions(def.OnRejectActions)
}

func (e *Engine) validateActions(actions []models.ActionSpec) error {
	for i, spec := range actions {
		if !e.registry.IsRegistered(spec.Type) {
			return fmt.Errorf("action %d: unknown action type %q", i, spec.Type)
		}
	}

	return nil
}

func validateTrigger(trigger *models.TriggerConfig) error {
	switch trigger.Type {
	case models.TriggerOnCreate, models.TriggerRecordCreate,
		models.TriggerOnUpdate, models.TriggerOnDelete, models.TriggerManual:
		return nil

	case models.TriggerFieldChange:
		if trigger.Field == "" {
			return fmt.Errorf("field_change trigger requires a field")
		}

		return nil

	case models.TriggerStageTransition:
		return nil

	case models.TriggerScheduled:
		return schedule.ValidateExpr(trigger.Cron)

	case models.TriggerWebform:
		return nil
	}

	return fmt.Errorf("unknown trigger type %q", trigger.Type)
}
