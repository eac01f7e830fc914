package condition

import (
	"errors"
	"fmt"

	"github.com/rulegate/rulegate/pkg/models"
)

var (
	ErrUnknownOperator  = errors.New("unknown operator")
	ErrOperatorMismatch = errors.New("operator not allowed for field type")
	ErrEmptyField       = errors.New("condition field is required")
	ErrUnknownLogic     = errors.New("unknown group logic")
)

// Validate checks a condition tree against the module's declared field types.
// It runs at definition save time; the evaluator itself never raises.
// Fields absent from the catalog are allowed (free-form data fields) and are
// treated as text for operator restriction purposes.
func Validate(nodes []models.ConditionNode, fields map[string]models.FieldType) error {
	for _, n := range nodes {
		if err := validateNode(n, fields); err != nil {
			return err
		}
	}

	return nil
}

func validateNode(node models.ConditionNode, fields map[string]models.FieldType) error {
	if node.IsGroup() {
		if node.Logic != "" && node.Logic != models.LogicAnd && node.Logic != models.LogicOr {
			return fmt.Errorf("%w: %q", ErrUnknownLogic, node.Logic)
		}

		for _, child := range node.Conditions {
			if err := validateNode(child, fields); err != nil {
				return err
			}
		}

		return nil
	}

	if node.Field == "" {
		return ErrEmptyField
	}

	if !models.KnownOperators[node.Operator] {
		return fmt.Errorf("%w: %q", ErrUnknownOperator, node.Operator)
	}

	if models.TextOperators[node.Operator] {
		if ft, declared := fields[node.Field]; declared && ft != models.FieldTypeText {
			return fmt.Errorf("%w: %q on %s field %q", ErrOperatorMismatch, node.Operator, ft, node.Field)
		}
	}

	return nil
}
