// Package condition evaluates declarative boolean condition trees against
// business records. Evaluation is pure and total: it performs no I/O and
// never returns an error into the event pipeline; nodes that cannot be
// compared evaluate to false.
package condition

import (
	"strconv"
	"strings"
	"time"

	"github.com/rulegate/rulegate/pkg/models"
)

// Evaluate applies a single node (leaf or group) to a record.
func Evaluate(record *models.Record, node models.ConditionNode) bool {
	if node.IsGroup() {
		return evaluateGroup(record, node)
	}

	return evaluateLeaf(record, node)
}

// EvaluateAll treats a bare condition list as an implicit AND group; an empty
// list is vacuously true.
func EvaluateAll(record *models.Record, nodes []models.ConditionNode) bool {
	for _, n := range nodes {
		if !Evaluate(record, n) {
			return false
		}
	}

	return true
}

func evaluateGroup(record *models.Record, group models.ConditionNode) bool {
	switch group.Logic {
	case models.LogicOr:
		// An empty OR group never matches. Defined behavior, pinned by tests.
		for _, child := range group.Conditions {
			if Evaluate(record, child) {
				return true
			}
		}

		return false
	default:
		// AND, including the implicit group form with unset logic.
		for _, child := range group.Conditions {
			if !Evaluate(record, child) {
				return false
			}
		}

		return true
	}
}

func evaluateLeaf(record *models.Record, cond models.ConditionNode) bool {
	var (
		value   any
		present bool
	)

	if record != nil {
		value, present = record.FieldValue(cond.Field)
	}

	isNull := !present || value == nil

	switch cond.Operator {
	case models.OperatorIsNull:
		return isNull
	case models.OperatorIsNotNull:
		return !isNull
	case models.OperatorEquals:
		return valuesEqual(value, cond.Value, isNull)
	case models.OperatorNotEquals:
		return !valuesEqual(value, cond.Value, isNull)
	case models.OperatorContains:
		return !isNull && strings.Contains(foldString(value), foldString(cond.Value))
	case models.OperatorStartsWith:
		return !isNull && strings.HasPrefix(foldString(value), foldString(cond.Value))
	case models.OperatorEndsWith:
		return !isNull && strings.HasSuffix(foldString(value), foldString(cond.Value))
	case models.OperatorGt:
		ord, ok := compareOrdered(value, cond.Value)

		return ok && ord > 0
	case models.OperatorGte:
		ord, ok := compareOrdered(value, cond.Value)

		return ok && ord >= 0
	case models.OperatorLt:
		ord, ok := compareOrdered(value, cond.Value)

		return ok && ord < 0
	case models.OperatorLte:
		ord, ok := compareOrdered(value, cond.Value)

		return ok && ord <= 0
	default:
		// Unknown operators are rejected at save time; defensively no match.
		return false
	}
}

// valuesEqual compares type-aware: numeric against numeric, boolean against
// boolean, otherwise exact string comparison.
func valuesEqual(value, expected any, isNull bool) bool {
	if isNull || expected == nil {
		return isNull && expected == nil
	}

	if a, aok := asNumber(value); aok {
		if b, bok := asNumber(expected); bok {
			return a == b
		}
	}

	if a, aok := value.(bool); aok {
		if b, bok := expected.(bool); bok {
			return a == b
		}
	}

	return stringify(value) == stringify(expected)
}

// compareOrdered orders two values numerically or as timestamps. The second
// return is false when the pair is not comparable.
func compareOrdered(value, expected any) (int, bool) {
	if a, aok := asNumber(value); aok {
		if b, bok := asNumber(expected); bok {
			switch {
			case a < b:
				return -1, true
			case a > b:
				return 1, true
			default:
				return 0, true
			}
		}
	}

	if a, aok := asTime(value); aok {
		if b, bok := asTime(expected); bok {
			switch {
			case a.Before(b):
				return -1, true
			case a.After(b):
				return 1, true
			default:
				return 0, true
			}
		}
	}

	return 0, false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)

		return f, err == nil
	default:
		return 0, false
	}
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}

		if parsed, err := time.Parse("2006-01-02", t); err == nil {
			return parsed, true
		}
	}

	return time.Time{}, false
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	default:
		if n, ok := asNumber(v); ok {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}

		return ""
	}
}

func foldString(v any) string {
	return strings.ToLower(stringify(v))
}
