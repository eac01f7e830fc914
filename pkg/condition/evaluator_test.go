package condition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulegate/rulegate/pkg/models"
)

func record(data map[string]any) *models.Record {
	return &models.Record{
		ID:       "rec-1",
		ModuleID: "deals",
		OwnerID:  "user-1",
		Data:     data,
	}
}

func leaf(field string, op models.Operator, value any) models.ConditionNode {
	return models.ConditionNode{Field: field, Operator: op, Value: value}
}

func TestEvaluate_NumericOrdering(t *testing.T) {
	cond := leaf("amount", models.OperatorGt, 1000)

	tests := []struct {
		name string
		data map[string]any
		want bool
	}{
		{"above threshold", map[string]any{"amount": 1500}, true},
		{"below threshold", map[string]any{"amount": 500}, false},
		{"missing field", map[string]any{}, false},
		{"float value", map[string]any{"amount": 1000.01}, true},
		{"equal is not greater", map[string]any{"amount": 1000}, false},
		{"numeric string", map[string]any{"amount": "2000"}, true},
		{"non-comparable value", map[string]any{"amount": []string{"x"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(record(tt.data), cond))
		})
	}
}

func TestEvaluate_DateOrdering(t *testing.T) {
	cond := leaf("close_date", models.OperatorLt, "2026-06-01")

	assert.True(t, Evaluate(record(map[string]any{"close_date": "2026-01-15"}), cond))
	assert.False(t, Evaluate(record(map[string]any{"close_date": "2026-07-01"}), cond))
	assert.True(t, Evaluate(record(map[string]any{"close_date": time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}), cond))
	assert.False(t, Evaluate(record(map[string]any{"close_date": "not a date"}), cond))
}

func TestEvaluate_Equality(t *testing.T) {
	tests := []struct {
		name string
		cond models.ConditionNode
		data map[string]any
		want bool
	}{
		{"string equals", leaf("status", models.OperatorEquals, "open"), map[string]any{"status": "open"}, true},
		{"string equals is case sensitive", leaf("status", models.OperatorEquals, "Open"), map[string]any{"status": "open"}, false},
		{"numeric equals across types", leaf("count", models.OperatorEquals, 3), map[string]any{"count": 3.0}, true},
		{"bool equals", leaf("active", models.OperatorEquals, true), map[string]any{"active": true}, true},
		{"not equals", leaf("status", models.OperatorNotEquals, "won"), map[string]any{"status": "open"}, true},
		{"missing field never equals", leaf("status", models.OperatorEquals, "open"), map[string]any{}, false},
		{"missing field satisfies not_equals", leaf("status", models.OperatorNotEquals, "open"), map[string]any{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(record(tt.data), tt.cond))
		})
	}
}

func TestEvaluate_TextOperators(t *testing.T) {
	data := map[string]any{"email": "Jane.Doe@Example.COM"}

	assert.True(t, Evaluate(record(data), leaf("email", models.OperatorContains, "example")))
	assert.True(t, Evaluate(record(data), leaf("email", models.OperatorStartsWith, "jane")))
	assert.True(t, Evaluate(record(data), leaf("email", models.OperatorEndsWith, ".com")))
	assert.False(t, Evaluate(record(data), leaf("email", models.OperatorContains, "gmail")))
	assert.False(t, Evaluate(record(map[string]any{}), leaf("email", models.OperatorContains, "x")))
}

func TestEvaluate_NullChecks(t *testing.T) {
	assert.True(t, Evaluate(record(map[string]any{}), leaf("phone", models.OperatorIsNull, nil)))
	assert.True(t, Evaluate(record(map[string]any{"phone": nil}), leaf("phone", models.OperatorIsNull, nil)))
	assert.False(t, Evaluate(record(map[string]any{"phone": "555"}), leaf("phone", models.OperatorIsNull, nil)))
	assert.True(t, Evaluate(record(map[string]any{"phone": "555"}), leaf("phone", models.OperatorIsNotNull, nil)))
}

func TestEvaluate_SystemFields(t *testing.T) {
	rec := record(nil)

	assert.True(t, Evaluate(rec, leaf("owner_id", models.OperatorEquals, "user-1")))
	assert.True(t, Evaluate(rec, leaf("id", models.OperatorEquals, "rec-1")))
}

func TestEvaluate_EmptyGroups(t *testing.T) {
	rec := record(nil)

	// Empty AND is vacuously true; empty OR never matches. Both are defined
	// behavior, not bugs.
	assert.True(t, Evaluate(rec, models.ConditionNode{Logic: models.LogicAnd, Conditions: []models.ConditionNode{}}))
	assert.False(t, Evaluate(rec, models.ConditionNode{Logic: models.LogicOr, Conditions: []models.ConditionNode{}}))
	assert.True(t, EvaluateAll(rec, nil))
}

func TestEvaluate_NestedGroups(t *testing.T) {
	rec := record(map[string]any{"amount": 5000, "stage_name": "negotiation", "region": "emea"})

	tree := models.ConditionNode{
		Logic: models.LogicAnd,
		Conditions: []models.ConditionNode{
			leaf("amount", models.OperatorGte, 1000),
			{
				Logic: models.LogicOr,
				Conditions: []models.ConditionNode{
					leaf("region", models.OperatorEquals, "amer"),
					leaf("stage_name", models.OperatorContains, "negoti"),
				},
			},
		},
	}

	assert.True(t, Evaluate(rec, tree))

	rec.Data["amount"] = 100
	assert.False(t, Evaluate(rec, tree))
}

func TestEvaluate_Deterministic(t *testing.T) {
	rec := record(map[string]any{"amount": 1500})
	cond := leaf("amount", models.OperatorGt, 1000)

	first := Evaluate(rec, cond)
	for range 10 {
		assert.Equal(t, first, Evaluate(rec, cond))
	}
}

func TestEvaluate_UnknownOperatorNeverPanics(t *testing.T) {
	assert.False(t, Evaluate(record(nil), leaf("x", models.Operator("regex"), ".*")))
	assert.False(t, Evaluate(nil, leaf("x", models.OperatorEquals, "y")))
}

func TestValidate(t *testing.T) {
	fields := map[string]models.FieldType{
		"amount": models.FieldTypeNumber,
		"email":  models.FieldTypeText,
	}

	tests := []struct {
		name    string
		nodes   []models.ConditionNode
		wantErr error
	}{
		{"valid tree", []models.ConditionNode{leaf("email", models.OperatorContains, "x")}, nil},
		{"contains on number field", []models.ConditionNode{leaf("amount", models.OperatorContains, "5")}, ErrOperatorMismatch},
		{"unknown operator", []models.ConditionNode{leaf("amount", models.Operator("matches"), "5")}, ErrUnknownOperator},
		{"empty field", []models.ConditionNode{leaf("", models.OperatorEquals, "x")}, ErrEmptyField},
		{"bad logic", []models.ConditionNode{{Logic: models.Logic("XOR"), Conditions: []models.ConditionNode{}}}, ErrUnknownLogic},
		{"undeclared field treated as text", []models.ConditionNode{leaf("nickname", models.OperatorContains, "x")}, nil},
		{
			"nested group error surfaces",
			[]models.ConditionNode{{
				Logic:      models.LogicOr,
				Conditions: []models.ConditionNode{leaf("amount", models.OperatorStartsWith, "1")},
			}},
			ErrOperatorMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.nodes, fields)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
