package models

// Operator is the closed vocabulary of condition operators.
type Operator string

const (
	OperatorEquals     Operator = "equals"
	OperatorNotEquals  Operator = "not_equals"
	OperatorContains   Operator = "contains"
	OperatorStartsWith Operator = "starts_with"
	OperatorEndsWith   Operator = "ends_with"
	OperatorGt         Operator = "gt"
	OperatorGte        Operator = "gte"
	OperatorLt         Operator = "lt"
	OperatorLte        Operator = "lte"
	OperatorIsNull     Operator = "is_null"
	OperatorIsNotNull  Operator = "is_not_null"
)

// Logic joins the children of a condition group.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// ConditionNode is either a leaf condition (Field/Operator/Value set) or a
// group (Logic/Conditions set). A bare []ConditionNode on a definition is
// sugar for an implicit top-level AND group.
type ConditionNode struct {
	// Group form.
	Logic      Logic           `json:"logic,omitempty"`
	Conditions []ConditionNode `json:"conditions,omitempty"`

	// Leaf form.
	Field    string   `json:"field,omitempty"`
	Operator Operator `json:"operator,omitempty"`
	Value    any      `json:"value,omitempty"`
}

// IsGroup reports whether the node is a group rather than a leaf condition.
func (n ConditionNode) IsGroup() bool {
	return n.Logic != "" || n.Conditions != nil
}

// TextOperators are only valid against text fields; checked at definition
// save time, never at evaluation time.
var TextOperators = map[Operator]bool{
	OperatorContains:   true,
	OperatorStartsWith: true,
	OperatorEndsWith:   true,
}

// KnownOperators enumerates every operator the evaluator understands.
var KnownOperators = map[Operator]bool{
	OperatorEquals:     true,
	OperatorNotEquals:  true,
	OperatorContains:   true,
	OperatorStartsWith: true,
	OperatorEndsWith:   true,
	OperatorGt:         true,
	OperatorGte:        true,
	OperatorLt:         true,
	OperatorLte:        true,
	OperatorIsNull:     true,
	OperatorIsNotNull:  true,
}
