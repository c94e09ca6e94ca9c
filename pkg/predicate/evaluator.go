package predicate

import (
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

// Condition is a single field comparison.
type Condition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"` // eq, neq, gt, gte, lt, lte, contains, in
	Value    interface{} `json:"value"`
}

// Group combines conditions with AND/OR logic. Groups may nest.
type Group struct {
	Logic      string      `json:"logic"` // AND (default) or OR
	Conditions []Condition `json:"conditions"`
	Groups     []Group     `json:"groups,omitempty"`
}

// Operators
const (
	OperatorEQ       = "eq"
	OperatorNEQ      = "neq"
	OperatorGT       = "gt"
	OperatorGTE      = "gte"
	OperatorLT       = "lt"
	OperatorLTE      = "lte"
	OperatorContains = "contains"
	OperatorIn       = "in"

	LogicAnd = "AND"
	LogicOr  = "OR"
)

// Evaluator decides whether a stored condition blob holds against an entity
// snapshot. The engine treats the blob as opaque and delegates here.
type Evaluator interface {
	Evaluate(conditions datatypes.JSON, snapshot map[string]interface{}) (bool, error)
}

// RuleEvaluator evaluates {field, operator, value} condition groups.
type RuleEvaluator struct{}

func NewRuleEvaluator() *RuleEvaluator {
	return &RuleEvaluator{}
}

// Evaluate parses the condition blob as a Group and evaluates it against the
// snapshot. An empty or null blob always passes.
func (e *RuleEvaluator) Evaluate(conditions datatypes.JSON, snapshot map[string]interface{}) (bool, error) {
	if len(conditions) == 0 || string(conditions) == "null" {
		return true, nil
	}

	var group Group
	if err := json.Unmarshal(conditions, &group); err != nil {
		return false, fmt.Errorf("failed to parse conditions: %w", err)
	}

	return e.evaluateGroup(group, snapshot)
}

func (e *RuleEvaluator) evaluateGroup(group Group, snapshot map[string]interface{}) (bool, error) {
	if len(group.Conditions) == 0 && len(group.Groups) == 0 {
		return true, nil
	}

	or := strings.EqualFold(group.Logic, LogicOr)

	for _, cond := range group.Conditions {
		ok, err := e.evaluateCondition(cond, snapshot)
		if err != nil {
			return false, err
		}
		if or && ok {
			return true, nil
		}
		if !or && !ok {
			return false, nil
		}
	}

	for _, sub := range group.Groups {
		ok, err := e.evaluateGroup(sub, snapshot)
		if err != nil {
			return false, err
		}
		if or && ok {
			return true, nil
		}
		if !or && !ok {
			return false, nil
		}
	}

	// AND with no failures passes; OR with no successes fails.
	return !or, nil
}

func (e *RuleEvaluator) evaluateCondition(cond Condition, snapshot map[string]interface{}) (bool, error) {
	actual, exists := snapshot[cond.Field]
	if !exists {
		// Missing fields never satisfy a condition.
		return false, nil
	}

	switch cond.Operator {
	case OperatorEQ:
		return valuesEqual(actual, cond.Value), nil
	case OperatorNEQ:
		return !valuesEqual(actual, cond.Value), nil
	case OperatorGT, OperatorGTE, OperatorLT, OperatorLTE:
		return compareNumeric(actual, cond.Value, cond.Operator)
	case OperatorContains:
		return containsValue(actual, cond.Value), nil
	case OperatorIn:
		return inList(actual, cond.Value), nil
	default:
		return false, fmt.Errorf("unknown operator %q", cond.Operator)
	}
}

func valuesEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareNumeric(a, b interface{}, op string) (bool, error) {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if !okA || !okB {
		return false, fmt.Errorf("operator %q requires numeric operands", op)
	}

	switch op {
	case OperatorGT:
		return fa > fb, nil
	case OperatorGTE:
		return fa >= fb, nil
	case OperatorLT:
		return fa < fb, nil
	case OperatorLTE:
		return fa <= fb, nil
	}
	return false, fmt.Errorf("unknown numeric operator %q", op)
}

func containsValue(actual, expected interface{}) bool {
	switch v := actual.(type) {
	case string:
		return strings.Contains(v, fmt.Sprintf("%v", expected))
	case []interface{}:
		for _, item := range v {
			if valuesEqual(item, expected) {
				return true
			}
		}
	}
	return false
}

func inList(actual, expected interface{}) bool {
	list, ok := expected.([]interface{})
	if !ok {
		return false
	}
	for _, item := range list {
		if valuesEqual(actual, item) {
			return true
		}
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
