package smartflow

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"
)

// ConditionOperator is the comparison a condition applies
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorNotEquals   ConditionOperator = "not_equals"
	OperatorContains    ConditionOperator = "contains"
	OperatorNotContains ConditionOperator = "not_contains"
	OperatorGreater     ConditionOperator = "greater"
	OperatorLess        ConditionOperator = "less"
	OperatorExists      ConditionOperator = "exists"
)

// ConditionOperators lists every supported operator
var ConditionOperators = []ConditionOperator{
	OperatorEquals,
	OperatorNotEquals,
	OperatorContains,
	OperatorNotContains,
	OperatorGreater,
	OperatorLess,
	OperatorExists,
}

// Valid reports whether op is a supported operator
func (op ConditionOperator) Valid() bool {
	for _, known := range ConditionOperators {
		if op == known {
			return true
		}
	}
	return false
}

// Condition gates a step on a field of the step input.
// Field is a dotted path such as "document.meta.lang".
type Condition struct {
	Field    string            `json:"field" yaml:"field" dynamodbav:"field"`
	Operator ConditionOperator `json:"operator" yaml:"operator" dynamodbav:"operator"`
	Value    any               `json:"value,omitempty" yaml:"value,omitempty" dynamodbav:"value,omitempty"`
}

// RootField returns the first segment of the field path
func (c Condition) RootField() string {
	root, _, _ := strings.Cut(c.Field, ".")
	return root
}

var getPathCode = mustCompilePathQuery()

func mustCompilePathQuery() *gojq.Code {
	query, err := gojq.Parse("getpath($path)")
	if err != nil {
		panic(fmt.Sprintf("failed to parse path query: %v", err))
	}
	code, err := gojq.Compile(query,
		gojq.WithVariables([]string{"$path"}),
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to compile path query: %v", err))
	}
	return code
}

// EvaluateConditions returns true when every condition holds (AND).
// An empty list always holds.
func EvaluateConditions(conditions []Condition, input map[string]any) (bool, error) {
	if len(conditions) == 0 {
		return true, nil
	}

	normalized, err := normalizeJSON(input)
	if err != nil {
		return false, fmt.Errorf("failed to normalize condition input: %w", err)
	}

	for _, cond := range conditions {
		ok, err := cond.Evaluate(normalized)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Evaluate checks the condition against a JSON-normalized payload
func (c Condition) Evaluate(payload any) (bool, error) {
	actual := ResolvePath(payload, c.Field)

	switch c.Operator {
	case OperatorEquals:
		return valuesEqual(actual, c.Value), nil
	case OperatorNotEquals:
		return !valuesEqual(actual, c.Value), nil
	case OperatorContains:
		return strings.Contains(stringify(actual), stringify(c.Value)), nil
	case OperatorNotContains:
		return !strings.Contains(stringify(actual), stringify(c.Value)), nil
	case OperatorGreater:
		a, okA := toFloat(actual)
		b, okB := toFloat(c.Value)
		return okA && okB && a > b, nil
	case OperatorLess:
		a, okA := toFloat(actual)
		b, okB := toFloat(c.Value)
		return okA && okB && a < b, nil
	case OperatorExists:
		return actual != nil, nil
	default:
		return false, NewWorkflowError(ErrCodeValidation, fmt.Sprintf("unknown condition operator %q", c.Operator))
	}
}

// ResolvePath looks up a dotted path in a JSON-normalized payload.
// Numeric segments index into arrays. Unresolvable paths yield nil.
func ResolvePath(payload any, field string) any {
	if field == "" {
		return nil
	}

	segments := strings.Split(field, ".")
	path := make([]any, len(segments))
	for i, seg := range segments {
		if idx, err := strconv.Atoi(seg); err == nil {
			path[i] = idx
		} else {
			path[i] = seg
		}
	}

	iter := getPathCode.RunWithContext(context.Background(), payload, path)
	v, ok := iter.Next()
	if !ok {
		return nil
	}
	if _, isErr := v.(error); isErr {
		return nil
	}
	return v
}

// normalizeJSON converts arbitrary Go values into the plain
// map/slice/float64 shapes gojq understands
func normalizeJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func valuesEqual(actual, expected any) bool {
	norm, err := normalizeJSON(expected)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(actual, norm)
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
