// Package query builds the WHERE and ORDER BY fragments used by the entity
// service. Identifiers come from entity metadata; every caller-supplied value
// is bound as a positional parameter.
package query

import (
	"fmt"
	"reflect"
	"strings"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpIn
	OpILike
	OpIsNull
	OpIsNotNull
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "<>"
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpIn:
		return "IN"
	case OpILike:
		return "ILIKE"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	default:
		return "UNKNOWN"
	}
}

// ParseOperator converts a filter operator key to an Operator
func ParseOperator(key string) (Operator, bool) {
	switch strings.ToLower(key) {
	case "eq":
		return OpEqual, true
	case "not":
		return OpNotEqual, true
	case "gt":
		return OpGreaterThan, true
	case "gte":
		return OpGreaterThanOrEqual, true
	case "lt":
		return OpLessThan, true
	case "lte":
		return OpLessThanOrEqual, true
	case "in":
		return OpIn, true
	default:
		return 0, false
	}
}

// Condition represents a single predicate on a column
type Condition struct {
	Column   string // already qualified, e.g. "work_orders.status"
	Operator Operator
	Value    interface{}
}

// conditionToSQL converts a condition to SQL, appending bound values to args
// and advancing paramCounter past every placeholder it emits.
func conditionToSQL(cond *Condition, paramCounter *int, args *[]interface{}) (string, error) {
	switch cond.Operator {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual, OpILike:
		if cond.Value == nil {
			switch cond.Operator {
			case OpEqual:
				return fmt.Sprintf("%s IS NULL", cond.Column), nil
			case OpNotEqual:
				return fmt.Sprintf("%s IS NOT NULL", cond.Column), nil
			default:
				return "", fmt.Errorf("operator %s requires a value", cond.Operator)
			}
		}
		*paramCounter++
		*args = append(*args, cond.Value)
		return fmt.Sprintf("%s %s $%d", cond.Column, cond.Operator, *paramCounter), nil

	case OpIn:
		values, ok := toSlice(cond.Value)
		if !ok {
			return "", fmt.Errorf("IN operator requires a list value")
		}
		if len(values) == 0 {
			// IN with empty list always returns false
			return "FALSE", nil
		}

		placeholders := make([]string, len(values))
		for i, v := range values {
			*paramCounter++
			*args = append(*args, v)
			placeholders[i] = fmt.Sprintf("$%d", *paramCounter)
		}
		return fmt.Sprintf("%s IN (%s)", cond.Column, strings.Join(placeholders, ", ")), nil

	case OpIsNull:
		return fmt.Sprintf("%s IS NULL", cond.Column), nil

	case OpIsNotNull:
		return fmt.Sprintf("%s IS NOT NULL", cond.Column), nil

	default:
		return "", fmt.Errorf("unsupported operator: %v", cond.Operator)
	}
}

// toSlice flattens any slice or array value into []interface{}
func toSlice(v interface{}) ([]interface{}, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.([]interface{}); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	// []byte is a scalar value, not a list
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
