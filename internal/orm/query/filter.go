package query

import (
	"sort"
	"strings"
)

// BuildFilter builds exact-match and operator predicates for the allow-listed
// fields in filters. A plain value matches exactly; a map value such as
// {"gte": 3, "lte": 5} applies each operator (gt, gte, lt, lte, not, in).
//
// Keys outside allowedFields and unknown operators are dropped without error
// so a caller cannot probe which columns exist. The returned map holds only
// what was applied, letting callers report the effective filter set.
func BuildFilter(
	filters map[string]interface{},
	allowedFields []string,
	paramOffset int,
	tablePrefix string,
) (Fragment, map[string]interface{}) {
	applied := make(map[string]interface{})
	if len(filters) == 0 {
		return Empty(paramOffset), applied
	}

	allowed := make(map[string]bool, len(allowedFields))
	for _, f := range allowedFields {
		allowed[f] = true
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		if allowed[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	counter := paramOffset
	var (
		parts []string
		args  []interface{}
	)

	for _, field := range keys {
		column := Column(tablePrefix, field)
		value := filters[field]

		ops, structured := operatorMap(value)
		if !structured {
			sql, err := conditionToSQL(&Condition{Column: column, Operator: OpEqual, Value: value}, &counter, &args)
			if err != nil {
				continue
			}
			parts = append(parts, sql)
			applied[field] = value
			continue
		}

		opKeys := make([]string, 0, len(ops))
		for k := range ops {
			opKeys = append(opKeys, k)
		}
		sort.Strings(opKeys)

		fieldApplied := make(map[string]interface{})
		for _, opKey := range opKeys {
			op, ok := ParseOperator(opKey)
			if !ok {
				continue
			}
			// Roll back the counter and args if the condition is rejected
			mark, argMark := counter, len(args)
			sql, err := conditionToSQL(&Condition{Column: column, Operator: op, Value: ops[opKey]}, &counter, &args)
			if err != nil {
				counter, args = mark, args[:argMark]
				continue
			}
			parts = append(parts, sql)
			fieldApplied[strings.ToLower(opKey)] = ops[opKey]
		}
		if len(fieldApplied) > 0 {
			applied[field] = fieldApplied
		}
	}

	return Fragment{
		Clause:      strings.Join(parts, " AND "),
		Params:      args,
		ParamOffset: counter,
	}, applied
}

// operatorMap returns the operator map of a structured filter value
func operatorMap(value interface{}) (map[string]interface{}, bool) {
	switch v := value.(type) {
	case map[string]interface{}:
		return v, true
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for k, s := range v {
			if strings.EqualFold(k, "in") {
				out[k] = splitList(s)
				continue
			}
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// splitList splits a comma separated query-string list
func splitList(s string) []interface{} {
	parts := strings.Split(s, ",")
	out := make([]interface{}, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
