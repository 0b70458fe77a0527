package query

import (
	"fmt"
	"strings"
)

// BuildSearch builds a case-insensitive partial match of term against each
// searchable field, OR-combined. The term is bound once and referenced by every
// field. A blank term yields an empty fragment.
func BuildSearch(term string, fields []string, tablePrefix string, paramOffset int) Fragment {
	term = strings.TrimSpace(term)
	if term == "" || len(fields) == 0 {
		return Empty(paramOffset)
	}

	placeholder := paramOffset + 1
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s %s $%d", Column(tablePrefix, field), OpILike, placeholder))
	}

	return Fragment{
		Clause:      strings.Join(parts, " OR "),
		Params:      []interface{}{"%" + escapeLike(term) + "%"},
		ParamOffset: placeholder,
	}
}

// escapeLike escapes LIKE wildcards so the term matches literally
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
