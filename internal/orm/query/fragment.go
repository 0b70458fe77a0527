package query

import (
	"fmt"
	"strings"

	"github.com/fixhub/fixhub/internal/orm/schema"
)

// Fragment is a composable piece of a WHERE clause. ParamOffset is the number
// of positional parameters consumed up to and including this fragment, so the
// next fragment in the same statement starts numbering at ParamOffset+1.
type Fragment struct {
	Clause      string
	Params      []interface{}
	ParamOffset int
}

// IsEmpty returns true if the fragment contributes no predicate
func (f Fragment) IsEmpty() bool {
	return strings.TrimSpace(f.Clause) == ""
}

// Empty returns a fragment with no clause that keeps the running offset
func Empty(paramOffset int) Fragment {
	return Fragment{ParamOffset: paramOffset}
}

// Literal returns a parameterless fragment. The clause must be built from
// metadata identifiers and SQL keywords only.
func Literal(clause string, paramOffset int) Fragment {
	return Fragment{Clause: clause, ParamOffset: paramOffset}
}

// Combine AND-joins the non-empty fragments into one predicate. Fragments
// must have been built in order with chained offsets; the result carries the
// offset of the last fragment.
func Combine(fragments ...Fragment) Fragment {
	var (
		parts  []string
		params []interface{}
		offset int
	)

	for _, f := range fragments {
		if f.ParamOffset > offset {
			offset = f.ParamOffset
		}
		if f.IsEmpty() {
			continue
		}
		parts = append(parts, "("+f.Clause+")")
		params = append(params, f.Params...)
	}

	return Fragment{
		Clause:      strings.Join(parts, " AND "),
		Params:      params,
		ParamOffset: offset,
	}
}

// Where renders the fragment as a WHERE clause, or "" when empty
func (f Fragment) Where() string {
	if f.IsEmpty() {
		return ""
	}
	return " WHERE " + f.Clause
}

// Column qualifies a column with a table prefix. Both parts must be valid
// identifiers; anything else means a caller bypassed the metadata registry.
func Column(tablePrefix, column string) string {
	validateIdentifier(column)
	if tablePrefix == "" {
		return column
	}
	validateIdentifier(tablePrefix)
	return tablePrefix + "." + column
}

// validateIdentifier panics if identifier is not a safe SQL identifier
func validateIdentifier(identifier string) {
	if !schema.IsValidIdentifier(identifier) {
		panic(fmt.Sprintf("invalid identifier: %q", identifier))
	}
}
