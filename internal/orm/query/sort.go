package query

import (
	"strings"

	"github.com/fixhub/fixhub/internal/orm/schema"
)

// Sort is a resolved ORDER BY clause
type Sort struct {
	Clause    string // "ORDER BY t.col DIR", or "" when nothing resolves
	Field     string
	Direction string
}

// BuildSort resolves the requested field and direction against the sort
// allow-list. A field that is not allow-listed falls back to the default
// field and the default direction together; the caller's direction is only
// honored alongside an accepted field.
func BuildSort(field, direction string, allowedFields []string, defaultSort schema.SortSpec, tablePrefix string) Sort {
	resolvedField := strings.TrimSpace(field)
	resolvedDir := normalizeDirection(direction)

	if resolvedField == "" || !contains(allowedFields, resolvedField) {
		resolvedField = defaultSort.Field
		resolvedDir = normalizeDirection(defaultSort.Direction)
	} else if resolvedDir == "" {
		resolvedDir = normalizeDirection(defaultSort.Direction)
	}

	if resolvedDir == "" {
		resolvedDir = "ASC"
	}
	if resolvedField == "" {
		return Sort{}
	}

	return Sort{
		Clause:    "ORDER BY " + Column(tablePrefix, resolvedField) + " " + resolvedDir,
		Field:     resolvedField,
		Direction: resolvedDir,
	}
}

// normalizeDirection returns ASC, DESC or "" for anything else
func normalizeDirection(direction string) string {
	switch strings.ToUpper(strings.TrimSpace(direction)) {
	case "ASC":
		return "ASC"
	case "DESC":
		return "DESC"
	default:
		return ""
	}
}

func contains(slice []string, value string) bool {
	for _, item := range slice {
		if item == value {
			return true
		}
	}
	return false
}
