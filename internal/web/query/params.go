// Package query turns list request query strings into entity service options
package query

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/fixhub/fixhub/internal/orm/crud"
)

// filterPattern matches filter[field] and filter[field][op]
var filterPattern = regexp.MustCompile(`^filter\[([^\]\[]+)\](?:\[([^\]\[]+)\])?$`)

// ParseFindOptions reads page, limit, search, sort, includeInactive and
// filter parameters.
//
//	?page=2&limit=20&search=boiler&sort=-created_at
//	?sortBy=priority&sortOrder=asc&filter[status]=open&filter[priority][gte]=3
//
// Malformed numbers and booleans are reported as bad requests. Unknown
// fields are passed through; the service drops what the entity does not
// allow.
func ParseFindOptions(r *http.Request) (crud.FindOptions, error) {
	q := r.URL.Query()
	var opts crud.FindOptions
	var err error

	if opts.Page, err = parseInt(q, "page"); err != nil {
		return opts, err
	}
	if opts.Limit, err = parseInt(q, "limit"); err != nil {
		return opts, err
	}
	if opts.IncludeInactive, err = parseBool(q, "includeInactive"); err != nil {
		return opts, err
	}

	opts.Search = strings.TrimSpace(q.Get("search"))
	opts.SortBy, opts.SortOrder = ParseSort(q)

	if filters := ParseFilter(q); len(filters) > 0 {
		opts.Filters = filters
	}
	return opts, nil
}

// ParseSort reads sortBy/sortOrder, falling back to the compact form
// sort=-field where the "-" prefix means descending.
func ParseSort(q url.Values) (field, order string) {
	if field = strings.TrimSpace(q.Get("sortBy")); field != "" {
		return field, strings.TrimSpace(q.Get("sortOrder"))
	}

	sort := strings.TrimSpace(q.Get("sort"))
	if first, _, _ := strings.Cut(sort, ","); first != "" {
		if strings.HasPrefix(first, "-") {
			return strings.TrimPrefix(first, "-"), "desc"
		}
		return first, "asc"
	}
	return "", ""
}

// ParseFilter collects filter parameters. A plain filter[field] holds the
// exact-match value; filter[field][op] values are grouped per field into a
// map of operator to value.
func ParseFilter(q url.Values) map[string]interface{} {
	result := make(map[string]interface{})
	ops := make(map[string]map[string]string)

	for key, values := range q {
		m := filterPattern.FindStringSubmatch(key)
		if m == nil || len(values) == 0 {
			continue
		}
		field, op := m[1], m[2]
		if op == "" {
			result[field] = values[0]
			continue
		}
		if ops[field] == nil {
			ops[field] = make(map[string]string)
		}
		ops[field][op] = values[0]
	}

	// operator filters win over an exact value given for the same field
	for field, m := range ops {
		result[field] = m
	}
	return result
}

func parseInt(q url.Values, name string) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", crud.ErrBadRequest, name)
	}
	return n, nil
}

func parseBool(q url.Values, name string) (bool, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false", crud.ErrBadRequest, name)
	}
	return b, nil
}
