// Package validation normalizes caller-supplied records against entity
// metadata and reports per-field validation errors.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fixhub/fixhub/internal/orm/schema"
)

// DateLayout is the storage format of date fields
const DateLayout = "2006-01-02"

// Sanitize returns a normalized copy of data holding only the fields the
// entity declares. Values are coerced by field type: text is trimmed, emails
// are lower-cased, numbers and booleans are parsed from strings and blank
// strings become NULL for non-text types. Values that cannot be coerced are
// reported as a *ValidationErrors.
func Sanitize(meta *schema.EntityMetadata, data map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(data))
	errs := NewValidationErrors()

	for name, raw := range data {
		field, ok := meta.Fields[name]
		if !ok {
			continue
		}
		if raw == nil {
			out[name] = nil
			continue
		}

		value, err := coerce(field, raw)
		if err != nil {
			errs.Add(name, err.Error())
			continue
		}
		if value != nil {
			for _, v := range validatorsFor(field) {
				if err := v.Validate(value); err != nil {
					errs.Add(name, err.Error())
				}
			}
		}
		out[name] = value
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateRequired reports required fields that are absent, NULL or blank
func ValidateRequired(meta *schema.EntityMetadata, data map[string]interface{}) error {
	errs := NewValidationErrors()
	for _, name := range meta.RequiredFields {
		if isBlank(data[name]) {
			errs.Add(name, "is required")
		}
	}
	return errs.Err()
}

func isBlank(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}

func validatorsFor(field *schema.Field) []Validator {
	var vs []Validator
	if field.MaxLength > 0 {
		vs = append(vs, &MaxLengthValidator{Max: field.MaxLength})
	}
	switch field.Type {
	case schema.TypeEmail:
		vs = append(vs, &EmailValidator{})
	case schema.TypePhone:
		vs = append(vs, &PhoneValidator{})
	case schema.TypeEnum:
		vs = append(vs, &EnumValidator{Values: field.Values})
	}
	return vs
}

func coerce(field *schema.Field, raw interface{}) (interface{}, error) {
	switch field.Type {
	case schema.TypeString, schema.TypeText:
		s, err := toString(raw)
		if err != nil {
			return nil, err
		}
		return strings.TrimSpace(s), nil

	case schema.TypeEmail, schema.TypePhone, schema.TypeEnum:
		s, err := toString(raw)
		if err != nil {
			return nil, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		if field.Type == schema.TypeEmail {
			s = strings.ToLower(s)
		}
		return s, nil

	case schema.TypeInteger:
		return toInteger(raw)

	case schema.TypeDecimal:
		return toDecimal(raw)

	case schema.TypeBoolean:
		return toBoolean(raw)

	case schema.TypeTimestamp:
		return toTimestamp(raw)

	case schema.TypeDate:
		return toDate(raw)

	default:
		// structured values pass through and are serialized for storage
		return raw, nil
	}
}

func toString(raw interface{}) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.Number:
		return v.String(), nil
	case int, int32, int64, float64:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("must be a string")
	}
}

func toInteger(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("must be an integer")
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("must be an integer")
		}
		return n, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("must be an integer")
		}
		return n, nil
	default:
		return nil, fmt.Errorf("must be an integer")
	}
}

func toDecimal(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("must be a number")
		}
		return f, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("must be a number")
		}
		return f, nil
	default:
		return nil, fmt.Errorf("must be a number")
	}
}

func toBoolean(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case int:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	case int64:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	case float64:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "":
			return nil, nil
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
	}
	return nil, fmt.Errorf("must be a boolean")
}

func toTimestamp(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("must be an RFC 3339 timestamp")
		}
		return t.UTC(), nil
	default:
		return nil, fmt.Errorf("must be an RFC 3339 timestamp")
	}
}

func toDate(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.Format(DateLayout), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		t, err := time.Parse(DateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("must be a date (YYYY-MM-DD)")
		}
		return t.Format(DateLayout), nil
	default:
		return nil, fmt.Errorf("must be a date (YYYY-MM-DD)")
	}
}
