package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ValidationErrors contains the validation errors for a record, keyed by field
type ValidationErrors struct {
	Fields map[string][]string `json:"fields"`
}

// NewValidationErrors creates a new ValidationErrors instance
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Fields: make(map[string][]string),
	}
}

// Add adds a validation error for a specific field
func (ve *ValidationErrors) Add(field, message string) {
	if ve.Fields == nil {
		ve.Fields = make(map[string][]string)
	}
	ve.Fields[field] = append(ve.Fields[field], message)
}

// HasErrors returns true if there are any validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return ve != nil && len(ve.Fields) > 0
}

// Count returns the total number of validation errors across all fields
func (ve *ValidationErrors) Count() int {
	count := 0
	for _, messages := range ve.Fields {
		count += len(messages)
	}
	return count
}

// Err returns ve as an error, or nil when there is nothing to report
func (ve *ValidationErrors) Err() error {
	if !ve.HasErrors() {
		return nil
	}
	return ve
}

// Error implements the error interface. Fields are listed alphabetically.
func (ve *ValidationErrors) Error() string {
	if !ve.HasErrors() {
		return "validation failed"
	}

	fields := make([]string, 0, len(ve.Fields))
	for f := range ve.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var messages []string
	for _, field := range fields {
		for _, msg := range ve.Fields[field] {
			messages = append(messages, fmt.Sprintf("%s: %s", field, msg))
		}
	}

	return "validation failed: " + strings.Join(messages, "; ")
}

// MarshalJSON implements json.Marshaler for custom JSON serialization
func (ve *ValidationErrors) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error  string              `json:"error"`
		Fields map[string][]string `json:"fields"`
	}{
		Error:  "validation_failed",
		Fields: ve.Fields,
	})
}
