package validation

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixhub/fixhub/internal/orm/schema"
)

func customerMeta() *schema.EntityMetadata {
	return &schema.EntityMetadata{
		Key:        "customer",
		Table:      "customers",
		PrimaryKey: "id",
		Fields: map[string]*schema.Field{
			"id":            {Name: "id", Type: schema.TypeInteger},
			"email":         {Name: "email", Type: schema.TypeEmail, MaxLength: 255},
			"company_name":  {Name: "company_name", Type: schema.TypeString, MaxLength: 10},
			"phone":         {Name: "phone", Type: schema.TypePhone},
			"tier":          {Name: "tier", Type: schema.TypeEnum, Values: []string{"standard", "premium"}},
			"credit_limit":  {Name: "credit_limit", Type: schema.TypeDecimal},
			"visit_count":   {Name: "visit_count", Type: schema.TypeInteger},
			"is_active":     {Name: "is_active", Type: schema.TypeBoolean},
			"since":         {Name: "since", Type: schema.TypeDate},
			"last_visit_at": {Name: "last_visit_at", Type: schema.TypeTimestamp},
			"preferences":   {Name: "preferences", Type: schema.TypeJSON},
		},
		RequiredFields: []string{"email"},
	}
}

func TestSanitize_Normalizes(t *testing.T) {
	prefs := map[string]interface{}{"contact": "sms", "slots": []interface{}{"am"}}

	out, err := Sanitize(customerMeta(), map[string]interface{}{
		"email":         "  Jane@Example.COM ",
		"company_name":  "  Acme  ",
		"phone":         "+1 (555) 010-9999",
		"tier":          " premium",
		"credit_limit":  "1500.50",
		"visit_count":   float64(3),
		"is_active":     "true",
		"since":         "2024-02-29",
		"last_visit_at": "2024-03-01T10:00:00+02:00",
		"preferences":   prefs,
		"unknown":       "dropped",
		"password_hash": "dropped",
	})
	require.NoError(t, err)

	assert.Equal(t, "jane@example.com", out["email"])
	assert.Equal(t, "Acme", out["company_name"])
	assert.Equal(t, "premium", out["tier"])
	assert.Equal(t, 1500.5, out["credit_limit"])
	assert.Equal(t, int64(3), out["visit_count"])
	assert.Equal(t, true, out["is_active"])
	assert.Equal(t, "2024-02-29", out["since"])
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), out["last_visit_at"])
	assert.Equal(t, prefs, out["preferences"])
	assert.NotContains(t, out, "unknown")
	assert.NotContains(t, out, "password_hash")
}

func TestSanitize_BlankBecomesNull(t *testing.T) {
	out, err := Sanitize(customerMeta(), map[string]interface{}{
		"phone":        "   ",
		"visit_count":  "",
		"credit_limit": " ",
		"is_active":    "",
		"company_name": "  ",
	})
	require.NoError(t, err)

	assert.Nil(t, out["phone"])
	assert.Nil(t, out["visit_count"])
	assert.Nil(t, out["credit_limit"])
	assert.Nil(t, out["is_active"])
	assert.Equal(t, "", out["company_name"])
}

func TestSanitize_Errors(t *testing.T) {
	_, err := Sanitize(customerMeta(), map[string]interface{}{
		"email":        "not-an-email",
		"company_name": "Much Too Long Inc",
		"tier":         "gold",
		"visit_count":  2.5,
		"is_active":    "maybe",
		"since":        "29/02/2024",
		"phone":        "call me",
	})
	require.Error(t, err)

	var ve *ValidationErrors
	require.True(t, errors.As(err, &ve))
	for _, f := range []string{"email", "company_name", "tier", "visit_count", "is_active", "since", "phone"} {
		assert.Contains(t, ve.Fields, f)
	}
	assert.Equal(t, 7, ve.Count())
}

func TestSanitize_JSONNumber(t *testing.T) {
	out, err := Sanitize(customerMeta(), map[string]interface{}{
		"visit_count":  json.Number("12"),
		"credit_limit": json.Number("9.75"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), out["visit_count"])
	assert.Equal(t, 9.75, out["credit_limit"])
}

func TestValidateRequired(t *testing.T) {
	meta := customerMeta()

	for _, data := range []map[string]interface{}{
		{},
		{"email": nil},
		{"email": "  "},
	} {
		err := ValidateRequired(meta, data)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "email: is required")
	}

	assert.NoError(t, ValidateRequired(meta, map[string]interface{}{"email": "a@b.com"}))
}

func TestValidationErrors(t *testing.T) {
	ve := NewValidationErrors()
	assert.False(t, ve.HasErrors())
	assert.Nil(t, ve.Err())

	ve.Add("title", "is required")
	ve.Add("email", "must be a valid email address")
	ve.Add("title", "must be at most 10 characters")

	assert.Equal(t, 3, ve.Count())
	assert.Equal(t,
		"validation failed: email: must be a valid email address; title: is required; title: must be at most 10 characters",
		ve.Error(),
	)

	b, err := json.Marshal(ve)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), `"error":"validation_failed"`))

	var nilErrs *ValidationErrors
	assert.False(t, nilErrs.HasErrors())
}

func TestFieldValidators(t *testing.T) {
	tests := []struct {
		name      string
		validator Validator
		value     interface{}
		wantErr   bool
	}{
		{"valid email", &EmailValidator{}, "a@b.com", false},
		{"display-name email", &EmailValidator{}, "Jane <a@b.com>", true},
		{"empty email", &EmailValidator{}, "", true},
		{"non-string email", &EmailValidator{}, 5, true},
		{"valid phone", &PhoneValidator{}, "555-0100", false},
		{"short phone", &PhoneValidator{}, "12", true},
		{"enum member", &EnumValidator{Values: []string{"low", "high"}}, "low", false},
		{"enum outsider", &EnumValidator{Values: []string{"low", "high"}}, "urgent", true},
		{"within length", &MaxLengthValidator{Max: 3}, "abc", false},
		{"over length", &MaxLengthValidator{Max: 3}, "abcd", true},
		{"multibyte length", &MaxLengthValidator{Max: 3}, "äöü", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.validator.Validate(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
