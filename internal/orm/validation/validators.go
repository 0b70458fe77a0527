package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9 ().-]{7,20}$`)

// Validator defines the interface for field validators
type Validator interface {
	Validate(value interface{}) error
}

// MaxLengthValidator validates the rune length of string values
type MaxLengthValidator struct {
	Max int
}

// Validate implements the Validator interface
func (v *MaxLengthValidator) Validate(value interface{}) error {
	s, ok := value.(string)
	if !ok || v.Max <= 0 {
		return nil
	}
	if utf8.RuneCountInString(s) > v.Max {
		return fmt.Errorf("must be at most %d characters", v.Max)
	}
	return nil
}

// EmailValidator validates email addresses
type EmailValidator struct{}

// Validate implements the Validator interface
func (v *EmailValidator) Validate(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("email validation requires string value")
	}
	if s == "" {
		return fmt.Errorf("email address cannot be empty")
	}

	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return fmt.Errorf("must be a valid email address")
	}
	return nil
}

// PhoneValidator accepts digits with common separators and an optional
// leading plus sign
type PhoneValidator struct{}

// Validate implements the Validator interface
func (v *PhoneValidator) Validate(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("phone validation requires string value")
	}
	if !phonePattern.MatchString(s) {
		return fmt.Errorf("must be a valid phone number")
	}
	return nil
}

// EnumValidator validates membership in a fixed value set
type EnumValidator struct {
	Values []string
}

// Validate implements the Validator interface
func (v *EnumValidator) Validate(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("must be one of: %s", strings.Join(v.Values, ", "))
	}
	for _, allowed := range v.Values {
		if allowed == s {
			return nil
		}
	}
	return fmt.Errorf("must be one of: %s", strings.Join(v.Values, ", "))
}
