package validation

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	maxNameLength  = 120
	maxEmailLength = 254
)

var validate = validator.New()

// ValidateEmail validates a buyer e-mail address
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if len(email) > maxEmailLength {
		return fmt.Errorf("email too long: expected at most %d characters, got %d", maxEmailLength, len(email))
	}
	if err := validate.Var(email, "email"); err != nil {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// NormalizeEmail trims and lowercases an e-mail so it can be used as the ledger key
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateAndNormalizeEmail validates an e-mail and returns its normalized form
func ValidateAndNormalizeEmail(email string) (string, error) {
	if err := ValidateEmail(email); err != nil {
		return "", err
	}
	return NormalizeEmail(email), nil
}

// ValidateName checks the buyer name is present and printable
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len([]rune(name)) > maxNameLength {
		return fmt.Errorf("name too long: expected at most %d characters", maxNameLength)
	}
	if strings.ContainsAny(name, "\x00\r\n\t") {
		return fmt.Errorf("name contains control characters")
	}
	return nil
}
