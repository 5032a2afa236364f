package security

import (
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

const (
	maxPasswordBytes = 256
	maxStrengthScore = 4
)

// PasswordValidationError describes the first policy check a password failed.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func violation(code, format string, args ...any) error {
	return &PasswordValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// PasswordPolicyConfig tunes registration password checks.
// Zero values disable the corresponding rule.
type PasswordPolicyConfig struct {
	MinLength           int
	MinCharacterClasses int
	MinStrengthScore    int
}

// PasswordPolicy validates new passwords against the configured rules,
// feeding user inputs such as the email to the strength estimator.
type PasswordPolicy struct {
	cfg PasswordPolicyConfig
}

func NewPasswordPolicy(cfg PasswordPolicyConfig) *PasswordPolicy {
	cfg.MinStrengthScore = min(cfg.MinStrengthScore, maxStrengthScore)
	return &PasswordPolicy{cfg: cfg}
}

// Validate returns the first violation as a *PasswordValidationError.
// Checks run cheapest first; the strength estimator only sees passwords that pass the rest.
func (p *PasswordPolicy) Validate(password string, userInputs ...string) error {
	if n := p.cfg.MinLength; n > 0 && len([]rune(password)) < n {
		return violation("min_length", "password must be at least %d characters long", n)
	}
	if len(password) > maxPasswordBytes {
		return violation("max_length", "password must be at most %d bytes long", maxPasswordBytes)
	}
	if n := p.cfg.MinCharacterClasses; n > 0 && characterClasses(password) < n {
		return violation("character_classes", "password must include at least %d character types", n)
	}
	if n := p.cfg.MinStrengthScore; n > 0 {
		if zxcvbn.PasswordStrength(password, nonBlank(userInputs)).Score < n {
			return violation("weak_password", "password is too weak; choose a more complex value")
		}
	}
	return nil
}

// characterClasses counts how many of upper, lower, digit and symbol appear in s.
func characterClasses(s string) int {
	const (
		upper = 1 << iota
		lower
		digit
		symbol
	)

	var seen int
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			seen |= upper
		case unicode.IsLower(r):
			seen |= lower
		case unicode.IsDigit(r):
			seen |= digit
		case unicode.IsSymbol(r), unicode.IsPunct(r):
			seen |= symbol
		}
	}

	count := 0
	for ; seen != 0; seen &= seen - 1 {
		count++
	}
	return count
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
