package security

import (
	"errors"
	"strings"
	"testing"
)

func assertViolation(t *testing.T, err error, expectedCode string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected validation error for %s", expectedCode)
	}
	var vErr *PasswordValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected PasswordValidationError, got %T", err)
	}
	if vErr.Code != expectedCode {
		t.Fatalf("expected %s code, got %s", expectedCode, vErr.Code)
	}
}

func TestPasswordPolicyDisabledByDefault(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyConfig{})

	if err := policy.Validate("pw123", "alice@example.com"); err != nil {
		t.Fatalf("expected short password to pass disabled policy, got %v", err)
	}
}

func TestPasswordPolicyViolations(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyConfig{
		MinLength:           10,
		MinCharacterClasses: 3,
		MinStrengthScore:    3,
	})

	assertViolation(t, policy.Validate("Short1!"), "min_length")
	assertViolation(t, policy.Validate("lowercasepassword"), "character_classes")
	assertViolation(t, policy.Validate("Password123"), "weak_password")
	assertViolation(t, policy.Validate(strings.Repeat("Ab1!", 100)), "max_length")

	if err := policy.Validate("C0mplex!Passphrase#2025"); err != nil {
		t.Fatalf("expected password to pass validation, got %v", err)
	}
}

func TestPasswordPolicyUsesUserInputs(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyConfig{MinStrengthScore: 3})

	assertViolation(t, policy.Validate("alice.wonder@example.com", "alice.wonder@example.com"), "weak_password")
}

func TestCharacterClasses(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"abc", 1},
		{"abcD", 2},
		{"abcD1", 3},
		{"abcD1!", 4},
		{"ПарольZ9", 3},
		{"1234567890", 1},
		{"!!@@##$$%%", 1},
	}
	for _, tc := range cases {
		if got := characterClasses(tc.input); got != tc.want {
			t.Fatalf("characterClasses(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestPasswordPolicyClampsStrengthScore(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyConfig{MinStrengthScore: 10})

	if policy.cfg.MinStrengthScore != maxStrengthScore {
		t.Fatalf("expected strength score clamped to %d, got %d", maxStrengthScore, policy.cfg.MinStrengthScore)
	}
}
