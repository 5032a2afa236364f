package domain

import (
	"strings"
	"time"
)

// User is a registered account holder.
type User struct {
	ID           string
	Email        string
	Name         *string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sanitized returns a copy without the password hash.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// NormalizeEmail trims and lower-cases an email so uniqueness is case insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
