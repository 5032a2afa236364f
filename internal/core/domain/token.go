package domain

import "time"

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	// TokenTypeAccess marks short-lived tokens presented to protected endpoints.
	TokenTypeAccess TokenType = "access"
	// TokenTypeRefresh marks long-lived tokens exchanged for new access tokens.
	TokenTypeRefresh TokenType = "refresh"
)

// Valid reports whether the type is one the service issues.
func (t TokenType) Valid() bool {
	return t == TokenTypeAccess || t == TokenTypeRefresh
}

// TokenPair is the result of a successful login.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
