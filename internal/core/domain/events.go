package domain

import "time"

// UserRegisteredEvent represents the payload for auth.user.registered messages.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Email        string
	Name         *string
	RegisteredAt time.Time
}

// SessionLoggedOutEvent represents the payload for auth.session.logged_out messages.
type SessionLoggedOutEvent struct {
	EventID    string
	UserID     string
	AccessJTI  string
	RefreshJTI string
	LoggedOut  time.Time
}

// UserDeletedEvent represents the payload for auth.user.deleted messages.
type UserDeletedEvent struct {
	EventID   string
	UserID    string
	DeletedAt time.Time
}
