package domain

import "errors"

var (
	// ErrValidation indicates the request failed input validation.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateUser indicates a user with the same normalized email already exists.
	ErrDuplicateUser = errors.New("user already exists")
	// ErrInvalidCredentials indicates the email or password is incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken indicates the token is malformed, tampered with or of an unknown kind.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates the token expiry has passed.
	ErrExpiredToken = errors.New("token expired")
	// ErrUnauthorized indicates the presented token cannot be used for the requested operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMissingToken indicates a required token was not supplied.
	ErrMissingToken = errors.New("token missing")
	// ErrStorageUnavailable indicates a backing store could not serve the request.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrConfiguration indicates a programming or configuration error.
	ErrConfiguration = errors.New("invalid configuration")
)
