package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/auth-service/internal/core/domain"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves the provided error against known cases or
// falls back to a generic response. The cause is attached to the gin context
// so the access log records it.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}
	_ = c.Error(err)

	for _, cs := range cases {
		if cs.Err != nil && errors.Is(err, cs.Err) {
			message := cs.Message
			if message == "" {
				message = err.Error()
			}
			c.JSON(cs.Status, NewErrorResponse(c, message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

// tokenErrorCases collapses every token failure into one indistinguishable 401.
var tokenErrorCases = []ErrorCase{
	{Err: domain.ErrStorageUnavailable, Status: http.StatusServiceUnavailable, Message: "service temporarily unavailable"},
	{Err: domain.ErrMissingToken, Status: http.StatusUnauthorized, Message: "unauthorized"},
	{Err: domain.ErrUnauthorized, Status: http.StatusUnauthorized, Message: "unauthorized"},
	{Err: domain.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "unauthorized"},
	{Err: domain.ErrExpiredToken, Status: http.StatusUnauthorized, Message: "unauthorized"},
	{Err: domain.ErrValidation, Status: http.StatusUnauthorized, Message: "unauthorized"},
}

var registerErrorCases = []ErrorCase{
	{Err: domain.ErrValidation, Status: http.StatusBadRequest},
	{Err: domain.ErrDuplicateUser, Status: http.StatusConflict, Message: "user already exists"},
	{Err: domain.ErrStorageUnavailable, Status: http.StatusServiceUnavailable, Message: "service temporarily unavailable"},
}

var loginErrorCases = []ErrorCase{
	{Err: domain.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
	{Err: domain.ErrStorageUnavailable, Status: http.StatusServiceUnavailable, Message: "service temporarily unavailable"},
}
