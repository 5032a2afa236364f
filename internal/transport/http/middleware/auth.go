package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/auth-service/internal/core/domain"
	"github.com/arklim/auth-service/internal/infra/security"
)

const (
	claimsKey      = "claims"
	accessTokenKey = "access_token"
)

// ErrorResponse matches the handlers.ErrorResponse structure.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// Authenticator validates access tokens presented to protected routes.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*security.Claims, error)
}

// RequireAuth validates the bearer token and stores its claims on the context.
// Every token failure produces the same 401 body.
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "unauthorized"))
			return
		}

		claims, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, domain.ErrStorageUnavailable) {
				_ = c.Error(err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, newErrorResponse(c, "service temporarily unavailable"))
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "unauthorized"))
			return
		}

		c.Set(UserIDKey, claims.Subject)
		c.Set(claimsKey, claims)
		c.Set(accessTokenKey, token)

		c.Next()
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *gin.Context) (string, bool) {
	scheme, token, found := strings.Cut(c.GetHeader("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// ClaimsFromContext returns the claims stored by RequireAuth.
func ClaimsFromContext(c *gin.Context) (*security.Claims, bool) {
	raw, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := raw.(*security.Claims)
	return claims, ok && claims != nil
}

// AccessTokenFromContext returns the raw bearer token accepted by RequireAuth.
func AccessTokenFromContext(c *gin.Context) string {
	return c.GetString(accessTokenKey)
}
