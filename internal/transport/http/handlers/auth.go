package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/auth-service/internal/infra/security"
	"github.com/arklim/auth-service/internal/transport/http/middleware"
	"github.com/arklim/auth-service/internal/usecase"
)

const (
	// RefreshCookieName is the cookie carrying the refresh token.
	RefreshCookieName = "refresh_token"
	refreshCookiePath = "/api/v1/auth"
	bearerTokenType   = "Bearer"
)

// CookieSettings controls the refresh token cookie attributes that vary per environment.
type CookieSettings struct {
	Secure bool
	Domain string
}

// AuthHandler exposes the credential and session endpoints.
type AuthHandler struct {
	auth   *usecase.AuthService
	cookie CookieSettings
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, cookie CookieSettings) *AuthHandler {
	return &AuthHandler{auth: auth, cookie: cookie}
}

// RouteMiddlewares lets callers attach middleware (rate limits) to individual routes.
type RouteMiddlewares struct {
	Register []gin.HandlerFunc
	Login    []gin.HandlerFunc
	Refresh  []gin.HandlerFunc
}

// RegisterRoutes binds the /auth routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, mw RouteMiddlewares) {
	r.POST("/register", chain(mw.Register, h.register)...)
	r.POST("/login", chain(mw.Login, h.login)...)
	r.POST("/refresh", chain(mw.Refresh, h.refresh)...)
	r.POST("/logout", h.logout)

	me := r.Group("/me", middleware.RequireAuth(h.auth))
	me.GET("", h.currentUser)
	me.DELETE("", h.deleteAccount)
}

func chain(mw []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(mw)+1)
	out = append(out, mw...)
	return append(out, handler)
}

func (h *AuthHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	userID, err := h.auth.Register(c.Request.Context(), usecase.RegisterInput{
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.ConfirmPassword,
		Name:                 req.Name,
	})
	if err != nil {
		RespondWithMappedError(c, err, registerErrorCases, http.StatusInternalServerError, "failed to register user")
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{Success: true, UserID: userID})
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	ctx := c.Request.Context()
	userID, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		RespondWithMappedError(c, err, loginErrorCases, http.StatusInternalServerError, "authentication failed")
		return
	}

	pair, err := h.auth.IssueTokens(ctx, userID)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "authentication failed")
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    bearerTokenType,
		ExpiresIn:    accessExpiresIn(),
	})
}

func (h *AuthHandler) logout(c *gin.Context) {
	var req LogoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid logout payload"))
			return
		}
	}

	accessToken := strings.TrimSpace(req.AccessToken)
	if accessToken == "" {
		accessToken, _ = middleware.BearerToken(c)
	}
	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		refreshToken = h.refreshCookie(c)
	}

	if err := h.auth.Logout(c.Request.Context(), accessToken, refreshToken); err != nil {
		RespondWithMappedError(c, err, tokenErrorCases, http.StatusInternalServerError, "logout failed")
		return
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (h *AuthHandler) refresh(c *gin.Context) {
	token := h.refreshCookie(c)
	if token == "" && c.Request.ContentLength != 0 {
		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid refresh payload"))
			return
		}
		token = strings.TrimSpace(req.RefreshToken)
	}

	accessToken, err := h.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		RespondWithMappedError(c, err, tokenErrorCases, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: accessToken,
		TokenType:   bearerTokenType,
		ExpiresIn:   accessExpiresIn(),
	})
}

func (h *AuthHandler) currentUser(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "unauthorized"))
		return
	}

	user, err := h.auth.CurrentUser(c.Request.Context(), claims.Subject)
	if err != nil {
		RespondWithMappedError(c, err, tokenErrorCases, http.StatusInternalServerError, "failed to load user")
		return
	}

	c.JSON(http.StatusOK, newUserResponse(user))
}

func (h *AuthHandler) deleteAccount(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "unauthorized"))
		return
	}

	if err := h.auth.DeleteAccount(c.Request.Context(), claims, middleware.AccessTokenFromContext(c)); err != nil {
		RespondWithMappedError(c, err, tokenErrorCases, http.StatusInternalServerError, "failed to delete account")
		return
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (h *AuthHandler) refreshCookie(c *gin.Context) string {
	value, err := c.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		Domain:   h.cookie.Domain,
		MaxAge:   int(security.RefreshTokenTTL.Duration().Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		Domain:   h.cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func accessExpiresIn() int {
	return int(security.AccessTokenTTL.Duration().Seconds())
}
