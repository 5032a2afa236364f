package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/auth-service/internal/core/domain"
	"github.com/arklim/auth-service/internal/core/port"
	"github.com/arklim/auth-service/internal/infra/logger"
	"github.com/arklim/auth-service/internal/infra/security"
	"github.com/arklim/auth-service/internal/repository"
)

const dummyPassword = "timing-equalisation-placeholder"

var tracer = otel.Tracer("github.com/arklim/auth-service/internal/usecase")

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Email                string
	Password             string
	PasswordConfirmation string
	Name                 string
}

// AuthService coordinates registration, login, logout and refresh.
type AuthService struct {
	users    port.UserRepository
	hasher   port.PasswordHasher
	policy   port.PasswordPolicyValidator
	codec    *security.TokenCodec
	denylist *DenylistService
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time

	dummyHash string
}

// AuthOption customises an AuthService.
type AuthOption func(*AuthService)

// WithPasswordPolicy enables password policy checks at registration.
func WithPasswordPolicy(policy port.PasswordPolicyValidator) AuthOption {
	return func(s *AuthService) {
		s.policy = policy
	}
}

// WithEventPublisher publishes lifecycle events after successful operations.
func WithEventPublisher(events port.EventPublisher) AuthOption {
	return func(s *AuthService) {
		s.events = events
	}
}

// WithAuthLogger sets the logger used for denied and failed operations.
func WithAuthLogger(log *zap.Logger) AuthOption {
	return func(s *AuthService) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithAuthClock overrides the time source used for timestamps on events.
func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *AuthService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	users port.UserRepository,
	hasher port.PasswordHasher,
	codec *security.TokenCodec,
	denylist *DenylistService,
	opts ...AuthOption,
) (*AuthService, error) {
	if users == nil || hasher == nil || codec == nil || denylist == nil {
		return nil, fmt.Errorf("%w: auth service dependencies are required", domain.ErrConfiguration)
	}

	s := &AuthService{
		users:    users,
		hasher:   hasher,
		codec:    codec,
		denylist: denylist,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	s.dummyHash = dummy

	return s, nil
}

// Register creates a new account and returns its identifier.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Register")
	defer func() { finishSpan(span, err) }()

	email := domain.NormalizeEmail(input.Email)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrValidation)
	}
	// Only a bare mailbox is accepted; "Name <addr>" forms would slip past the unique index.
	addr, parseErr := mail.ParseAddress(email)
	if parseErr != nil || addr.Name != "" || addr.Address != email {
		return "", fmt.Errorf("%w: email is malformed", domain.ErrValidation)
	}
	email = addr.Address
	if input.Password == "" {
		return "", fmt.Errorf("%w: password is required", domain.ErrValidation)
	}
	if input.Password != input.PasswordConfirmation {
		return "", fmt.Errorf("%w: passwords do not match", domain.ErrValidation)
	}
	if s.policy != nil {
		if policyErr := s.policy.Validate(input.Password, email, input.Name); policyErr != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrValidation, policyErr)
		}
	}

	// The unique index decides races; this lookup only avoids hashing for obvious duplicates.
	if _, lookupErr := s.users.GetByEmail(ctx, email); lookupErr == nil {
		return "", domain.ErrDuplicateUser
	} else if !errors.Is(lookupErr, repository.ErrNotFound) {
		return "", fmt.Errorf("%w: lookup user: %w", domain.ErrStorageUnavailable, lookupErr)
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if name := strings.TrimSpace(input.Name); name != "" {
		user.Name = &name
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return "", domain.ErrDuplicateUser
		}
		return "", fmt.Errorf("%w: create user: %w", domain.ErrStorageUnavailable, err)
	}

	span.SetAttributes(attribute.String("user.id", user.ID))
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("email", logger.MaskEmail(email)))

	if s.events != nil {
		event := domain.UserRegisteredEvent{
			EventID:      uuid.NewString(),
			UserID:       user.ID,
			Email:        email,
			Name:         user.Name,
			RegisteredAt: now,
		}
		if pubErr := s.events.PublishUserRegistered(ctx, event); pubErr != nil {
			s.logger.Warn("publish user registered event failed", zap.String("user_id", user.ID), zap.Error(pubErr))
		}
	}

	return user.ID, nil
}

// Login verifies credentials and returns the user id. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Login")
	defer func() { finishSpan(span, err) }()

	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return "", domain.ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_, _ = s.hasher.Verify(password, s.dummyHash)
			s.logger.Warn("login rejected", zap.String("email", logger.MaskEmail(email)), zap.String("reason", "unknown_email"))
			return "", domain.ErrInvalidCredentials
		}
		return "", fmt.Errorf("%w: lookup user: %w", domain.ErrStorageUnavailable, err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.logger.Warn("login rejected", zap.String("user_id", user.ID), zap.String("reason", "password_mismatch"))
		return "", domain.ErrInvalidCredentials
	}

	span.SetAttributes(attribute.String("user.id", user.ID))
	return user.ID, nil
}

// IssueTokens mints a fresh access and refresh token pair for userID.
func (s *AuthService) IssueTokens(ctx context.Context, userID string) (_ domain.TokenPair, err error) {
	_, span := tracer.Start(ctx, "AuthService.IssueTokens")
	defer func() { finishSpan(span, err) }()

	access, err := s.codec.Issue(userID, domain.TokenTypeAccess, security.AccessTokenTTL)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("mint access token: %w", err)
	}
	refresh, err := s.codec.Issue(userID, domain.TokenTypeRefresh, security.RefreshTokenTTL)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("mint refresh token: %w", err)
	}

	return domain.TokenPair{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// Logout denylists both tokens. Both are decoded and checked before anything
// is revoked, so a bad token leaves the other one untouched.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) (err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Logout")
	defer func() { finishSpan(span, err) }()

	accessClaims, err := s.codec.Verify(accessToken)
	if err != nil {
		return fmt.Errorf("decode access token: %w", err)
	}
	refreshClaims, err := s.codec.Verify(refreshToken)
	if err != nil {
		return fmt.Errorf("decode refresh token: %w", err)
	}

	if refreshClaims.Type != domain.TokenTypeRefresh {
		return fmt.Errorf("%w: refresh token has type %q", domain.ErrValidation, refreshClaims.Type)
	}
	if accessClaims.Type != domain.TokenTypeAccess {
		return fmt.Errorf("%w: access token has type %q", domain.ErrValidation, accessClaims.Type)
	}
	if !accessClaims.HasExpiry() || !refreshClaims.HasExpiry() {
		return fmt.Errorf("%w: token has no expiry", domain.ErrValidation)
	}

	if err := s.denylist.Revoke(ctx, accessToken, accessClaims.Expiry()); err != nil {
		return err
	}
	if err := s.denylist.Revoke(ctx, refreshToken, refreshClaims.Expiry()); err != nil {
		return err
	}

	span.SetAttributes(attribute.String("user.id", accessClaims.Subject))

	if s.events != nil {
		event := domain.SessionLoggedOutEvent{
			EventID:    uuid.NewString(),
			UserID:     accessClaims.Subject,
			AccessJTI:  accessClaims.ID,
			RefreshJTI: refreshClaims.ID,
			LoggedOut:  s.now().UTC(),
		}
		if pubErr := s.events.PublishSessionLoggedOut(ctx, event); pubErr != nil {
			s.logger.Warn("publish logout event failed", zap.String("user_id", accessClaims.Subject), zap.Error(pubErr))
		}
	}

	return nil
}

// RevokeToken denylists a single access or refresh token until its own expiry.
func (s *AuthService) RevokeToken(ctx context.Context, token string) (_ *security.Claims, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.RevokeToken")
	defer func() { finishSpan(span, err) }()

	claims, err := s.codec.Verify(token)
	if err != nil {
		return nil, err
	}
	if !claims.HasExpiry() {
		return nil, fmt.Errorf("%w: token has no expiry", domain.ErrValidation)
	}

	if err := s.denylist.Revoke(ctx, token, claims.Expiry()); err != nil {
		return nil, err
	}

	s.logger.Info("token revoked", zap.String("user_id", claims.Subject), zap.String("type", string(claims.Type)))
	return claims, nil
}

// Refresh exchanges a valid, unrevoked refresh token of an existing account for a new access token.
// The refresh token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Refresh")
	defer func() { finishSpan(span, err) }()

	claims, err := s.authorize(ctx, refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		return "", err
	}

	// Refresh tokens outlive account deletion; the subject must still exist.
	if _, err := s.users.GetByID(ctx, claims.Subject); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%w: account no longer exists", domain.ErrUnauthorized)
		}
		return "", fmt.Errorf("%w: lookup user: %w", domain.ErrStorageUnavailable, err)
	}

	access, err := s.codec.Mint(claims.Subject, domain.TokenTypeAccess, security.AccessTokenTTL)
	if err != nil {
		return "", fmt.Errorf("mint access token: %w", err)
	}
	return access, nil
}

// Authenticate validates an access token presented to a protected endpoint.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (_ *security.Claims, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Authenticate")
	defer func() { finishSpan(span, err) }()

	return s.authorize(ctx, accessToken, domain.TokenTypeAccess)
}

// authorize runs the denylist check before verification so revoked tokens
// are refused even while their signature is still valid.
func (s *AuthService) authorize(ctx context.Context, token string, want domain.TokenType) (*security.Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, domain.ErrMissingToken
	}

	revoked, err := s.denylist.IsRevoked(ctx, token)
	if err != nil {
		return nil, err
	}
	if revoked {
		s.logger.Debug("token rejected", zap.String("reason", "revoked"), zap.String("type", string(want)))
		return nil, fmt.Errorf("%w: token revoked", domain.ErrUnauthorized)
	}

	claims, err := s.codec.Verify(token)
	if err != nil {
		s.logger.Debug("token rejected", zap.String("type", string(want)), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	if claims.Type != want {
		return nil, fmt.Errorf("%w: invalid token type", domain.ErrUnauthorized)
	}
	if !claims.HasExpiry() {
		return nil, fmt.Errorf("%w: token has no expiry", domain.ErrUnauthorized)
	}

	return claims, nil
}

// CurrentUser returns the account behind an authenticated subject.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, fmt.Errorf("%w: account no longer exists", domain.ErrUnauthorized)
		}
		return domain.User{}, fmt.Errorf("%w: lookup user: %w", domain.ErrStorageUnavailable, err)
	}
	return user.Sanitized(), nil
}

// DeleteAccount removes the account and denylists the access token used to request it.
func (s *AuthService) DeleteAccount(ctx context.Context, claims *security.Claims, accessToken string) (err error) {
	ctx, span := tracer.Start(ctx, "AuthService.DeleteAccount")
	defer func() { finishSpan(span, err) }()

	if claims == nil || claims.Subject == "" {
		return domain.ErrUnauthorized
	}

	// Revoke first: a failed delete then leaves a live account behind a dead token, never the reverse.
	if err := s.denylist.Revoke(ctx, accessToken, claims.Expiry()); err != nil {
		return err
	}

	if err := s.users.Delete(ctx, claims.Subject); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: account no longer exists", domain.ErrUnauthorized)
		}
		return fmt.Errorf("%w: delete user: %w", domain.ErrStorageUnavailable, err)
	}

	s.logger.Info("user deleted", zap.String("user_id", claims.Subject))

	if s.events != nil {
		event := domain.UserDeletedEvent{
			EventID:   uuid.NewString(),
			UserID:    claims.Subject,
			DeletedAt: s.now().UTC(),
		}
		if pubErr := s.events.PublishUserDeleted(ctx, event); pubErr != nil {
			s.logger.Warn("publish user deleted event failed", zap.String("user_id", claims.Subject), zap.Error(pubErr))
		}
	}

	return nil
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
