package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/arklim/auth-service/internal/core/domain"
	"github.com/arklim/auth-service/internal/infra/security"
)

func TestAuthServiceAliceScenario(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	userID, err := f.service.Register(ctx, RegisterInput{
		Email:                "alice@example.com",
		Password:             "pw123",
		PasswordConfirmation: "pw123",
	})
	require.NoError(t, err)
	require.NotEmpty(t, userID)

	_, err = f.service.Login(ctx, "alice@example.com", "wrong")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	loggedIn, err := f.service.Login(ctx, "alice@example.com", "pw123")
	require.NoError(t, err)
	require.Equal(t, userID, loggedIn)

	pair, err := f.service.IssueTokens(ctx, loggedIn)
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, pair.AccessToken, pair.RefreshToken))

	for _, token := range []string{pair.AccessToken, pair.RefreshToken} {
		revoked, err := f.denylist.IsRevoked(ctx, token)
		require.NoError(t, err)
		require.True(t, revoked)
	}

	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	require.Len(t, f.events.registered, 1)
	require.Len(t, f.events.loggedOut, 1)
	require.Equal(t, userID, f.events.loggedOut[0].UserID)
}

func TestAuthServiceRegisterValidation(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input RegisterInput
	}{
		{name: "missing email", input: RegisterInput{Password: "pw", PasswordConfirmation: "pw"}},
		{name: "malformed email", input: RegisterInput{Email: "not-an-email", Password: "pw", PasswordConfirmation: "pw"}},
		{name: "display name form", input: RegisterInput{Email: "Mallory <alice@example.com>", Password: "pw", PasswordConfirmation: "pw"}},
		{name: "angle address", input: RegisterInput{Email: "<alice@example.com>", Password: "pw", PasswordConfirmation: "pw"}},
		{name: "missing password", input: RegisterInput{Email: "bob@example.com"}},
		{name: "mismatched confirmation", input: RegisterInput{Email: "bob@example.com", Password: "pw123", PasswordConfirmation: "pw124"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.Register(ctx, tc.input)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	require.Zero(t, f.users.createCalls)
}

func TestAuthServiceRegisterDisplayNameCannotDuplicateMailbox(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.register(t, "alice@example.com", "pw123")

	_, err := f.service.Register(ctx, RegisterInput{
		Email:                "Mallory <alice@example.com>",
		Password:             "pw123",
		PasswordConfirmation: "pw123",
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Len(t, f.users.byID, 1)
	require.Contains(t, f.users.byEmail, "alice@example.com")
}

func TestAuthServiceRegisterAppliesPasswordPolicy(t *testing.T) {
	f := newAuthFixture(t, WithPasswordPolicy(security.NewPasswordPolicy(security.PasswordPolicyConfig{MinLength: 10})))

	_, err := f.service.Register(context.Background(), RegisterInput{Email: "bob@example.com", Password: "short", PasswordConfirmation: "short"})
	require.ErrorIs(t, err, domain.ErrValidation)

	var policyErr *security.PasswordValidationError
	require.ErrorAs(t, err, &policyErr)
	require.Equal(t, "min_length", policyErr.Code)
}

func TestAuthServiceRegisterNormalizesEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	id, err := f.service.Register(ctx, RegisterInput{Email: "  Alice@Example.COM ", Password: "pw123", PasswordConfirmation: "pw123", Name: " Alice "})
	require.NoError(t, err)

	user, err := f.users.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", user.Email)
	require.NotNil(t, user.Name)
	require.Equal(t, "Alice", *user.Name)
	require.NotEqual(t, "pw123", user.PasswordHash)

	_, err = f.service.Register(ctx, RegisterInput{Email: "ALICE@example.com", Password: "other", PasswordConfirmation: "other"})
	require.ErrorIs(t, err, domain.ErrDuplicateUser)

	loggedIn, err := f.service.Login(ctx, "ALICE@EXAMPLE.COM", "pw123")
	require.NoError(t, err)
	require.Equal(t, id, loggedIn)
}

func TestAuthServiceConcurrentDuplicateRegistration(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	const workers = 2
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.service.Register(ctx, RegisterInput{Email: "race@example.com", Password: "pw123", PasswordConfirmation: "pw123"})
		}(i)
	}
	close(start)
	wg.Wait()

	var successes, duplicates int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrDuplicateUser):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, 1, duplicates)
}

func TestAuthServiceRegisterStorageFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.users.getByEmailErr = errStoreDown

	_, err := f.service.Register(context.Background(), RegisterInput{Email: "bob@example.com", Password: "pw", PasswordConfirmation: "pw"})
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)

	f.users.getByEmailErr = nil
	f.users.createErr = errStoreDown
	_, err = f.service.Register(context.Background(), RegisterInput{Email: "bob@example.com", Password: "pw", PasswordConfirmation: "pw"})
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestAuthServiceRegisterIgnoresPublishFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.events.err = errors.New("broker down")

	_, err := f.service.Register(context.Background(), RegisterInput{Email: "bob@example.com", Password: "pw", PasswordConfirmation: "pw"})
	require.NoError(t, err)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.service.Login(context.Background(), "ghost@example.com", "pw123")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = f.service.Login(context.Background(), "", "")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthServiceLoginStorageFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.users.getByEmailErr = errStoreDown

	_, err := f.service.Login(context.Background(), "bob@example.com", "pw")
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	require.NotErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthServiceIssueTokens(t *testing.T) {
	f := newAuthFixture(t)

	pair, err := f.service.IssueTokens(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, pair.AccessExpiresAt.Equal(f.clock.Now().Add(15*time.Minute)))
	require.True(t, pair.RefreshExpiresAt.Equal(f.clock.Now().Add(30*24*time.Hour)))

	access, err := f.codec.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, domain.TokenTypeAccess, access.Type)

	refresh, err := f.codec.Verify(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, domain.TokenTypeRefresh, refresh.Type)
	require.Equal(t, "user-1", refresh.Subject)
}

func TestAuthServiceRefresh(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	userID := f.register(t, "dave@example.com", "pw123")
	pair, err := f.service.IssueTokens(ctx, userID)
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)

	access, err := f.service.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	claims, err := f.codec.Verify(access)
	require.NoError(t, err)
	require.Equal(t, userID, claims.Subject)
	require.Equal(t, domain.TokenTypeAccess, claims.Type)

	// Not rotated: the same refresh token keeps working.
	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
}

func TestAuthServiceRefreshErrors(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.service.Refresh(ctx, "")
	require.ErrorIs(t, err, domain.ErrMissingToken)

	_, err = f.service.Refresh(ctx, "garbage")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	require.ErrorIs(t, err, domain.ErrInvalidToken)

	access, err := f.codec.Mint("user-1", domain.TokenTypeAccess, security.AccessTokenTTL)
	require.NoError(t, err)
	_, err = f.service.Refresh(ctx, access)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	require.ErrorContains(t, err, "invalid token type")
}

func TestAuthServiceRefreshExpiredToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	refresh, err := f.codec.Mint("user-1", domain.TokenTypeRefresh, security.Minutes(1))
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)

	_, err = f.service.Refresh(ctx, refresh)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	require.ErrorIs(t, err, domain.ErrExpiredToken)
	require.Zero(t, f.store.setCalls)
}

func TestAuthServiceRefreshRejectsDeletedAccount(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	userID := f.register(t, "erin@example.com", "pw123")
	pair, err := f.service.IssueTokens(ctx, userID)
	require.NoError(t, err)
	claims, err := f.service.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteAccount(ctx, claims, pair.AccessToken))

	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	require.ErrorContains(t, err, "account no longer exists")
}

func TestAuthServiceRefreshUserLookupFailure(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	userID := f.register(t, "frank@example.com", "pw123")
	pair, err := f.service.IssueTokens(ctx, userID)
	require.NoError(t, err)

	f.users.getByIDErr = errStoreDown

	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestAuthServiceRefreshFailsClosed(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	pair, err := f.service.IssueTokens(ctx, "user-1")
	require.NoError(t, err)

	f.store.existsErr = errStoreDown

	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestAuthServiceLogoutIsAtomic(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	pair, err := f.service.IssueTokens(ctx, "user-1")
	require.NoError(t, err)

	err = f.service.Logout(ctx, pair.AccessToken, "garbage")
	require.ErrorIs(t, err, domain.ErrInvalidToken)
	require.Zero(t, f.store.setCalls)

	err = f.service.Logout(ctx, "garbage", pair.RefreshToken)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
	require.Zero(t, f.store.setCalls)
}

func TestAuthServiceLogoutRejectsWrongTypes(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	pair, err := f.service.IssueTokens(ctx, "user-1")
	require.NoError(t, err)

	err = f.service.Logout(ctx, pair.AccessToken, pair.AccessToken)
	require.ErrorIs(t, err, domain.ErrValidation)

	err = f.service.Logout(ctx, pair.RefreshToken, pair.RefreshToken)
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Zero(t, f.store.setCalls)
}

func TestAuthServiceLogoutRequiresExpiry(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	access, err := f.codec.Mint("user-1", domain.TokenTypeAccess, security.AccessTokenTTL)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &security.Claims{
		Type:             domain.TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}).SignedString([]byte("unit-test-secret"))
	require.NoError(t, err)

	err = f.service.Logout(ctx, access, noExp)
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Zero(t, f.store.setCalls)
}

func TestAuthServiceLogoutExpiredAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	pair, err := f.service.IssueTokens(ctx, "user-1")
	require.NoError(t, err)

	f.clock.Advance(16 * time.Minute)

	err = f.service.Logout(ctx, pair.AccessToken, pair.RefreshToken)
	require.ErrorIs(t, err, domain.ErrExpiredToken)

	revoked, err := f.denylist.IsRevoked(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestAuthServiceLogoutStorageFailure(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	pair, err := f.service.IssueTokens(ctx, "user-1")
	require.NoError(t, err)

	f.store.setErr = errStoreDown
	err = f.service.Logout(ctx, pair.AccessToken, pair.RefreshToken)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	require.Empty(t, f.events.loggedOut)
}

func TestAuthServiceAuthenticate(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	pair, err := f.service.IssueTokens(ctx, "user-1")
	require.NoError(t, err)

	claims, err := f.service.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)

	_, err = f.service.Authenticate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, f.service.Logout(ctx, pair.AccessToken, pair.RefreshToken))
	_, err = f.service.Authenticate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthServiceCurrentUserAndDelete(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	id := f.register(t, "carol@example.com", "pw123")

	pair, err := f.service.IssueTokens(ctx, id)
	require.NoError(t, err)
	claims, err := f.service.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)

	user, err := f.service.CurrentUser(ctx, claims.Subject)
	require.NoError(t, err)
	require.Equal(t, "carol@example.com", user.Email)
	require.Empty(t, user.PasswordHash)

	require.NoError(t, f.service.DeleteAccount(ctx, claims, pair.AccessToken))
	require.Len(t, f.events.deleted, 1)

	_, err = f.service.Authenticate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.service.CurrentUser(ctx, id)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.service.Login(ctx, "carol@example.com", "pw123")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthServiceDeleteAccountKeepsUserWhenRevocationFails(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	id := f.register(t, "grace@example.com", "pw123")
	pair, err := f.service.IssueTokens(ctx, id)
	require.NoError(t, err)
	claims, err := f.service.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)

	f.store.setErr = errStoreDown

	err = f.service.DeleteAccount(ctx, claims, pair.AccessToken)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)

	user, err := f.service.CurrentUser(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "grace@example.com", user.Email)
	require.Empty(t, f.events.deleted)
}

func TestNewAuthServiceRequiresDependencies(t *testing.T) {
	_, err := NewAuthService(nil, nil, nil, nil)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestAuthServiceRevokeToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	pair, err := f.service.IssueTokens(ctx, "user-1")
	require.NoError(t, err)

	claims, err := f.service.RevokeToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, domain.TokenTypeRefresh, claims.Type)

	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.service.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)

	_, err = f.service.RevokeToken(ctx, "garbage")
	require.ErrorIs(t, err, domain.ErrInvalidToken)

	f.clock.Advance(16 * time.Minute)
	_, err = f.service.RevokeToken(ctx, pair.AccessToken)
	require.ErrorIs(t, err, domain.ErrExpiredToken)
}
