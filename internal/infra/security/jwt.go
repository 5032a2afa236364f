package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/arklim/auth-service/internal/core/domain"
)

// TTL is a token lifetime expressed either in minutes or in days.
// The zero value carries no lifetime and is rejected by the codec.
type TTL struct {
	d time.Duration
}

// Minutes returns a lifetime of n minutes.
func Minutes(n int) TTL {
	return TTL{d: time.Duration(n) * time.Minute}
}

// Days returns a lifetime of n days.
func Days(n int) TTL {
	return TTL{d: time.Duration(n) * 24 * time.Hour}
}

// Duration returns the lifetime as a time.Duration.
func (t TTL) Duration() time.Duration {
	return t.d
}

var (
	// AccessTokenTTL is the lifetime of access tokens. It matches the refresh cookie contract and must not drift.
	AccessTokenTTL = Minutes(15)
	// RefreshTokenTTL is the lifetime of refresh tokens and of the refresh cookie.
	RefreshTokenTTL = Days(30)
)

// SupportedAlgorithms lists the HMAC algorithms the codec can be configured with.
var SupportedAlgorithms = []string{"HS256", "HS384", "HS512"}

// CodecConfig is the immutable signing configuration shared by every codec user.
type CodecConfig struct {
	Secret    []byte
	Algorithm string
}

// Claims is the signed payload of every issued token.
type Claims struct {
	Type domain.TokenType `json:"type"`
	jwt.RegisteredClaims
}

// HasExpiry reports whether the token carries an exp claim.
func (c *Claims) HasExpiry() bool {
	return c != nil && c.ExpiresAt != nil
}

// Expiry returns the exp claim or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if !c.HasExpiry() {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// IssuedToken is a freshly minted token together with its identifying claims.
type IssuedToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// TokenCodec mints and verifies HMAC signed tokens.
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
	now    func() time.Time
}

// CodecOption customises a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec validates cfg and returns a codec bound to it.
func NewTokenCodec(cfg CodecConfig, opts ...CodecOption) (*TokenCodec, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("%w: jwt secret is required", domain.ErrConfiguration)
	}

	alg := strings.ToUpper(strings.TrimSpace(cfg.Algorithm))
	if alg == "" {
		alg = "HS256"
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported jwt algorithm %q", domain.ErrConfiguration, cfg.Algorithm)
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	codec := &TokenCodec{
		secret: secret,
		method: method,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(codec)
	}
	return codec, nil
}

// Algorithm returns the configured signing algorithm.
func (c *TokenCodec) Algorithm() string {
	return c.method.Alg()
}

// Mint signs a token for subject with the given type and lifetime.
func (c *TokenCodec) Mint(subject string, tokenType domain.TokenType, ttl TTL) (string, error) {
	issued, err := c.Issue(subject, tokenType, ttl)
	if err != nil {
		return "", err
	}
	return issued.Token, nil
}

// Issue is Mint that also reports the token identifier and expiry.
func (c *TokenCodec) Issue(subject string, tokenType domain.TokenType, ttl TTL) (IssuedToken, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return IssuedToken{}, fmt.Errorf("%w: token subject is required", domain.ErrConfiguration)
	}
	if !tokenType.Valid() {
		return IssuedToken{}, fmt.Errorf("%w: unknown token type %q", domain.ErrConfiguration, tokenType)
	}
	if ttl.Duration() <= 0 {
		return IssuedToken{}, fmt.Errorf("%w: token lifetime in minutes or days is required", domain.ErrConfiguration)
	}

	now := c.now().UTC()
	expiresAt := now.Add(ttl.Duration())
	jti := uuid.NewString()

	claims := &Claims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("jwt: sign token: %w", err)
	}

	// exp is serialized in whole seconds; report the expiry the token actually carries.
	return IssuedToken{Token: signed, JTI: jti, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks structure, signature and expiry of token and returns its claims.
// Expired tokens yield domain.ErrExpiredToken; every other failure yields domain.ErrInvalidToken.
func (c *TokenCodec) Verify(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: empty token", domain.ErrInvalidToken)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithStrictDecoding(),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", domain.ErrExpiredToken, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", domain.ErrInvalidToken)
	}
	if !claims.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown token type %q", domain.ErrInvalidToken, claims.Type)
	}

	return claims, nil
}
