package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/auth-service/internal/core/domain"
	"github.com/arklim/auth-service/internal/core/port"
	"github.com/arklim/auth-service/internal/infra/logger"
	"github.com/arklim/auth-service/internal/infra/security"
)

// DenylistService makes individual tokens unusable until their natural expiry.
// Store failures are reported as domain.ErrStorageUnavailable; callers must
// treat them as a denial.
type DenylistService struct {
	store   port.RevocationStore
	metrics port.DenylistMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// DenylistOption customises a DenylistService.
type DenylistOption func(*DenylistService)

// WithDenylistClock overrides the time source used for TTL math.
func WithDenylistClock(now func() time.Time) DenylistOption {
	return func(s *DenylistService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDenylistMetrics attaches a metrics sink.
func WithDenylistMetrics(metrics port.DenylistMetrics) DenylistOption {
	return func(s *DenylistService) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// NewDenylistService constructs a DenylistService.
func NewDenylistService(store port.RevocationStore, logger *zap.Logger, opts ...DenylistOption) *DenylistService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &DenylistService{
		store:   store,
		metrics: noopDenylistMetrics{},
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Revoke denylists token until expiresAt. Tokens that are already past
// expiry are left alone. Revoking twice overwrites the entry.
func (s *DenylistService) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: token is required", domain.ErrValidation)
	}

	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		s.metrics.RevocationSkipped()
		return nil
	}
	// Redis expiry has millisecond resolution; a sub-millisecond TTL would be rejected.
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	if err := s.store.SetWithTTL(ctx, security.HashToken(token), ttl); err != nil {
		s.metrics.StoreError("revoke")
		s.logger.Error("denylist write failed", zap.String("token", logger.MaskToken(token)), zap.Error(err))
		return fmt.Errorf("%w: revoke token: %w", domain.ErrStorageUnavailable, err)
	}

	s.metrics.TokenRevoked()
	return nil
}

// IsRevoked reports whether token is currently denylisted.
func (s *DenylistService) IsRevoked(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, fmt.Errorf("%w: token is required", domain.ErrValidation)
	}

	revoked, err := s.store.Exists(ctx, security.HashToken(token))
	if err != nil {
		s.metrics.StoreError("lookup")
		s.logger.Error("denylist lookup failed", zap.String("token", logger.MaskToken(token)), zap.Error(err))
		return false, fmt.Errorf("%w: check token: %w", domain.ErrStorageUnavailable, err)
	}
	if revoked {
		s.metrics.RevokedTokenRejected()
	}
	return revoked, nil
}

type noopDenylistMetrics struct{}

func (noopDenylistMetrics) TokenRevoked()         {}
func (noopDenylistMetrics) RevocationSkipped()    {}
func (noopDenylistMetrics) RevokedTokenRejected() {}
func (noopDenylistMetrics) StoreError(string)     {}
