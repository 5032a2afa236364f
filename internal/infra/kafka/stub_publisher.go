package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/auth-service/internal/core/domain"
	"github.com/arklim/auth-service/internal/core/port"
	"github.com/arklim/auth-service/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Used when Kafka is disabled.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a logging event publisher.
func NewStubPublisher(log *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: log}
}

func (p *StubPublisher) logEvent(ctx context.Context, eventType, userID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	logger.WithContext(ctx, p.logger).Info("stub event published",
		append([]zap.Field{
			zap.String("event_type", eventType),
			zap.String("user_id", userID),
			zap.Time("timestamp", at.UTC()),
		}, fields...)...,
	)
}

// PublishUserRegistered logs auth.user.registered events.
func (p *StubPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	p.logEvent(ctx, EventUserRegistered, event.UserID, event.RegisteredAt,
		zap.String("email", logger.MaskEmail(event.Email)),
	)
	return nil
}

// PublishSessionLoggedOut logs auth.session.logged_out events.
func (p *StubPublisher) PublishSessionLoggedOut(ctx context.Context, event domain.SessionLoggedOutEvent) error {
	p.logEvent(ctx, EventSessionLoggedOut, event.UserID, event.LoggedOut,
		zap.String("access_jti", event.AccessJTI),
		zap.String("refresh_jti", event.RefreshJTI),
	)
	return nil
}

// PublishUserDeleted logs auth.user.deleted events.
func (p *StubPublisher) PublishUserDeleted(ctx context.Context, event domain.UserDeletedEvent) error {
	p.logEvent(ctx, EventUserDeleted, event.UserID, event.DeletedAt)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
