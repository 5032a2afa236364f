package port

import (
	"context"

	"github.com/arklim/auth-service/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishSessionLoggedOut(ctx context.Context, event domain.SessionLoggedOutEvent) error
	PublishUserDeleted(ctx context.Context, event domain.UserDeletedEvent) error
}
