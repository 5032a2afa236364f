package port

import (
	"context"

	"github.com/arklim/auth-service/internal/core/domain"
)

// UserRepository is the credential store. Emails are stored normalized and
// must be unique; Create reports repository.ErrDuplicate on a collision.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	Delete(ctx context.Context, id string) error
}
