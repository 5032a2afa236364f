package port

import (
	"context"
	"time"
)

// RevocationStore persists denylist entries that expire on their own.
type RevocationStore interface {
	SetWithTTL(ctx context.Context, key string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}
