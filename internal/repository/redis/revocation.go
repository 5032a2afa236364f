package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/auth-service/internal/core/port"
)

const (
	defaultRevocationPrefix = "auth:denylist"
	revokedMarker           = "revoked"
)

type denylistCmds interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *red.StatusCmd
	Exists(ctx context.Context, keys ...string) *red.IntCmd
}

// RevocationRepository stores denylist entries in Redis with a per-key TTL.
type RevocationRepository struct {
	client red.UniversalClient
	prefix string
}

// NewRevocationRepository wires a Redis client into a revocation repository.
func NewRevocationRepository(client red.UniversalClient, keyPrefix string) *RevocationRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRevocationPrefix
	}

	return &RevocationRepository{client: client, prefix: prefix}
}

// SetWithTTL writes the revoked marker under key, overwriting any previous entry.
func (r *RevocationRepository) SetWithTTL(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	fullKey := r.key(key)
	if fullKey == "" {
		return errors.New("key must not be empty")
	}

	return r.withConn(func(conn denylistCmds) error {
		if err := conn.Set(ctx, fullKey, revokedMarker, ttl).Err(); err != nil {
			return fmt.Errorf("redis set denylist entry: %w", err)
		}
		return nil
	})
}

// Exists reports whether an unexpired entry is stored under key.
func (r *RevocationRepository) Exists(ctx context.Context, key string) (bool, error) {
	fullKey := r.key(key)
	if fullKey == "" {
		return false, errors.New("key must not be empty")
	}

	var found bool
	err := r.withConn(func(conn denylistCmds) error {
		n, err := conn.Exists(ctx, fullKey).Result()
		if err != nil {
			return fmt.Errorf("redis exists denylist entry: %w", err)
		}
		found = n > 0
		return nil
	})
	return found, err
}

// withConn runs fn on a dedicated connection taken from the pool and always
// hands it back, including when fn fails. Cluster and ring clients have no
// single-connection API and are used directly.
func (r *RevocationRepository) withConn(fn func(conn denylistCmds) error) error {
	client, ok := r.client.(*red.Client)
	if !ok {
		return fn(r.client)
	}

	conn := client.Conn()
	defer conn.Close()

	return fn(conn)
}

func (r *RevocationRepository) key(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.prefix, trimmed)
}

var _ port.RevocationStore = (*RevocationRepository)(nil)
