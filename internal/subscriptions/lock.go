package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultReconcileLockTTL = 15 * time.Second

// Lock is a held reconcile lock.
type Lock interface {
	Release(ctx context.Context) error
}

// redisStore defines the operations used by RedisLocker.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	ReconcileLockKey(ownerID string) string
}

// RedisLocker hands out short per-owner locks so concurrent checkout returns
// for the same owner hit the processor once.
type RedisLocker struct {
	client redisStore
	ttl    time.Duration
}

// NewRedisLocker constructs a Redis-backed per-owner locker.
func NewRedisLocker(client redisStore, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for reconcile lock")
	}
	if ttl <= 0 {
		ttl = defaultReconcileLockTTL
	}
	return &RedisLocker{client: client, ttl: ttl}, nil
}

// Acquire tries to take the owner's lock. A false result means another
// request is already reconciling.
func (l *RedisLocker) Acquire(ctx context.Context, ownerID uuid.UUID) (Lock, bool, error) {
	key := l.client.ReconcileLockKey(ownerID.String())
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLock{client: l.client, key: key, token: token}, true, nil
}

type redisLock struct {
	client redisStore
	key    string
	token  string
}

// Release frees the lock only if the token still matches.
func (l *redisLock) Release(ctx context.Context) error {
	if _, err := l.client.DelIfValue(ctx, l.key, l.token); err != nil {
		return fmt.Errorf("release reconcile lock: %w", err)
	}
	return nil
}
