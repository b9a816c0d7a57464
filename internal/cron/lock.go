package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 25 * time.Hour

// Lock coordinates exclusive cron cycles across worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	AcquireLock(ctx context.Context, scope, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, scope, token string) (bool, error)
}

// RedisLock holds a single named redis lock. The TTL outlives one interval so a crashed
// holder frees the slot by the next cycle.
type RedisLock struct {
	store lockStore
	scope string
	ttl   time.Duration

	mu    sync.Mutex
	token string
}

func NewRedisLock(store lockStore, scope string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if scope == "" {
		return nil, errors.New("lock scope is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, scope: scope, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.store.AcquireLock(ctx, l.scope, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.scope, err)
	}
	if ok {
		l.mu.Lock()
		l.token = token
		l.mu.Unlock()
	}
	return ok, nil
}

// Release is a no-op when this instance does not hold the lock.
func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()
	if token == "" {
		return nil
	}
	if _, err := l.store.ReleaseLock(ctx, l.scope, token); err != nil {
		return fmt.Errorf("release %s: %w", l.scope, err)
	}
	return nil
}
