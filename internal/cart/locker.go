package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const lockRetryInterval = 25 * time.Millisecond

// Locker serializes mutations on a single cart line. The returned unlock func is safe to
// call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// ItemLockKey scopes a lock to one product in one user's cart.
func ItemLockKey(userID, productID uuid.UUID) string {
	return fmt.Sprintf("cart:%s:%s", userID, productID)
}

type lockClient interface {
	AcquireLock(ctx context.Context, scope, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, scope, token string) (bool, error)
}

type redisLocker struct {
	client lockClient
	ttl    time.Duration
	wait   time.Duration
	logg   *logger.Logger
}

// NewRedisLocker builds a Locker on top of redis SET NX locks. ttl bounds how long a crashed
// holder can block a line; wait bounds how long a caller queues before giving up.
func NewRedisLocker(client lockClient, ttl, wait time.Duration, logg *logger.Logger) (Locker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis lock client required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if wait <= 0 {
		wait = 2 * time.Second
	}
	return &redisLocker{client: client, ttl: ttl, wait: wait, logg: logg}, nil
}

func (l *redisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.AcquireLock(ctx, key, token, l.ttl)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire cart lock")
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, busyError(key)
		}

		timer := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, ctx.Err(), "cart lock wait canceled")
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			if _, err := l.client.ReleaseLock(releaseCtx, key, token); err != nil && l.logg != nil {
				l.logg.Error(l.logg.WithField(ctx, "lock_key", key), "release cart lock", err)
			}
		})
	}, nil
}

type localLock struct {
	ch   chan struct{}
	refs int
}

type localLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

// NewLocalLocker returns an in-process keyed mutex for single node deployments and tests.
func NewLocalLocker() Locker {
	return &localLocker{locks: map[string]*localLock{}}
}

func (l *localLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, entry)
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, ctx.Err(), "cart lock wait canceled")
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			l.release(key, entry)
		})
	}, nil
}

func (l *localLocker) release(key string, entry *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}

func busyError(key string) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "cart item is being updated, retry").
		WithDetails(map[string]any{"lockKey": key})
}
