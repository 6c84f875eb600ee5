package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// Both scripts act only when the key still holds the caller's token.
var (
	releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0`)
)

// LockManager implements domain.LockManager with SET NX and token-checked
// release.
type LockManager struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewLockManager creates a LockManager.
func NewLockManager(c *Client, logger *slog.Logger) *LockManager {
	return &LockManager{
		rdb:    c.rdb,
		logger: logger.With(slog.String("component", "lock_manager")),
	}
}

func lockKey(key string) string { return "lock:" + key }

// acquire takes key for ttl under a fresh token. It returns
// domain.ErrLockHeld when someone else holds it.
func (lm *LockManager) acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := lm.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", fmt.Errorf("redis: lock %s: %w", key, domain.ErrLockHeld)
	}
	return token, nil
}

// Hold acquires key and keeps extending it every ttl/3 until ctx ends or the
// returned release is called. lost is closed if the lock could not be
// extended, meaning another process may now own the key.
func (lm *LockManager) Hold(ctx context.Context, key string, ttl time.Duration) (release func(), lost <-chan struct{}, err error) {
	token, err := lm.acquire(ctx, key, ttl)
	if err != nil {
		return nil, nil, err
	}

	stop := make(chan struct{})
	lostCh := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		lm.keepAlive(ctx, key, token, ttl, stop, lostCh)
	}()

	var once sync.Once
	release = func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			lm.release(key, token)
		})
	}
	return release, lostCh, nil
}

func (lm *LockManager) keepAlive(ctx context.Context, key, token string, ttl time.Duration, stop <-chan struct{}, lost chan<- struct{}) {
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := extendScript.Run(ctx, lm.rdb, []string{lockKey(key)}, token, ttl.Milliseconds()).Int()
			if err != nil || n == 0 {
				msg := "lock taken over"
				if err != nil {
					msg = err.Error()
				}
				lm.logger.Error("lock lost", slog.String("key", key), slog.String("error", msg))
				close(lost)
				return
			}
		}
	}
}

// release runs on a fresh context so it succeeds after the caller's context
// has been cancelled.
func (lm *LockManager) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, lm.rdb, []string{lockKey(key)}, token).Err(); err != nil {
		lm.logger.Warn("lock release failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

var _ domain.LockManager = (*LockManager)(nil)
