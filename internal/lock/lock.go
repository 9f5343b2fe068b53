// Package lock provides a Redis-backed run lock that keeps two processes
// sharing a database from running the same restaurant at once.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/config"
)

const (
	keyPrefix      = "menu:run:"
	defaultTTL     = 15 * time.Minute
	releaseTimeout = 5 * time.Second
)

// Locker obtains short-lived exclusive locks keyed by place id.
type Locker struct {
	rdb    *redis.Client
	client *redislock.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg config.RedisConfig) (*Locker, error) {
	if cfg.Addr == "" {
		return nil, eris.New("lock: redis addr is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "lock: ping redis %s", cfg.Addr)
	}
	return NewFromClient(rdb, time.Duration(cfg.LockTTLSecs)*time.Second), nil
}

// NewFromClient wraps an existing client. A non-positive ttl uses the default.
func NewFromClient(rdb *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Locker{rdb: rdb, client: redislock.New(rdb), ttl: ttl}
}

// Key returns the Redis key guarding a place id.
func Key(placeID string) string {
	return keyPrefix + placeID
}

// TryLock attempts to take the lock for placeID without waiting. ok is false
// when another holder has it. The returned unlock is safe to call once.
func (l *Locker) TryLock(ctx context.Context, placeID string) (unlock func(), ok bool, err error) {
	lk, err := l.client.Obtain(ctx, Key(placeID), l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "lock: obtain %s", placeID)
	}

	unlock = func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := lk.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			zap.L().Warn("lock: release failed", zap.String("place_id", placeID), zap.Error(err))
		}
	}
	return unlock, true, nil
}

// Close closes the Redis connection.
func (l *Locker) Close() error {
	return l.rdb.Close()
}
