package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/menu-cli/internal/config"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "menu:run:ChIJ123", Key("ChIJ123"))
}

func TestNew_RequiresAddr(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{})
	assert.Error(t, err)
}

func TestNew_UnreachableRedis(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := New(ctx, config.RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestNewFromClient_DefaultTTL(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()

	l := NewFromClient(rdb, 0)
	assert.Equal(t, defaultTTL, l.ttl)

	l = NewFromClient(rdb, time.Minute)
	assert.Equal(t, time.Minute, l.ttl)
}

// newRedisLocker connects to MENU_TEST_REDIS_ADDR or skips.
func newRedisLocker(t *testing.T) *Locker {
	t.Helper()
	addr := os.Getenv("MENU_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MENU_TEST_REDIS_ADDR not set")
	}
	l, err := New(context.Background(), config.RedisConfig{Addr: addr, LockTTLSecs: 5})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestTryLock_Exclusive(t *testing.T) {
	l := newRedisLocker(t)
	ctx := context.Background()
	placeID := "lock-test-" + time.Now().Format("150405.000000")

	unlock, ok, err := l.TryLock(ctx, placeID)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, placeID)
	require.NoError(t, err)
	assert.False(t, ok)

	unlock()

	unlock2, ok, err := l.TryLock(ctx, placeID)
	require.NoError(t, err)
	assert.True(t, ok)
	unlock2()
}
