package distributed_lock

import (
	"clusterhub-service/service/config"
	"context"
	"errors"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLock_TryLockAndUnlock(t *testing.T) {
	lock := NewLocalLock()
	ctx := context.Background()

	ok, err := lock.TryLock(ctx, "run-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.TryLock(ctx, "run-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "重复获取应失败")

	locked, _ := lock.IsLocked(ctx, "run-1")
	assert.True(t, locked)

	require.NoError(t, lock.Unlock(ctx, "run-1"))
	ok, _ = lock.TryLock(ctx, "run-1", time.Minute)
	assert.True(t, ok)
}

func TestLocalLock_Expiry(t *testing.T) {
	lock := NewLocalLock()
	now := time.Now()
	lock.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := lock.TryLock(ctx, "k", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	assert.ErrorIs(t, lock.Refresh(ctx, "k", time.Second), ErrLockLost)
	locked, _ := lock.IsLocked(ctx, "k")
	assert.False(t, locked)

	ok, _ = lock.TryLock(ctx, "k", time.Second)
	assert.True(t, ok, "过期的锁可以被重新获取")
	assert.NoError(t, lock.Refresh(ctx, "k", time.Minute))
}

func TestLockExecutor_RunsOnceAndReleases(t *testing.T) {
	lock := NewLocalLock()
	executor := NewLockExecutor(lock)
	ctx := context.Background()

	var calls int32
	err := executor.ExecuteWithLock(ctx, "job", time.Minute, func() error {
		atomic.AddInt32(&calls, 1)
		inner := executor.ExecuteWithLock(ctx, "job", time.Minute, func() error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockHeld)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	locked, _ := lock.IsLocked(ctx, "job")
	assert.False(t, locked, "执行结束后应释放锁")
}

func TestLockExecutor_PropagatesError(t *testing.T) {
	executor := NewLockExecutor(NewLocalLock())
	boom := errors.New("boom")

	err := executor.ExecuteWithLockAndRefresh(context.Background(), "job", time.Minute, 10*time.Millisecond, func() error {
		time.Sleep(30 * time.Millisecond)
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestRedisLock(t *testing.T) {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		t.Skip("未设置 REDIS_HOST，跳过 Redis 锁测试")
	}
	port := 6379
	if p, err := strconv.Atoi(os.Getenv("REDIS_PORT")); err == nil {
		port = p
	}

	lock, err := NewRedisLock(config.RedisConfig{Host: host, Port: port, Password: os.Getenv("REDIS_PASSWORD")})
	require.NoError(t, err)
	defer lock.Close()

	ctx := context.Background()
	key := "test-" + strconv.FormatInt(time.Now().UnixNano(), 10)

	ok, err := lock.TryLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.TryLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Refresh(ctx, key, 10*time.Second))
	require.NoError(t, lock.Unlock(ctx, key))

	locked, err := lock.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.False(t, locked)
}
