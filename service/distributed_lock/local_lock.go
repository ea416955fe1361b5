package distributed_lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LocalLock 进程内锁实现，单实例部署或未配置 Redis 时使用
type LocalLock struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewLocalLock 创建进程内锁
func NewLocalLock() *LocalLock {
	return &LocalLock{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// TryLock 尝试获取锁，已过期的锁视为空闲
func (l *LocalLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiry, ok := l.expires[key]; ok && now.Before(expiry) {
		return false, nil
	}
	l.expires[key] = now.Add(ttl)
	return true, nil
}

// Unlock 释放锁
func (l *LocalLock) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.expires, key)
	return nil
}

// Refresh 刷新锁的过期时间
func (l *LocalLock) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiry, ok := l.expires[key]; !ok || !now.Before(expiry) {
		return fmt.Errorf("%w: %s", ErrLockLost, key)
	}
	l.expires[key] = now.Add(ttl)
	return nil
}

// IsLocked 检查锁是否存在
func (l *LocalLock) IsLocked(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	expiry, ok := l.expires[key]
	return ok && l.now().Before(expiry), nil
}
