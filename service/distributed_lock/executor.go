package distributed_lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// 释放锁的超时时间，使用独立上下文，调用方 ctx 可能已取消
const unlockTimeout = 3 * time.Second

// LockExecutor 在锁保护下执行函数
type LockExecutor struct {
	lock DistributedLock
}

// NewLockExecutor 创建带锁执行器
func NewLockExecutor(lock DistributedLock) *LockExecutor {
	return &LockExecutor{lock: lock}
}

// ExecuteWithLock 获取锁后执行 fn，锁被占用时返回 ErrLockHeld 且不执行 fn
func (e *LockExecutor) ExecuteWithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	return e.execute(ctx, key, ttl, 0, fn)
}

// ExecuteWithLockAndRefresh 同 ExecuteWithLock，执行期间按 refreshInterval 续期
func (e *LockExecutor) ExecuteWithLockAndRefresh(ctx context.Context, key string, ttl, refreshInterval time.Duration, fn func() error) error {
	return e.execute(ctx, key, ttl, refreshInterval, fn)
}

func (e *LockExecutor) execute(ctx context.Context, key string, ttl, refreshInterval time.Duration, fn func() error) error {
	locked, err := e.lock.TryLock(ctx, key, ttl)
	if err != nil {
		return fmt.Errorf("获取锁失败: %w", err)
	}
	if !locked {
		slog.Debug("分布式锁: 锁已被占用，跳过执行", "key", key)
		return fmt.Errorf("%w: %s", ErrLockHeld, key)
	}

	if refreshInterval > 0 {
		stop := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			e.keepAlive(ctx, key, ttl, refreshInterval, stop)
		}()
		defer func() {
			close(stop)
			<-done
		}()
	}

	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
		defer cancel()
		if err := e.lock.Unlock(unlockCtx, key); err != nil {
			slog.Error("分布式锁: 释放锁失败", "key", key, "error", err)
		}
	}()

	return fn()
}

// keepAlive 定期续期直到 stop 关闭或 ctx 取消
func (e *LockExecutor) keepAlive(ctx context.Context, key string, ttl, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.lock.Refresh(ctx, key, ttl); err != nil {
				slog.Error("分布式锁: 续期失败", "key", key, "error", err)
			}
		}
	}
}
