package distributed_lock

import (
	"context"
	"errors"
	"time"
)

// DistributedLock 分布式锁接口，Unlock/Refresh 只应由成功获取锁的一方调用
type DistributedLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Refresh(ctx context.Context, key string, ttl time.Duration) error
	IsLocked(ctx context.Context, key string) (bool, error)
}

// ErrLockHeld 锁已被其他持有者占用
var ErrLockHeld = errors.New("锁已被占用")

// ErrLockLost 续期时发现锁已过期或被他人持有
var ErrLockLost = errors.New("锁已丢失")
