/*
 * @module service/distributed_lock/redis_lock
 * @description Redis分布式锁实现，用于多实例部署下同一分析请求的执行防重
 * @architecture 工具层 - 提供分布式锁能力
 * @documentReference DESIGN.md
 * @stateFlow SET NX PX 获取 -> 执行分析并定期续期 -> 比对令牌后释放/自动过期
 * @rules 每次获取生成独立令牌；只有持有令牌者可以释放或续期
 * @dependencies github.com/go-redis/redis/v8, github.com/google/uuid
 * @refs service/init.go, service/analysis/orchestrator.go
 */

package distributed_lock

import (
	"clusterhub-service/service/config"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// DefaultKeyPrefix 分析执行锁的键前缀
const DefaultKeyPrefix = "clusterhub:run_lock:"

var (
	// 令牌一致时删除
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	// 令牌一致时按毫秒续期
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisLock Redis分布式锁
type RedisLock struct {
	client *redis.Client
	prefix string
	owner  string // 主机名:进程号，写入令牌便于排查

	mu     sync.Mutex
	tokens map[string]string // 键 -> 本进程持有的令牌
}

// NewRedisLock 连接Redis并创建分布式锁
func NewRedisLock(cfg config.RedisConfig) (*RedisLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis连接失败: %w", err)
	}

	hostname, _ := os.Hostname()
	lock := &RedisLock{
		client: client,
		prefix: DefaultKeyPrefix,
		owner:  fmt.Sprintf("%s:%d", hostname, os.Getpid()),
		tokens: make(map[string]string),
	}
	slog.Info("Redis分布式锁初始化成功", "owner", lock.owner, "redis_addr", cfg.Addr())
	return lock, nil
}

// TryLock 尝试获取锁，键已存在时返回 false
func (r *RedisLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := r.owner + ":" + uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("获取锁失败: %w", err)
	}
	if !ok {
		return false, nil
	}

	r.mu.Lock()
	r.tokens[key] = token
	r.mu.Unlock()
	slog.Debug("分布式锁: 获取成功", "key", key, "ttl", ttl)
	return true, nil
}

// Unlock 释放本进程持有的锁；未持有时直接返回
func (r *RedisLock) Unlock(ctx context.Context, key string) error {
	r.mu.Lock()
	token, ok := r.tokens[key]
	delete(r.tokens, key)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	released, err := releaseScript.Run(ctx, r.client, []string{r.prefix + key}, token).Int()
	if err != nil {
		return fmt.Errorf("释放锁失败: %w", err)
	}
	if released == 0 {
		slog.Warn("分布式锁: 释放时锁已过期或被他人持有", "key", key)
	}
	return nil
}

// Refresh 续期本进程持有的锁
func (r *RedisLock) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	r.mu.Lock()
	token, ok := r.tokens[key]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockLost, key)
	}

	extended, err := extendScript.Run(ctx, r.client, []string{r.prefix + key}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("刷新锁失败: %w", err)
	}
	if extended == 0 {
		return fmt.Errorf("%w: %s", ErrLockLost, key)
	}
	return nil
}

// IsLocked 检查锁是否被任意持有者持有
func (r *RedisLock) IsLocked(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("检查锁状态失败: %w", err)
	}
	return n > 0, nil
}

// Close 关闭Redis客户端
func (r *RedisLock) Close() error {
	return r.client.Close()
}
