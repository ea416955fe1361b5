/*
 * @module service/rate_limiter/redis_limiter
 * @description 运行提交限流：基于Redis的固定窗口计数，多实例共享同一计数
 * @architecture 工具层 - 提供分布式限流能力
 * @documentReference DESIGN.md
 * @stateFlow 检查限流规则 -> Redis计数 -> 判断是否超限
 * @rules 使用Lua脚本保证 GET/INCR/EXPIRE 原子执行；任一规则超限即拒绝
 * @dependencies github.com/go-redis/redis/v8
 * @refs api/routes.go, service/init.go
 */

package rate_limiter

import (
	"clusterhub-service/service/config"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// 限流范围
const (
	ScopeGlobal = "global"
	ScopeClient = "client"
)

// Result 限流检查结果
type Result struct {
	Allowed   bool   `json:"allowed"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetAt   int64  `json:"reset_at"` // Unix时间戳
	Scope     string `json:"scope"`
}

// Rule 限流规则
type Rule struct {
	Scope       string
	TargetID    string // 全局规则为空
	Window      time.Duration
	MaxRequests int
}

// Limiter 限流器
type Limiter interface {
	Allow(ctx context.Context, rules []Rule) (*Result, error)
	Close() error
}

// windowSeconds 窗口长度，最少1秒
func (r Rule) windowSeconds() int64 {
	sec := int64(r.Window / time.Second)
	if sec < 1 {
		sec = 1
	}
	return sec
}

// key 构造限流键，窗口编号随时间推进
func (r Rule) key(prefix string, now time.Time) string {
	window := now.Unix() / r.windowSeconds()
	if r.Scope == ScopeGlobal {
		return fmt.Sprintf("%s:%s:%d", prefix, r.Scope, window)
	}
	return fmt.Sprintf("%s:%s:%s:%d", prefix, r.Scope, r.TargetID, window)
}

// allowScript 未超限时计数加一并在首次计数时设置过期
const allowScript = `
local key = KEYS[1]
local max_requests = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local current = redis.call('GET', key)
if current == false then
	current = 0
else
	current = tonumber(current)
end

if current >= max_requests then
	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end
	return {0, current, ttl}
end

local new_count = redis.call('INCR', key)
if new_count == 1 then
	redis.call('EXPIRE', key, window)
end

local ttl = redis.call('TTL', key)
if ttl < 0 then
	ttl = window
end
return {1, new_count, ttl}
`

// RedisRateLimiter Redis限流器
type RedisRateLimiter struct {
	client    *redis.Client
	script    *redis.Script
	keyPrefix string
}

// NewRedisRateLimiter 创建Redis限流器
func NewRedisRateLimiter(cfg config.RedisConfig) (*RedisRateLimiter, error) {
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
		return nil, fmt.Errorf("redis连接失败: %w", err)
	}

	slog.Info("Redis限流器初始化成功", "redis_addr", cfg.Addr())

	return &RedisRateLimiter{
		client:    client,
		script:    redis.NewScript(allowScript),
		keyPrefix: "clusterhub:rate_limit",
	}, nil
}

// Allow 依次检查规则，任一规则超限即返回拒绝结果；全部通过时返回最后一条规则的余量
func (r *RedisRateLimiter) Allow(ctx context.Context, rules []Rule) (*Result, error) {
	result := unlimited()
	for _, rule := range rules {
		res, err := r.check(ctx, rule)
		if err != nil {
			return nil, err
		}
		if !res.Allowed {
			return res, nil
		}
		result = res
	}
	return result, nil
}

func (r *RedisRateLimiter) check(ctx context.Context, rule Rule) (*Result, error) {
	now := time.Now()
	window := rule.windowSeconds()
	values, err := r.script.Run(ctx, r.client, []string{rule.key(r.keyPrefix, now)}, rule.MaxRequests, window).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("限流检查失败: %w", err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("限流脚本返回值异常: %v", values)
	}

	remaining := rule.MaxRequests - int(values[1])
	if remaining < 0 {
		remaining = 0
	}
	return &Result{
		Allowed:   values[0] == 1,
		Limit:     rule.MaxRequests,
		Remaining: remaining,
		ResetAt:   now.Add(time.Duration(values[2]) * time.Second).Unix(),
		Scope:     rule.Scope,
	}, nil
}

// Close 关闭Redis客户端
func (r *RedisRateLimiter) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func unlimited() *Result {
	return &Result{Allowed: true, Limit: -1, Remaining: -1, Scope: "none"}
}
