package rate_limiter

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// LocalRateLimiter 进程内固定窗口限流器，未配置Redis时使用
type LocalRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewLocalRateLimiter 创建进程内限流器
func NewLocalRateLimiter() *LocalRateLimiter {
	return &LocalRateLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow 与 RedisRateLimiter 语义一致，先检查全部规则再计数
func (l *LocalRateLimiter) Allow(ctx context.Context, rules []Rule) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}

	for _, rule := range rules {
		if w := l.window(rule, now); w.count >= rule.MaxRequests {
			return toResult(rule, w, false), nil
		}
	}
	result := unlimited()
	for _, rule := range rules {
		w := l.window(rule, now)
		w.count++
		result = toResult(rule, w, true)
	}
	return result, nil
}

func (l *LocalRateLimiter) window(rule Rule, now time.Time) *window {
	key := rule.key("", now)
	w, ok := l.windows[key]
	if !ok {
		size := rule.windowSeconds()
		w = &window{resetAt: time.Unix((now.Unix()/size+1)*size, 0)}
		l.windows[key] = w
	}
	return w
}

func toResult(rule Rule, w *window, allowed bool) *Result {
	remaining := rule.MaxRequests - w.count
	if remaining < 0 {
		remaining = 0
	}
	return &Result{
		Allowed:   allowed,
		Limit:     rule.MaxRequests,
		Remaining: remaining,
		ResetAt:   w.resetAt.Unix(),
		Scope:     rule.Scope,
	}
}

// Close 无需释放资源
func (l *LocalRateLimiter) Close() error { return nil }
