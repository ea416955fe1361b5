/*
 * @module service/housekeeping/reaper
 * @description 超时运行清理：进程崩溃后遗留的 running 执行日志按 TIMEOUT 结束
 * @architecture 分层架构 - 后台任务
 * @documentReference DESIGN.md
 * @stateFlow cron 触发 -> 查询过期 running 日志 -> 跳过本进程仍在执行的运行 -> 写入 failed 终态
 * @rules 只处理开始时间早于 运行超时+宽限期 的日志；终态写入仍然只生效一次；多实例下通过分布式锁只由一个实例执行
 * @dependencies github.com/robfig/cron/v3, service/distributed_lock
 * @refs service/store/store.go, service/analysis/orchestrator.go
 */

package housekeeping

import (
	"clusterhub-service/service/config"
	"clusterhub-service/service/distributed_lock"
	"clusterhub-service/service/meta"
	"clusterhub-service/service/models"
	"clusterhub-service/service/store"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const sweepLockKey = "housekeeping:stale_runs"

// StaleLogStore 清理所需的执行日志操作
type StaleLogStore interface {
	ListStale(ctx context.Context, before time.Time) ([]models.ExecutionLog, error)
	Finish(ctx context.Context, id string, outcome store.Outcome) error
}

// RunTracker 判断运行是否仍由本进程执行
type RunTracker interface {
	IsActive(runID string) bool
}

// StaleRunReaper 超时运行清理器
type StaleRunReaper struct {
	logs    StaleLogStore
	tracker RunTracker
	maxAge  time.Duration
	spec    string
	cron    *cron.Cron
	lock    distributed_lock.DistributedLock
	ctx     context.Context
	cancel  context.CancelFunc
	now     func() time.Time
	wg      sync.WaitGroup
	started bool
}

// NewStaleRunReaper 创建清理器，运行超过 runTimeout+grace 仍为 running 即视为遗留
func NewStaleRunReaper(logs StaleLogStore, tracker RunTracker, runTimeout time.Duration, cfg config.HousekeepingConfig) *StaleRunReaper {
	spec := cfg.Cron
	if spec == "" {
		spec = config.DefaultHousekeepingCron
	}
	grace := cfg.Grace
	if grace <= 0 {
		grace = config.DefaultHousekeepingGrace
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &StaleRunReaper{
		logs:    logs,
		tracker: tracker,
		maxAge:  runTimeout + grace,
		spec:    spec,
		cron:    cron.New(cron.WithSeconds()),
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}
}

// SetDistributedLock 设置分布式锁
func (r *StaleRunReaper) SetDistributedLock(lock distributed_lock.DistributedLock) {
	r.lock = lock
	if lock != nil {
		slog.Info("超时运行清理已启用分布式锁")
	}
}

// Start 按 cron 表达式调度清理，并立即执行一次
func (r *StaleRunReaper) Start() error {
	if r.started {
		return fmt.Errorf("清理器已经启动")
	}
	if _, err := r.cron.AddFunc(r.spec, r.scheduled); err != nil {
		return fmt.Errorf("无效的清理调度表达式 %q: %w", r.spec, err)
	}
	r.cron.Start()
	r.started = true
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.scheduled()
	}()
	slog.Info("超时运行清理器已启动", "cron", r.spec, "max_age", r.maxAge)
	return nil
}

// Stop 停止调度并等待正在执行的清理结束
func (r *StaleRunReaper) Stop() {
	if !r.started {
		return
	}
	r.cancel()
	<-r.cron.Stop().Done()
	r.wg.Wait()
	r.started = false
	slog.Info("超时运行清理器已停止")
}

func (r *StaleRunReaper) scheduled() {
	if r.lock != nil {
		locked, err := r.lock.TryLock(r.ctx, sweepLockKey, r.maxAge)
		if err != nil {
			slog.Error("获取清理锁失败", "error", err)
			return
		}
		if !locked {
			slog.Debug("其他实例正在执行超时运行清理，跳过")
			return
		}
		defer func() {
			if err := r.lock.Unlock(context.WithoutCancel(r.ctx), sweepLockKey); err != nil {
				slog.Error("释放清理锁失败", "error", err)
			}
		}()
	}
	if _, err := r.Sweep(r.ctx); err != nil {
		slog.Error("超时运行清理失败", "error", err)
	}
}

// Sweep 执行一次清理，返回结束的运行数
func (r *StaleRunReaper) Sweep(ctx context.Context) (int, error) {
	now := r.now()
	stale, err := r.logs.ListStale(ctx, now.Add(-r.maxAge))
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, entry := range stale {
		if r.tracker != nil && r.tracker.IsActive(entry.ID) {
			continue
		}
		err := r.logs.Finish(ctx, entry.ID, store.Outcome{
			Status:       meta.RunStatusFailed,
			ErrorCode:    meta.ErrorCodeTimeout,
			ErrorMessage: fmt.Sprintf("运行已被放弃：超过 %s 仍未结束", r.maxAge),
			EndTime:      now,
		})
		if errors.Is(err, store.ErrAlreadyFinished) {
			continue
		}
		if err != nil {
			return reaped, err
		}
		reaped++
		slog.Warn("遗留运行已标记为失败", "run_id", entry.ID, "algorithm", entry.Algorithm, "dataset_id", entry.DatasetID)
	}
	return reaped, nil
}
