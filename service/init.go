/*
 * @module service/init
 * @description 服务初始化模块，负责数据库连接、迁移以及各业务服务的装配与关闭
 * @architecture 分层架构 - 服务层
 * @documentReference DESIGN.md
 * @stateFlow 加载配置 -> 连接数据库 -> 迁移 -> 装配服务 -> 启动工作协程与定时任务
 * @rules 确保所有依赖服务正常启动后才提供API服务；关闭时先停止接收任务再释放连接
 * @dependencies gorm.io/gorm, clusterhub-service/service/*
 * @refs main.go, api/routes.go
 */

package service

import (
	"clusterhub-service/service/analysis"
	"clusterhub-service/service/catalog"
	"clusterhub-service/service/config"
	"clusterhub-service/service/database"
	"clusterhub-service/service/distributed_lock"
	"clusterhub-service/service/housekeeping"
	"clusterhub-service/service/notify"
	"clusterhub-service/service/rate_limiter"
	"clusterhub-service/service/registry"
	"clusterhub-service/service/store"
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"
)

var (
	DB                      *gorm.DB
	Config                  *config.ApplicationConfig
	GlobalCatalogService    *catalog.Service
	GlobalRegistry          *registry.Registry
	GlobalResultStore       *store.ResultStore
	GlobalExecutionLogStore *store.ExecutionLogStore
	GlobalRunLock           distributed_lock.DistributedLock
	GlobalPublisher         notify.Publisher
	GlobalOrchestrator      *analysis.Orchestrator
	GlobalReaper            *housekeeping.StaleRunReaper
	GlobalSubmitLimiter     rate_limiter.Limiter
)

// Init 按配置初始化全部服务
func Init(cfg *config.ApplicationConfig) error {
	Config = cfg

	if err := initDatabase(cfg.Database); err != nil {
		return err
	}
	if err := runMigrations(); err != nil {
		return err
	}
	return initServices(cfg)
}

// initDatabase 初始化数据库连接
func initDatabase(cfg config.DatabaseConfig) error {
	db, err := database.Open(cfg)
	if err != nil {
		return fmt.Errorf("数据库连接失败: %w", err)
	}
	DB = db
	log.Printf("数据库连接成功, driver=%s", cfg.Driver)
	return nil
}

// runMigrations 运行数据库迁移
func runMigrations() error {
	if err := database.AutoMigrate(DB); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	log.Println("数据库表结构迁移完成")
	return nil
}

// initServices 初始化服务
func initServices(cfg *config.ApplicationConfig) error {
	GlobalCatalogService = catalog.NewService(DB)
	GlobalRegistry = registry.Default()
	GlobalResultStore = store.NewResultStore(DB)
	GlobalExecutionLogStore = store.NewExecutionLogStore(DB)

	// 运行锁：配置了Redis时跨实例去重，否则使用进程内锁
	GlobalRunLock = distributed_lock.NewLocalLock()
	if cfg.Redis.RedisEnabled() {
		redisLock, err := distributed_lock.NewRedisLock(cfg.Redis)
		if err != nil {
			log.Printf("Redis分布式锁初始化失败，使用进程内锁: %v", err)
		} else {
			GlobalRunLock = redisLock
		}
	}

	// 提交限流：未配置时不启用
	if cfg.Analysis.SubmitRateLimit > 0 {
		GlobalSubmitLimiter = newSubmitLimiter(cfg.Redis)
		log.Printf("运行提交限流已启用, limit=%d, window=%s", cfg.Analysis.SubmitRateLimit, cfg.Analysis.SubmitRateWindow)
	}

	publisher, err := notify.NewFromConfig(cfg.Events)
	if err != nil {
		return fmt.Errorf("事件发布器初始化失败: %w", err)
	}
	GlobalPublisher = publisher

	GlobalOrchestrator = analysis.NewOrchestrator(
		GlobalCatalogService,
		GlobalRegistry,
		GlobalResultStore,
		GlobalExecutionLogStore,
		GlobalRunLock,
		GlobalPublisher,
		analysis.OptionsFromConfig(cfg.Analysis),
	)
	GlobalOrchestrator.Start()
	log.Printf("聚类任务编排器已启动, workers=%d, queue=%d", cfg.Analysis.Workers, cfg.Analysis.QueueSize)

	GlobalReaper = housekeeping.NewStaleRunReaper(GlobalExecutionLogStore, GlobalOrchestrator, cfg.Analysis.RunTimeout, cfg.Housekeeping)
	GlobalReaper.SetDistributedLock(GlobalRunLock)
	if err := GlobalReaper.Start(); err != nil {
		return fmt.Errorf("启动过期运行清理任务失败: %w", err)
	}
	log.Println("过期运行清理任务已启动")

	return nil
}

func newSubmitLimiter(cfg config.RedisConfig) rate_limiter.Limiter {
	if cfg.RedisEnabled() {
		limiter, err := rate_limiter.NewRedisRateLimiter(cfg)
		if err == nil {
			return limiter
		}
		log.Printf("Redis限流器初始化失败，使用进程内限流: %v", err)
	}
	return rate_limiter.NewLocalRateLimiter()
}

// Shutdown 依次停止清理任务、编排器、事件发布器并关闭连接
func Shutdown(ctx context.Context) error {
	var errs []error

	if GlobalReaper != nil {
		GlobalReaper.Stop()
	}
	if GlobalOrchestrator != nil {
		if err := GlobalOrchestrator.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("停止编排器失败: %w", err))
		}
	}
	if GlobalPublisher != nil {
		if err := GlobalPublisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭事件发布器失败: %w", err))
		}
	}
	if GlobalSubmitLimiter != nil {
		if err := GlobalSubmitLimiter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭限流器失败: %w", err))
		}
	}
	if closer, ok := GlobalRunLock.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭Redis连接失败: %w", err))
		}
	}
	if DB != nil {
		if sqlDB, err := DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("关闭数据库连接失败: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
