/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @documentReference DESIGN.md
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs api/controllers
 */

package api

import (
	"clusterhub-service/api/controllers"
	"clusterhub-service/service"
	"clusterhub-service/service/analysis"
	"clusterhub-service/service/catalog"
	"clusterhub-service/service/rate_limiter"
	"clusterhub-service/service/registry"
	"clusterhub-service/service/store"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"gorm.io/gorm"
)

// Dependencies 路由依赖的服务实例
type Dependencies struct {
	DB           *gorm.DB
	Catalog      *catalog.Service
	Registry     *registry.Registry
	Results      *store.ResultStore
	Logs         *store.ExecutionLogStore
	Orchestrator *analysis.Orchestrator

	// 提交限流，为空时不限流
	SubmitLimiter    rate_limiter.Limiter
	SubmitRateLimit  int
	SubmitRateWindow time.Duration
}

// InitRoute 初始化所有API路由，使用 service 包中已初始化的全局服务
func InitRoute(r *chi.Mux) {
	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	Register(r, Dependencies{
		DB:               service.DB,
		Catalog:          service.GlobalCatalogService,
		Registry:         service.GlobalRegistry,
		Results:          service.GlobalResultStore,
		Logs:             service.GlobalExecutionLogStore,
		Orchestrator:     service.GlobalOrchestrator,
		SubmitLimiter:    service.GlobalSubmitLimiter,
		SubmitRateLimit:  service.Config.Analysis.SubmitRateLimit,
		SubmitRateWindow: service.Config.Analysis.SubmitRateWindow,
	})
}

// Register 在路由器上挂载业务接口
func Register(r chi.Router, deps Dependencies) {
	// 健康检查
	healthController := controllers.NewHealthController(deps.DB)
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// 仪表盘
	dashboardController := controllers.NewDashboardController(deps.Catalog, deps.Results, deps.Logs, deps.Orchestrator)
	r.Get("/dashboard", dashboardController.GetSummary)

	// 数据集目录
	r.Route("/datasets", func(r chi.Router) {
		datasetController := controllers.NewDatasetController(deps.Catalog)
		r.Get("/", datasetController.ListDatasets)
		r.Post("/", datasetController.CreateDataset)
		r.Post("/upload", datasetController.UploadDataset)
		r.Get("/{id}", datasetController.GetDataset)
		r.Delete("/{id}", datasetController.DeleteDataset)
	})

	// 元数据
	r.Route("/meta", func(r chi.Router) {
		metaController := controllers.NewMetaController(deps.Registry)
		r.Get("/algorithms", metaController.GetAlgorithms)
		r.Get("/algorithms/{name}", metaController.GetAlgorithm)
		r.Get("/estimators", metaController.GetEstimators)
		r.Get("/linkage-methods", metaController.GetLinkageMethods)
	})

	// 聚类运行
	r.Route("/runs", func(r chi.Router) {
		analysisController := controllers.NewAnalysisController(deps.Orchestrator)
		if deps.SubmitLimiter != nil {
			r.With(rate_limiter.Middleware(deps.SubmitLimiter, deps.SubmitRateLimit, deps.SubmitRateWindow)).Post("/", analysisController.SubmitRun)
		} else {
			r.Post("/", analysisController.SubmitRun)
		}
		r.Get("/", analysisController.ListRuns)
		r.Get("/{id}", analysisController.GetRun)
	})

	// 聚类结果
	r.Route("/results", func(r chi.Router) {
		resultController := controllers.NewResultController(deps.Orchestrator)
		r.Get("/", resultController.ListResults)
		r.Get("/{id}", resultController.GetResult)
		r.Delete("/{id}", resultController.DeleteResult)
	})
}
