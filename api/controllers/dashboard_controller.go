/*
 * @module api/controllers/dashboard_controller
 * @description 仪表盘控制器，汇总数据集、结果与运行状态统计
 * @architecture MVC架构 - 控制器层
 * @documentReference DESIGN.md
 * @stateFlow 依次读取各统计项后合并返回
 * @rules 任一统计失败即返回500
 * @dependencies github.com/go-chi/render
 * @refs service/catalog, service/store, service/analysis
 */

package controllers

import (
	"clusterhub-service/service/analysis"
	"clusterhub-service/service/catalog"
	"clusterhub-service/service/meta"
	"clusterhub-service/service/models"
	"clusterhub-service/service/store"
	"net/http"
)

// DashboardController 仪表盘控制器
type DashboardController struct {
	catalog      *catalog.Service
	results      *store.ResultStore
	logs         *store.ExecutionLogStore
	orchestrator *analysis.Orchestrator
}

// NewDashboardController 创建仪表盘控制器实例
func NewDashboardController(catalogService *catalog.Service, results *store.ResultStore, logs *store.ExecutionLogStore, orchestrator *analysis.Orchestrator) *DashboardController {
	return &DashboardController{
		catalog:      catalogService,
		results:      results,
		logs:         logs,
		orchestrator: orchestrator,
	}
}

// DashboardSummary 仪表盘汇总
type DashboardSummary struct {
	Datasets     int64                 `json:"datasets"`
	Records      int64                 `json:"records"`
	Attributes   int64                 `json:"attributes"`
	Results      int64                 `json:"results"`
	RunsByStatus map[string]int64      `json:"runs_by_status"`
	RecentRuns   []models.ExecutionLog `json:"recent_runs"`
}

// GetSummary 获取仪表盘汇总
// @Summary 获取仪表盘汇总
// @Description 数据集、记录、结果数量，按状态统计的运行数以及最近运行
// @Tags 仪表盘
// @Produce json
// @Success 200 {object} APIResponse{data=DashboardSummary}
// @Failure 500 {object} APIResponse
// @Router /dashboard [get]
func (c *DashboardController) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := c.catalog.Stats(ctx)
	if err != nil {
		writeResponse(w, r, InternalErrorResponse("获取数据集统计失败", err))
		return
	}
	resultCount, err := c.results.Count(ctx)
	if err != nil {
		writeResponse(w, r, InternalErrorResponse("获取结果统计失败", err))
		return
	}
	byStatus, err := c.logs.CountByStatus(ctx)
	if err != nil {
		writeResponse(w, r, InternalErrorResponse("获取运行统计失败", err))
		return
	}
	recent, err := c.orchestrator.ListRecentRuns(ctx, meta.DashboardRecentRunLimit)
	if err != nil {
		writeResponse(w, r, InternalErrorResponse("获取最近运行失败", err))
		return
	}
	writeResponse(w, r, SuccessResponse("获取仪表盘成功", DashboardSummary{
		Datasets:     stats.Datasets,
		Records:      stats.Records,
		Attributes:   stats.Attributes,
		Results:      resultCount,
		RunsByStatus: byStatus,
		RecentRuns:   recent,
	}))
}
