/*
 * @module api/controllers/analysis_controller
 * @description 聚类运行控制器：提交运行、查询运行状态与最近运行列表
 * @architecture MVC架构 - 控制器层
 * @documentReference DESIGN.md
 * @stateFlow 提交 -> queued -> running -> succeeded/failed
 * @rules 提交立即返回运行ID；wait=true 时阻塞直到终态或请求取消
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render, github.com/spf13/cast
 * @refs service/analysis/orchestrator.go
 */

package controllers

import (
	"clusterhub-service/service/analysis"
	"clusterhub-service/service/models"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/spf13/cast"
)

const (
	defaultRunListLimit = 50
	maxRunListLimit     = 500
)

// AnalysisController 聚类运行控制器
type AnalysisController struct {
	orchestrator *analysis.Orchestrator
}

// NewAnalysisController 创建聚类运行控制器实例
func NewAnalysisController(orchestrator *analysis.Orchestrator) *AnalysisController {
	return &AnalysisController{orchestrator: orchestrator}
}

// SubmitRunResponse 提交运行响应
type SubmitRunResponse struct {
	RunID string               `json:"run_id"`
	Run   *models.ExecutionLog `json:"run,omitempty"`
}

// SubmitRun 提交聚类运行
// @Summary 提交聚类运行
// @Description 提交一次聚类或簇数估计运行，默认异步执行，wait=true 时等待运行结束
// @Tags 聚类运行
// @Accept json
// @Produce json
// @Param request body analysis.RunRequest true "运行请求"
// @Param wait query bool false "是否等待运行结束"
// @Success 200 {object} APIResponse{data=SubmitRunResponse}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Failure 503 {object} APIResponse
// @Router /runs [post]
func (c *AnalysisController) SubmitRun(w http.ResponseWriter, r *http.Request) {
	var req analysis.RunRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeResponse(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	runID, err := c.orchestrator.Submit(r.Context(), req)
	if err != nil {
		writeResponse(w, r, RunErrorResponse("提交运行失败", err))
		return
	}

	resp := SubmitRunResponse{RunID: runID}
	if cast.ToBool(r.URL.Query().Get("wait")) {
		run, err := c.orchestrator.Wait(r.Context(), runID)
		if err != nil {
			writeResponse(w, r, RunErrorResponse("等待运行结束失败", err))
			return
		}
		resp.Run = run
	}
	writeResponse(w, r, SuccessResponse("提交运行成功", resp))
}

// GetRun 获取运行状态
// @Summary 获取运行状态
// @Description 获取运行的当前状态，终态包含错误码或结果ID
// @Tags 聚类运行
// @Produce json
// @Param id path string true "运行ID"
// @Success 200 {object} APIResponse{data=models.ExecutionLog}
// @Failure 404 {object} APIResponse
// @Router /runs/{id} [get]
func (c *AnalysisController) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := c.orchestrator.GetRunStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeResponse(w, r, lookupResponse("获取运行状态失败", err))
		return
	}
	writeResponse(w, r, SuccessResponse("获取运行状态成功", run))
}

// ListRuns 获取最近运行列表
// @Summary 获取最近运行列表
// @Description 按时间倒序列出排队中与已记录的运行
// @Tags 聚类运行
// @Produce json
// @Param limit query int false "返回条数" default(50)
// @Success 200 {object} APIResponse{data=[]models.ExecutionLog}
// @Failure 500 {object} APIResponse
// @Router /runs [get]
func (c *AnalysisController) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultRunListLimit, maxRunListLimit)
	runs, err := c.orchestrator.ListRecentRuns(r.Context(), limit)
	if err != nil {
		writeResponse(w, r, InternalErrorResponse("获取运行列表失败", err))
		return
	}
	writeResponse(w, r, SuccessResponse("获取运行列表成功", runs))
}

// parseLimit 解析 limit 查询参数，非法值回退为默认值
func parseLimit(r *http.Request, def, max int) int {
	limit, err := cast.ToIntE(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
