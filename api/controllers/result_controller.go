package controllers

import (
	"clusterhub-service/service/analysis"
	"clusterhub-service/service/store"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const (
	defaultResultListLimit = 50
	maxResultListLimit     = 500
)

// ResultController 聚类结果控制器
type ResultController struct {
	orchestrator *analysis.Orchestrator
}

// NewResultController 创建聚类结果控制器实例
func NewResultController(orchestrator *analysis.Orchestrator) *ResultController {
	return &ResultController{orchestrator: orchestrator}
}

// ListResults 获取结果列表
// @Summary 获取结果列表
// @Description 按数据集和算法筛选聚类结果，按创建时间倒序
// @Tags 聚类结果
// @Produce json
// @Param dataset_id query string false "数据集ID"
// @Param algorithm query string false "算法名称"
// @Param limit query int false "返回条数" default(50)
// @Success 200 {object} APIResponse{data=[]models.Result}
// @Failure 500 {object} APIResponse
// @Router /results [get]
func (c *ResultController) ListResults(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	results, err := c.orchestrator.ListResults(r.Context(), store.ResultFilter{
		DatasetID: query.Get("dataset_id"),
		Algorithm: query.Get("algorithm"),
		Limit:     parseLimit(r, defaultResultListLimit, maxResultListLimit),
	})
	if err != nil {
		writeResponse(w, r, InternalErrorResponse("获取结果列表失败", err))
		return
	}
	writeResponse(w, r, SuccessResponse("获取结果列表成功", results))
}

// GetResult 获取结果详情
// @Summary 获取结果详情
// @Description 获取簇分配、有效性指标或估计曲线
// @Tags 聚类结果
// @Produce json
// @Param id path string true "结果ID"
// @Success 200 {object} APIResponse{data=models.Result}
// @Failure 404 {object} APIResponse
// @Router /results/{id} [get]
func (c *ResultController) GetResult(w http.ResponseWriter, r *http.Request) {
	result, err := c.orchestrator.GetResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeResponse(w, r, lookupResponse("获取结果失败", err))
		return
	}
	writeResponse(w, r, SuccessResponse("获取结果成功", result))
}

// DeleteResult 删除结果
// @Summary 删除结果
// @Description 删除聚类结果，重复删除同样返回成功
// @Tags 聚类结果
// @Produce json
// @Param id path string true "结果ID"
// @Success 200 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /results/{id} [delete]
func (c *ResultController) DeleteResult(w http.ResponseWriter, r *http.Request) {
	if err := c.orchestrator.DeleteResult(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeResponse(w, r, InternalErrorResponse("删除结果失败", err))
		return
	}
	writeResponse(w, r, SuccessResponse("删除结果成功", nil))
}
