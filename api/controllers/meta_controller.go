/*
 * @module api/controllers/meta_controller
 * @description 元数据控制器，提供算法、估计器与连接方式等前端下拉选项
 * @architecture MVC架构 - 控制器层
 * @documentReference DESIGN.md
 * @stateFlow 无状态，直接读取注册表
 * @rules 参数模式以注册表为准
 * @dependencies github.com/go-chi/chi/v5
 * @refs service/registry, service/meta
 */

package controllers

import (
	"clusterhub-service/service/meta"
	"clusterhub-service/service/registry"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MetaController 元数据控制器
type MetaController struct {
	registry *registry.Registry
}

// NewMetaController 创建元数据控制器实例
func NewMetaController(reg *registry.Registry) *MetaController {
	return &MetaController{registry: reg}
}

// GetAlgorithms 获取聚类算法列表
// @Summary 获取聚类算法列表
// @Description 获取已注册的聚类算法及其参数模式
// @Tags 元数据
// @Produce json
// @Success 200 {object} APIResponse{data=[]registry.Entry}
// @Router /meta/algorithms [get]
func (c *MetaController) GetAlgorithms(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, r, SuccessResponse("获取聚类算法成功", c.registry.List(meta.AlgorithmKindClustering)))
}

// GetEstimators 获取簇数估计器列表
// @Summary 获取簇数估计器列表
// @Description 获取已注册的簇数估计器及其参数模式
// @Tags 元数据
// @Produce json
// @Success 200 {object} APIResponse{data=[]registry.Entry}
// @Router /meta/estimators [get]
func (c *MetaController) GetEstimators(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, r, SuccessResponse("获取簇数估计器成功", c.registry.List(meta.AlgorithmKindEstimator)))
}

// GetAlgorithm 获取单个算法的参数模式
// @Summary 获取算法参数模式
// @Tags 元数据
// @Produce json
// @Param name path string true "算法名称"
// @Success 200 {object} APIResponse{data=registry.Entry}
// @Failure 404 {object} APIResponse
// @Router /meta/algorithms/{name} [get]
func (c *MetaController) GetAlgorithm(w http.ResponseWriter, r *http.Request) {
	entry, err := c.registry.Describe(chi.URLParam(r, "name"))
	if err != nil {
		writeResponse(w, r, NotFoundResponse("获取算法失败", err))
		return
	}
	writeResponse(w, r, SuccessResponse("获取算法成功", entry))
}

// GetLinkageMethods 获取层次聚类连接方式
// @Summary 获取层次聚类连接方式
// @Tags 元数据
// @Produce json
// @Success 200 {object} APIResponse{data=[]meta.LinkageMethod}
// @Router /meta/linkage-methods [get]
func (c *MetaController) GetLinkageMethods(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, r, SuccessResponse("获取连接方式成功", meta.LinkageMethods))
}
