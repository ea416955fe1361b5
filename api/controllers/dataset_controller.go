/*
 * @module api/controllers/dataset_controller
 * @description 数据集目录控制器：数据集列表、详情预览、创建、CSV导入与删除
 * @architecture MVC架构 - 控制器层
 * @documentReference DESIGN.md
 * @stateFlow HTTP请求 -> catalog.Service -> 统一响应
 * @rules 数据集不存在返回404；删除为硬删除，按记录、属性、数据集顺序级联
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/catalog
 */

package controllers

import (
	"clusterhub-service/service/catalog"
	"clusterhub-service/service/meta"
	"clusterhub-service/service/models"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// 上传文件大小上限
const maxUploadBytes = 32 << 20

// DatasetController 数据集控制器
type DatasetController struct {
	catalog *catalog.Service
}

// NewDatasetController 创建数据集控制器实例
func NewDatasetController(catalogService *catalog.Service) *DatasetController {
	return &DatasetController{catalog: catalogService}
}

// CreateDatasetRequest 创建数据集请求，records 按属性名给出取值
type CreateDatasetRequest struct {
	catalog.DatasetInput
	Records []map[string]interface{} `json:"records,omitempty"`
}

// DatasetDetail 数据集详情
type DatasetDetail struct {
	*models.Dataset
	Attributes []models.Attribute `json:"attributes"`
	Records    []models.Record    `json:"records"`
}

// ListDatasets 获取数据集列表
// @Summary 获取数据集列表
// @Description 获取未删除的数据集及其记录数
// @Tags 数据集
// @Produce json
// @Success 200 {object} APIResponse{data=[]models.Dataset}
// @Failure 500 {object} APIResponse
// @Router /datasets [get]
func (c *DatasetController) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := c.catalog.ListDatasets(r.Context())
	if err != nil {
		writeResponse(w, r, InternalErrorResponse("获取数据集列表失败", err))
		return
	}
	writeResponse(w, r, SuccessResponse("获取数据集列表成功", datasets))
}

// GetDataset 获取数据集详情
// @Summary 获取数据集详情
// @Description 获取数据集、属性及前若干条记录
// @Tags 数据集
// @Produce json
// @Param id path string true "数据集ID"
// @Success 200 {object} APIResponse{data=DatasetDetail}
// @Failure 404 {object} APIResponse
// @Router /datasets/{id} [get]
func (c *DatasetController) GetDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dataset, err := c.catalog.GetDataset(r.Context(), id)
	if err != nil {
		writeResponse(w, r, lookupResponse("获取数据集失败", err))
		return
	}
	attributes, err := c.catalog.ListAttributes(r.Context(), id)
	if err != nil {
		writeResponse(w, r, lookupResponse("获取数据集属性失败", err))
		return
	}
	records, err := c.catalog.ListRecords(r.Context(), id, meta.DatasetPreviewRecordLimit)
	if err != nil {
		writeResponse(w, r, lookupResponse("获取数据集记录失败", err))
		return
	}
	writeResponse(w, r, SuccessResponse("获取数据集成功", DatasetDetail{
		Dataset:    dataset,
		Attributes: attributes,
		Records:    records,
	}))
}

// CreateDataset 创建数据集
// @Summary 创建数据集
// @Description 按属性定义创建数据集，可同时写入记录
// @Tags 数据集
// @Accept json
// @Produce json
// @Param dataset body CreateDatasetRequest true "数据集定义"
// @Success 200 {object} APIResponse{data=models.Dataset}
// @Failure 400 {object} APIResponse
// @Router /datasets [post]
func (c *DatasetController) CreateDataset(w http.ResponseWriter, r *http.Request) {
	var req CreateDatasetRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeResponse(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	dataset, err := c.catalog.CreateDataset(r.Context(), req.DatasetInput)
	if err != nil {
		writeResponse(w, r, datasetErrorResponse("创建数据集失败", err))
		return
	}
	if len(req.Records) > 0 {
		n, err := c.catalog.AddRecords(r.Context(), dataset.ID, req.Records)
		if err != nil {
			// 记录无效时撤销整个数据集
			_ = c.catalog.DeleteDataset(r.Context(), dataset.ID)
			writeResponse(w, r, datasetErrorResponse("写入记录失败", err))
			return
		}
		dataset.RecordsCount = int64(n)
	}
	writeResponse(w, r, SuccessResponse("创建数据集成功", dataset))
}

// UploadDataset 导入CSV数据集
// @Summary 导入CSV数据集
// @Description 首行为属性名，全部非空单元格为数值的列识别为 numeric，否则为 categorical
// @Tags 数据集
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV文件"
// @Param name formData string true "数据集名称"
// @Param label formData string false "显示名称"
// @Param description formData string false "描述"
// @Param encoding formData string false "文件编码 utf-8 或 gbk"
// @Success 200 {object} APIResponse{data=catalog.ImportResult}
// @Failure 400 {object} APIResponse
// @Router /datasets/upload [post]
func (c *DatasetController) UploadDataset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeResponse(w, r, BadRequestResponse("解析上传表单失败", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeResponse(w, r, BadRequestResponse("缺少上传文件", err))
		return
	}
	defer file.Close()

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = strings.TrimSuffix(header.Filename, ".csv")
	}
	result, err := c.catalog.ImportCSV(r.Context(), file, catalog.ImportOptions{
		Name:        name,
		Label:       r.FormValue("label"),
		Description: r.FormValue("description"),
		Encoding:    r.FormValue("encoding"),
	})
	if err != nil {
		writeResponse(w, r, datasetErrorResponse("导入数据集失败", err))
		return
	}

	msg := "导入数据集成功"
	if result.RowsWithMissing > 0 {
		msg = "导入数据集成功，部分记录存在缺失值"
	}
	writeResponse(w, r, SuccessResponse(msg, result))
}

// DeleteDataset 删除数据集
// @Summary 删除数据集
// @Description 硬删除数据集及其记录和属性，历史分析结果保留
// @Tags 数据集
// @Produce json
// @Param id path string true "数据集ID"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /datasets/{id} [delete]
func (c *DatasetController) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := c.catalog.DeleteDataset(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeResponse(w, r, lookupResponse("删除数据集失败", err))
		return
	}
	writeResponse(w, r, SuccessResponse("删除数据集成功", nil))
}

func datasetErrorResponse(msg string, err error) *APIResponse {
	if errors.Is(err, catalog.ErrInvalidDataset) {
		return BadRequestResponse(msg, err)
	}
	return lookupResponse(msg, err)
}
