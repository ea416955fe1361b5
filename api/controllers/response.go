package controllers

import (
	"clusterhub-service/service/analysis"
	"clusterhub-service/service/catalog"
	"clusterhub-service/service/meta"
	"clusterhub-service/service/models"
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// APIResponse 统一API响应结构，Status 为0表示成功，否则为HTTP状态码
type APIResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data,omitempty"`
}

// SuccessResponse 成功响应
func SuccessResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: 0, Msg: msg, Data: data}
}

func errorResponse(status int, msg string, err error) *APIResponse {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	return &APIResponse{Status: status, Msg: msg}
}

// BadRequestResponse 请求参数错误
func BadRequestResponse(msg string, err error) *APIResponse {
	return errorResponse(http.StatusBadRequest, msg, err)
}

// NotFoundResponse 资源不存在
func NotFoundResponse(msg string, err error) *APIResponse {
	return errorResponse(http.StatusNotFound, msg, err)
}

// InternalErrorResponse 服务内部错误
func InternalErrorResponse(msg string, err error) *APIResponse {
	return errorResponse(http.StatusInternalServerError, msg, err)
}

// ServiceUnavailableResponse 服务暂不可用
func ServiceUnavailableResponse(msg string, err error) *APIResponse {
	return errorResponse(http.StatusServiceUnavailable, msg, err)
}

// RunErrorResponse 按运行错误码映射HTTP状态
func RunErrorResponse(msg string, err error) *APIResponse {
	switch {
	case errors.Is(err, analysis.ErrQueueFull), errors.Is(err, analysis.ErrStopped):
		return ServiceUnavailableResponse(msg, err)
	case errors.Is(err, catalog.ErrInvalidDataset):
		return BadRequestResponse(msg, err)
	}
	switch analysis.CodeOf(err) {
	case meta.ErrorCodeNotFound:
		return NotFoundResponse(msg, err)
	case meta.ErrorCodeInvalidParameter:
		return BadRequestResponse(msg, err)
	case meta.ErrorCodeEmptyDataset, meta.ErrorCodeFeatureExtraction, meta.ErrorCodeAlgorithmFailure:
		return errorResponse(http.StatusUnprocessableEntity, msg, err)
	case meta.ErrorCodeTimeout:
		return errorResponse(http.StatusGatewayTimeout, msg, err)
	default:
		return InternalErrorResponse(msg, err)
	}
}

// lookupResponse 查询类接口的错误响应，区分不存在与其他错误
func lookupResponse(msg string, err error) *APIResponse {
	if errors.Is(err, models.ErrNotFound) {
		return NotFoundResponse(msg, err)
	}
	return InternalErrorResponse(msg, err)
}

// writeResponse 写入响应，失败时同步设置HTTP状态码
func writeResponse(w http.ResponseWriter, r *http.Request, resp *APIResponse) {
	if resp.Status != 0 {
		render.Status(r, resp.Status)
	}
	render.JSON(w, r, resp)
}
