/*
 * @module service/analysis/errors
 * @description 运行失败分类：将各层错误归入统一错误码，写入执行日志并映射为HTTP状态
 * @architecture 错误处理层
 * @documentReference DESIGN.md
 * @stateFlow 下层错误 -> Classify -> RunError{Code} -> 执行日志/接口响应
 * @rules 每个失败运行只有一个错误码；RunError 可通过 errors.Is 与对应哨兵错误比较
 * @dependencies 无外部依赖
 * @refs service/meta/analysis.go, api/controllers/analysis_controller.go
 */

package analysis

import (
	"clusterhub-service/service/clustering"
	"clusterhub-service/service/meta"
	"clusterhub-service/service/models"
	"clusterhub-service/service/registry"
	"clusterhub-service/service/validity"
	"context"
	"errors"
	"fmt"
)

// 哨兵错误，与错误码一一对应
var (
	ErrNotFound          = models.ErrNotFound
	ErrInvalidParameter  = registry.ErrInvalidParameter
	ErrEmptyDataset      = errors.New("可用记录不足")
	ErrFeatureExtraction = errors.New("特征提取失败")
	ErrAlgorithmFailure  = errors.New("算法执行失败")
	ErrTimeout           = errors.New("运行超时")
	ErrInternal          = errors.New("内部错误")

	// ErrQueueFull 等待队列已满，调用方稍后重试
	ErrQueueFull = errors.New("分析任务队列已满")
	// ErrStopped 编排器已停止，不再接受新的运行请求
	ErrStopped = errors.New("分析编排器已停止")
)

var sentinels = map[string]error{
	meta.ErrorCodeNotFound:          ErrNotFound,
	meta.ErrorCodeInvalidParameter:  ErrInvalidParameter,
	meta.ErrorCodeEmptyDataset:      ErrEmptyDataset,
	meta.ErrorCodeFeatureExtraction: ErrFeatureExtraction,
	meta.ErrorCodeAlgorithmFailure:  ErrAlgorithmFailure,
	meta.ErrorCodeTimeout:           ErrTimeout,
	meta.ErrorCodeInternal:          ErrInternal,
}

// RunError 带错误码的运行错误
type RunError struct {
	Code    string
	Message string
	Err     error
}

func newRunError(code string, err error) *RunError {
	return &RunError{Code: code, Message: err.Error(), Err: err}
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Is 同码的哨兵错误视为相等
func (e *RunError) Is(target error) bool {
	return sentinels[e.Code] == target
}

// Classify 将任意错误归类为 RunError
func Classify(err error) *RunError {
	if err == nil {
		return nil
	}
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return newRunError(meta.ErrorCodeTimeout, err)
	case errors.Is(err, registry.ErrInvalidParameter),
		errors.Is(err, registry.ErrUnknownAlgorithm),
		errors.Is(err, validity.ErrUnknownIndex):
		return newRunError(meta.ErrorCodeInvalidParameter, err)
	case errors.Is(err, models.ErrNotFound):
		return newRunError(meta.ErrorCodeNotFound, err)
	case errors.Is(err, ErrEmptyDataset):
		return newRunError(meta.ErrorCodeEmptyDataset, err)
	case errors.Is(err, ErrFeatureExtraction):
		return newRunError(meta.ErrorCodeFeatureExtraction, err)
	case errors.Is(err, ErrAlgorithmFailure),
		errors.Is(err, clustering.ErrNotConverged),
		errors.Is(err, clustering.ErrTooFewSamples):
		return newRunError(meta.ErrorCodeAlgorithmFailure, err)
	default:
		return newRunError(meta.ErrorCodeInternal, err)
	}
}

// CodeOf 返回错误对应的错误码，nil 返回空串
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return Classify(err).Code
}
