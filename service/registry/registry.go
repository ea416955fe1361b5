/*
 * @module service/registry/registry
 * @description 算法注册表：按名称登记聚类算法与簇数估计器，声明参数模式并负责参数校验与调度
 * @architecture 分层架构 - 算法适配层
 * @documentReference DESIGN.md
 * @stateFlow 原始参数 -> Validate(类型转换/范围校验/默认值) -> Run
 * @rules 参数校验在任何数值计算之前完成；未知参数名视为错误；新增算法只需注册条目，无需修改编排逻辑
 * @dependencies github.com/spf13/cast, clusterhub-service/service/clustering
 * @refs service/analysis, api/controllers/meta_controller.go
 */

package registry

import (
	"clusterhub-service/service/clustering"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownAlgorithm 注册表中不存在该算法
	ErrUnknownAlgorithm = errors.New("未知的算法")
	// ErrInvalidParameter 参数不符合算法声明的模式
	ErrInvalidParameter = errors.New("参数无效")
)

// ParamType 参数类型
type ParamType string

const (
	ParamInt   ParamType = "int"
	ParamFloat ParamType = "float"
	ParamEnum  ParamType = "enum"
	ParamBool  ParamType = "bool"
)

// ParamSpec 单个参数的声明
type ParamSpec struct {
	Name         string      `json:"name"`
	Type         ParamType   `json:"type"`
	Required     bool        `json:"required"`
	Default      interface{} `json:"default,omitempty"`
	Min          *float64    `json:"min,omitempty"`
	Max          *float64    `json:"max,omitempty"`
	ExclusiveMin bool        `json:"exclusive_min,omitempty"`
	Enum         []string    `json:"enum,omitempty"`
	Description  string      `json:"description"`
}

// Output 算法或估计器的输出，聚类算法填充 Labels，估计器填充 Curve
type Output struct {
	Labels     []int
	Curve      []clustering.CurvePoint
	SuggestedK int
}

// RunFunc 算法执行函数，参数已通过校验并填充默认值
type RunFunc func(ctx context.Context, x clustering.Matrix, params Params, seed int64) (*Output, error)

// Entry 注册表条目
type Entry struct {
	Name        string      `json:"name"`
	Label       string      `json:"label"`
	Kind        string      `json:"kind"`
	Description string      `json:"description"`
	Schema      []ParamSpec `json:"parameters"`

	// Check 跨字段校验，可为空
	Check func(Params) error `json:"-"`
	Run   RunFunc            `json:"-"`
}

// Param 按名称查找参数声明
func (e *Entry) Param(name string) (ParamSpec, bool) {
	for _, spec := range e.Schema {
		if spec.Name == name {
			return spec, true
		}
	}
	return ParamSpec{}, false
}

// Registry 算法注册表，注册后只读
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
}

// New 创建空注册表
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register 注册条目，名称重复时返回错误
func (r *Registry) Register(entry *Entry) error {
	if entry == nil || entry.Name == "" || entry.Run == nil {
		return errors.New("注册条目缺少名称或执行函数")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[entry.Name]; exists {
		return fmt.Errorf("算法 %s 已注册", entry.Name)
	}
	r.entries[entry.Name] = entry
	r.order = append(r.order, entry.Name)
	return nil
}

// Describe 返回算法的参数模式
func (r *Registry) Describe(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, name)
	}
	return entry, nil
}

// List 按注册顺序列出指定类别的条目，kind 为空时列出全部
func (r *Registry) List(kind string) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []*Entry
	for _, name := range r.order {
		if entry := r.entries[name]; kind == "" || entry.Kind == kind {
			list = append(list, entry)
		}
	}
	return list
}

// Validate 按模式校验并转换原始参数，填充默认值。
// 缺少必填项、类型错误、超出范围、枚举值非法或出现未声明的参数名均返回 ErrInvalidParameter
func (r *Registry) Validate(name string, raw map[string]interface{}) (Params, error) {
	entry, err := r.Describe(name)
	if err != nil {
		return nil, err
	}

	unknown := make([]string, 0)
	for key := range raw {
		if _, ok := entry.Param(key); !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s 不接受参数 %v", ErrInvalidParameter, name, unknown)
	}

	params := make(Params, len(entry.Schema))
	for _, spec := range entry.Schema {
		value, present := raw[spec.Name]
		if !present || value == nil {
			if spec.Required {
				return nil, fmt.Errorf("%w: 缺少必填参数 %s", ErrInvalidParameter, spec.Name)
			}
			if spec.Default != nil {
				params[spec.Name] = spec.Default
			}
			continue
		}
		coerced, err := spec.coerce(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParameter, spec.Name, err)
		}
		params[spec.Name] = coerced
	}

	if entry.Check != nil {
		if err := entry.Check(params); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
		}
	}
	return params, nil
}

// Run 执行算法，params 应来自 Validate
func (r *Registry) Run(ctx context.Context, name string, x clustering.Matrix, params Params, seed int64) (*Output, error) {
	entry, err := r.Describe(name)
	if err != nil {
		return nil, err
	}
	return entry.Run(ctx, x, params, seed)
}
