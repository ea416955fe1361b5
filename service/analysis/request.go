package analysis

import (
	"clusterhub-service/service/meta"
	"clusterhub-service/service/models"
	"clusterhub-service/service/registry"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cast"
)

// FeatureOptions 特征矩阵构建选项
type FeatureOptions struct {
	// exclude（默认）、ordinal、one_hot
	Encoding string `json:"encoding,omitempty" example:"exclude"`
	// none（默认）、standard、minmax
	Scaling string `json:"scaling,omitempty" example:"none"`
	// 显式指定参与聚类的属性名，空表示全部可用属性
	Attributes []string `json:"attributes,omitempty"`
}

// Validate 校验编码与缩放方式
func (o FeatureOptions) Validate() error {
	if !meta.IsValidEncoding(o.Encoding) {
		return fmt.Errorf("%w: 不支持的编码方式 %s", ErrInvalidParameter, o.Encoding)
	}
	if !meta.IsValidScaling(o.Scaling) {
		return fmt.Errorf("%w: 不支持的缩放方式 %s", ErrInvalidParameter, o.Scaling)
	}
	return nil
}

// RunRequest 运行请求
type RunRequest struct {
	DatasetID  string                 `json:"dataset_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Algorithm  string                 `json:"algorithm" example:"kmeans"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	// 需要计算的有效性指标，空表示默认指标集合
	Indexes  []string       `json:"indexes,omitempty"`
	Features FeatureOptions `json:"features"`
	// 幂等键，相同键的请求在排队或执行期间不会重复提交
	RequestKey string `json:"request_key,omitempty"`
	// 单次运行超时，只能比服务配置更短
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// snapshot 运行请求快照，写入执行日志
func (r RunRequest) snapshot(seed int64) models.JSONB {
	snap := models.JSONB{
		"dataset_id": r.DatasetID,
		"algorithm":  r.Algorithm,
		"parameters": r.Parameters,
		"seed":       seed,
	}
	if len(r.Indexes) > 0 {
		snap["indexes"] = r.Indexes
	}
	if r.Features.Encoding != "" || r.Features.Scaling != "" || len(r.Features.Attributes) > 0 {
		snap["features"] = r.Features
	}
	if r.RequestKey != "" {
		snap["request_key"] = r.RequestKey
	}
	if r.TimeoutSeconds > 0 {
		snap["timeout_seconds"] = r.TimeoutSeconds
	}
	return snap
}

// resolveSeed 优先使用请求参数中的种子，其次是配置的默认种子，最后随机生成
func resolveSeed(params map[string]interface{}, fallback *int64, rng *rand.Rand) int64 {
	if raw, ok := params["seed"]; ok && raw != nil {
		if seedRepresentable(raw) {
			if seed, err := cast.ToInt64E(raw); err == nil {
				return seed
			}
		}
	}
	if fallback != nil {
		return *fallback
	}
	if rng != nil {
		return rng.Int63n(maxGeneratedSeed)
	}
	return time.Now().UnixNano() % maxGeneratedSeed
}

// seedRepresentable 超出整数范围的种子交由参数校验拒绝，不参与回退
func seedRepresentable(raw interface{}) bool {
	switch v := raw.(type) {
	case bool:
		return false
	case float64:
		return registry.IntegralInRange(v)
	case float32:
		return registry.IntegralInRange(float64(v))
	}
	return true
}

// 生成的种子保持在 JSON 数字可精确表示的范围内
const maxGeneratedSeed = 1 << 31
