package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// 通用 JSON 类型
type JSONB map[string]interface{}

// IntArray 用于存储整数数组（聚类标签）的 JSONB 类型
type IntArray []int

// Float64Map 用于存储有效性指标的 JSONB 类型，float64 按最短可回读格式序列化，精度无损
type Float64Map map[string]float64

// EstimatePoint 簇数估计曲线上的一个点
type EstimatePoint struct {
	K     int     `json:"k"`
	Score float64 `json:"score"`
	// Gap统计量的标准误差，其他估计器为空
	StdErr *float64 `json:"std_err,omitempty"`
}

// EstimateCurve 簇数估计曲线
type EstimateCurve []EstimatePoint

// scanJSON 从数据库值中解析 JSON
func scanJSON(value interface{}, dest interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("类型断言失败: 不是 []byte 或 string")
	}
	return json.Unmarshal(bytes, dest)
}

// 实现 Scanner 接口
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	return scanJSON(value, j)
}

// 实现 Valuer 接口
func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

// IntArray 的 Scanner 接口实现
func (a *IntArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	return scanJSON(value, a)
}

// IntArray 的 Valuer 接口实现
func (a IntArray) Value() (driver.Value, error) {
	if a == nil {
		return json.Marshal([]int{})
	}
	return json.Marshal(a)
}

// Float64Map 的 Scanner 接口实现
func (m *Float64Map) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	return scanJSON(value, m)
}

// Float64Map 的 Valuer 接口实现
func (m Float64Map) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(map[string]float64{})
	}
	return json.Marshal(m)
}

// EstimateCurve 的 Scanner 接口实现
func (c *EstimateCurve) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	return scanJSON(value, c)
}

// EstimateCurve 的 Valuer 接口实现
func (c EstimateCurve) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}
