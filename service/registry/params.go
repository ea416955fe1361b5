package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/spf13/cast"
)

// Params 校验后的参数，整数统一为 int，浮点统一为 float64
type Params map[string]interface{}

// Has 参数是否存在（显式给出或有默认值）
func (p Params) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Int 读取整数参数
func (p Params) Int(name string) int {
	return cast.ToInt(p[name])
}

// Float 读取浮点参数
func (p Params) Float(name string) float64 {
	return cast.ToFloat64(p[name])
}

// String 读取字符串参数
func (p Params) String(name string) string {
	return cast.ToString(p[name])
}

// Bool 读取布尔参数
func (p Params) Bool(name string) bool {
	return cast.ToBool(p[name])
}

func (s ParamSpec) coerce(value interface{}) (interface{}, error) {
	switch s.Type {
	case ParamInt:
		v, err := toInt(value)
		if err != nil {
			return nil, err
		}
		return v, s.checkRange(float64(v))
	case ParamFloat:
		v, err := toFloat(value)
		if err != nil {
			return nil, err
		}
		return v, s.checkRange(v)
	case ParamBool:
		v, err := cast.ToBoolE(value)
		if err != nil {
			return nil, fmt.Errorf("期望布尔值: %v", value)
		}
		return v, nil
	case ParamEnum:
		str, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("期望字符串: %v", value)
		}
		for _, option := range s.Enum {
			if str == option {
				return str, nil
			}
		}
		return nil, fmt.Errorf("取值 %q 不在 %v 中", str, s.Enum)
	default:
		return nil, fmt.Errorf("未知参数类型 %s", s.Type)
	}
}

func (s ParamSpec) checkRange(v float64) error {
	if s.Min != nil {
		if s.ExclusiveMin && v <= *s.Min {
			return fmt.Errorf("必须大于 %v，实际为 %v", *s.Min, v)
		}
		if !s.ExclusiveMin && v < *s.Min {
			return fmt.Errorf("必须大于等于 %v，实际为 %v", *s.Min, v)
		}
	}
	if s.Max != nil && v > *s.Max {
		return fmt.Errorf("必须小于等于 %v，实际为 %v", *s.Max, v)
	}
	return nil
}

func toInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case bool:
		return 0, errors.New("期望整数，实际为布尔值")
	case float64:
		return integral(v)
	case float32:
		return integral(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("期望整数: %v", value)
		}
		return integral(f)
	}
	v, err := cast.ToIntE(value)
	if err != nil {
		return 0, fmt.Errorf("期望整数: %v", value)
	}
	return v, nil
}

func integral(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("期望整数，实际为 %v", f)
	}
	if !IntegralInRange(f) {
		return 0, fmt.Errorf("整数超出范围: %v", f)
	}
	return int(f), nil
}

// IntegralInRange 浮点数是否落在 int 范围内，超出范围时转换结果未定义
func IntegralInRange(f float64) bool {
	return f >= float64(math.MinInt) && f < -float64(math.MinInt)
}

func toFloat(value interface{}) (float64, error) {
	if _, ok := value.(bool); ok {
		return 0, errors.New("期望数值，实际为布尔值")
	}
	v, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, fmt.Errorf("期望数值: %v", value)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("期望有限数值，实际为 %v", v)
	}
	return v, nil
}
