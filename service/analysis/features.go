/*
 * @module service/analysis/features
 * @description 由数据集记录构建数值特征矩阵，按声明类型校验取值，按策略编码非数值属性并缩放
 * @architecture 领域服务 - 特征物化
 * @documentReference DESIGN.md
 * @stateFlow 属性+记录 -> 选列 -> 行校验/过滤 -> 编码 -> 缩放 -> FeatureMatrix
 * @rules 缺少任一选中列取值的记录被跳过；取值与声明类型不符或引用未知属性即失败；
 *        可用列为0返回特征提取错误，可用记录少于2返回空数据集错误
 * @dependencies github.com/spf13/cast, gonum.org/v1/gonum/stat
 * @refs service/analysis/orchestrator.go
 */

package analysis

import (
	"clusterhub-service/service/clustering"
	"clusterhub-service/service/meta"
	"clusterhub-service/service/models"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"gonum.org/v1/gonum/stat"
)

// MinUsableRecords 大多数算法至少需要2个样本
const MinUsableRecords = 2

// FeatureMatrix 特征矩阵，行与 RecordIDs 对齐，列与 Columns 对齐
type FeatureMatrix struct {
	X         clustering.Matrix
	RecordIDs []string
	Columns   []string
	Skipped   int // 因缺失取值被跳过的记录数
}

type featureColumn struct {
	attr   models.Attribute
	levels []string // 编码后的取值水平，数值列为空
}

// BuildFeatureMatrix 构建特征矩阵，records 需按创建顺序排列
func BuildFeatureMatrix(attributes []models.Attribute, records []models.Record, opts FeatureOptions) (*FeatureMatrix, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	encoding := opts.Encoding
	if encoding == "" {
		encoding = meta.EncodingExclude
	}

	byID := make(map[string]models.Attribute, len(attributes))
	byName := make(map[string]models.Attribute, len(attributes))
	for _, attr := range attributes {
		byID[attr.ID] = attr
		byName[attr.Name] = attr
	}

	selected, err := selectAttributes(attributes, byName, opts.Attributes, encoding)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: 没有可用于聚类的属性", ErrFeatureExtraction)
	}

	// 逐行校验并提取原始取值
	type row struct {
		id     string
		values []interface{}
	}
	rows := make([]row, 0, len(records))
	skipped := 0
	for _, record := range records {
		for key := range record.Values {
			if _, ok := byID[key]; !ok {
				return nil, fmt.Errorf("%w: 记录 %s 引用了不属于数据集的属性 %s", ErrFeatureExtraction, record.ID, key)
			}
		}
		values := make([]interface{}, len(selected))
		usable := true
		for c, attr := range selected {
			raw, ok := record.Values[attr.ID]
			if !ok || raw == nil || isBlank(raw) {
				usable = false
				break
			}
			v, err := conform(attr, raw)
			if err != nil {
				return nil, fmt.Errorf("%w: 记录 %s 属性 %s: %v", ErrFeatureExtraction, record.ID, attr.Name, err)
			}
			values[c] = v
		}
		if !usable {
			skipped++
			continue
		}
		rows = append(rows, row{id: record.ID, values: values})
	}
	if len(rows) < MinUsableRecords {
		return nil, fmt.Errorf("%w: 可用记录 %d 条，至少需要 %d 条", ErrEmptyDataset, len(rows), MinUsableRecords)
	}

	// 确定编码列的取值水平
	columns := make([]featureColumn, len(selected))
	for c, attr := range selected {
		columns[c] = featureColumn{attr: attr}
		if meta.IsNumericAttributeType(attr.Type) {
			continue
		}
		seen := make(map[string]struct{})
		for _, r := range rows {
			seen[r.values[c].(string)] = struct{}{}
		}
		levels := make([]string, 0, len(seen))
		for level := range seen {
			levels = append(levels, level)
		}
		sort.Strings(levels)
		columns[c].levels = levels
	}

	names := make([]string, 0, len(columns))
	for _, col := range columns {
		if col.levels != nil && encoding == meta.EncodingOneHot {
			for _, level := range col.levels {
				names = append(names, col.attr.Name+"="+level)
			}
			continue
		}
		names = append(names, col.attr.Name)
	}

	fm := &FeatureMatrix{
		X:         make(clustering.Matrix, len(rows)),
		RecordIDs: make([]string, len(rows)),
		Columns:   names,
		Skipped:   skipped,
	}
	for i, r := range rows {
		vec := make([]float64, 0, len(names))
		for c, col := range columns {
			if col.levels == nil {
				vec = append(vec, r.values[c].(float64))
				continue
			}
			idx := sort.SearchStrings(col.levels, r.values[c].(string))
			if encoding == meta.EncodingOneHot {
				for l := range col.levels {
					if l == idx {
						vec = append(vec, 1)
					} else {
						vec = append(vec, 0)
					}
				}
			} else {
				vec = append(vec, float64(idx))
			}
		}
		fm.X[i] = vec
		fm.RecordIDs[i] = r.id
	}

	scale(fm.X, opts.Scaling)
	return fm, nil
}

// selectAttributes 按位置顺序选出参与聚类的属性
func selectAttributes(attributes []models.Attribute, byName map[string]models.Attribute, names []string, encoding string) ([]models.Attribute, error) {
	candidates := attributes
	if len(names) > 0 {
		wanted := make(map[string]bool, len(names))
		for _, name := range names {
			if _, ok := byName[name]; !ok {
				return nil, fmt.Errorf("%w: 数据集中不存在属性 %s", ErrInvalidParameter, name)
			}
			wanted[name] = true
		}
		candidates = make([]models.Attribute, 0, len(names))
		for _, attr := range attributes {
			if wanted[attr.Name] {
				candidates = append(candidates, attr)
			}
		}
	}

	selected := make([]models.Attribute, 0, len(candidates))
	for _, attr := range candidates {
		if !meta.IsNumericAttributeType(attr.Type) && encoding == meta.EncodingExclude {
			if len(names) > 0 {
				return nil, fmt.Errorf("%w: 属性 %s 为 %s 类型，需要指定 ordinal 或 one_hot 编码", ErrInvalidParameter, attr.Name, attr.Type)
			}
			continue
		}
		selected = append(selected, attr)
	}
	return selected, nil
}

func isBlank(raw interface{}) bool {
	s, ok := raw.(string)
	return ok && strings.TrimSpace(s) == ""
}

// conform 按声明类型转换取值：数值列返回 float64，其余返回 string
func conform(attr models.Attribute, raw interface{}) (interface{}, error) {
	switch attr.Type {
	case meta.AttributeTypeNumeric, meta.AttributeTypeInteger:
		f, err := toNumber(raw)
		if err != nil {
			return nil, err
		}
		if attr.Type == meta.AttributeTypeInteger && f != math.Trunc(f) {
			return nil, fmt.Errorf("%v 不是整数", raw)
		}
		return f, nil
	case meta.AttributeTypeBoolean:
		if f, ok := raw.(float64); ok && f != 0 && f != 1 {
			return nil, fmt.Errorf("%v 不是布尔值", raw)
		}
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return nil, fmt.Errorf("%v 不是布尔值", raw)
		}
		if b {
			return 1.0, nil
		}
		return 0.0, nil
	default:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return nil, fmt.Errorf("%v 无法转换为文本", raw)
		}
		return s, nil
	}
}

func toNumber(raw interface{}) (float64, error) {
	var (
		f   float64
		err error
	)
	switch v := raw.(type) {
	case bool:
		return 0, fmt.Errorf("%v 不是数值", raw)
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
	case json.Number:
		f, err = v.Float64()
	default:
		f, err = cast.ToFloat64E(v)
	}
	if err != nil {
		return 0, fmt.Errorf("%v 不是数值", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v 不是有限数值", raw)
	}
	return f, nil
}

// scale 按列原地缩放，常数列缩放为0
func scale(x clustering.Matrix, method string) {
	if method == "" || method == meta.ScalingNone || len(x) == 0 {
		return
	}
	col := make([]float64, len(x))
	for c := range x[0] {
		for i := range x {
			col[i] = x[i][c]
		}
		switch method {
		case meta.ScalingStandard:
			mean, variance := stat.PopMeanVariance(col, nil)
			std := math.Sqrt(variance)
			for i := range x {
				if std == 0 {
					x[i][c] = 0
				} else {
					x[i][c] = (col[i] - mean) / std
				}
			}
		case meta.ScalingMinMax:
			lo, hi := col[0], col[0]
			for _, v := range col {
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
			}
			for i := range x {
				if hi == lo {
					x[i][c] = 0
				} else {
					x[i][c] = (col[i] - lo) / (hi - lo)
				}
			}
		}
	}
}
