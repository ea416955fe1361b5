/*
 * @module service/validity/validity
 * @description 聚类有效性指标计算：轮廓系数、簇内平方和、Calinski-Harabasz、Davies-Bouldin
 * @architecture 算法层
 * @documentReference DESIGN.md
 * @stateFlow 特征矩阵 + 标签 -> 指标映射
 * @rules 噪声点不参与任何指标；前置条件不满足或结果非有限值时省略该指标，不视为错误
 * @dependencies gonum.org/v1/gonum/floats
 * @refs service/analysis, service/clustering
 */

package validity

import (
	"clusterhub-service/service/meta"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// ErrUnknownIndex 不支持的指标名称
var ErrUnknownIndex = errors.New("不支持的有效性指标")

type indexFunc func(p *partition) (float64, bool)

var indexes = map[string]indexFunc{
	meta.IndexSilhouette:       silhouette,
	meta.IndexWCSS:             wcss,
	meta.IndexCalinskiHarabasz: calinskiHarabasz,
	meta.IndexDaviesBouldin:    daviesBouldin,
}

// SupportedIndexes 返回可请求的指标名称
func SupportedIndexes() []string {
	names := make([]string, 0, len(indexes))
	for name := range indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateIndexNames 校验请求的指标名称
func ValidateIndexNames(names []string) error {
	for _, name := range names {
		if _, ok := indexes[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownIndex, name)
		}
	}
	return nil
}

// Evaluate 计算请求的指标，requested 为空时计算默认指标集合。
// 前置条件不满足的指标不会出现在返回结果中
func Evaluate(x [][]float64, labels []int, requested []string) map[string]float64 {
	if len(requested) == 0 {
		requested = meta.DefaultValidityIndexes
	}
	result := make(map[string]float64, len(requested))
	p := newPartition(x, labels)
	for _, name := range requested {
		fn, ok := indexes[name]
		if !ok {
			continue
		}
		value, ok := fn(p)
		if !ok || math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		result[name] = value
	}
	return result
}

// Silhouette 平均轮廓系数
func Silhouette(x [][]float64, labels []int) (float64, bool) {
	return silhouette(newPartition(x, labels))
}

// WCSS 簇内平方和
func WCSS(x [][]float64, labels []int) (float64, bool) {
	return wcss(newPartition(x, labels))
}

// partition 去除噪声后的样本分组，簇按标签升序排列
type partition struct {
	points   [][]float64
	clusters [][]int
	member   []int
}

func newPartition(x [][]float64, labels []int) *partition {
	p := &partition{}
	groups := make(map[int][]int)
	var order []int
	for i, label := range labels {
		if label == meta.NoiseLabel || i >= len(x) {
			continue
		}
		if _, ok := groups[label]; !ok {
			order = append(order, label)
		}
		groups[label] = append(groups[label], len(p.points))
		p.points = append(p.points, x[i])
	}
	sort.Ints(order)
	p.member = make([]int, len(p.points))
	for c, label := range order {
		for _, idx := range groups[label] {
			p.member[idx] = c
		}
		p.clusters = append(p.clusters, groups[label])
	}
	return p
}

func (p *partition) size() int {
	return len(p.points)
}

func (p *partition) centroid(c int) []float64 {
	center := make([]float64, len(p.points[0]))
	for _, idx := range p.clusters[c] {
		floats.Add(center, p.points[idx])
	}
	floats.Scale(1/float64(len(p.clusters[c])), center)
	return center
}

func (p *partition) mean() []float64 {
	center := make([]float64, len(p.points[0]))
	for _, point := range p.points {
		floats.Add(center, point)
	}
	floats.Scale(1/float64(len(p.points)), center)
	return center
}

func squared(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func silhouette(p *partition) (float64, bool) {
	m, l := p.size(), len(p.clusters)
	if l < 2 || l > m-1 {
		return 0, false
	}
	sums := make([]float64, l)
	total := 0.0
	for i := 0; i < m; i++ {
		own := p.member[i]
		if len(p.clusters[own]) == 1 {
			continue
		}
		for c := range sums {
			sums[c] = 0
		}
		for j := 0; j < m; j++ {
			if i != j {
				sums[p.member[j]] += floats.Distance(p.points[i], p.points[j], 2)
			}
		}
		a := sums[own] / float64(len(p.clusters[own])-1)
		b := math.Inf(1)
		for c := 0; c < l; c++ {
			if c == own {
				continue
			}
			if mean := sums[c] / float64(len(p.clusters[c])); mean < b {
				b = mean
			}
		}
		if denom := math.Max(a, b); denom > 0 {
			total += (b - a) / denom
		}
	}
	return total / float64(m), true
}

func wcss(p *partition) (float64, bool) {
	if p.size() < 1 {
		return 0, false
	}
	total := 0.0
	for c, members := range p.clusters {
		center := p.centroid(c)
		for _, idx := range members {
			total += squared(p.points[idx], center)
		}
	}
	return total, true
}

func calinskiHarabasz(p *partition) (float64, bool) {
	m, l := p.size(), len(p.clusters)
	if l < 2 || l > m-1 {
		return 0, false
	}
	overall := p.mean()
	between, within := 0.0, 0.0
	for c, members := range p.clusters {
		center := p.centroid(c)
		between += float64(len(members)) * squared(center, overall)
		for _, idx := range members {
			within += squared(p.points[idx], center)
		}
	}
	if within == 0 {
		return 1.0, true
	}
	return between * float64(m-l) / (within * float64(l-1)), true
}

func daviesBouldin(p *partition) (float64, bool) {
	l := len(p.clusters)
	if l < 2 {
		return 0, false
	}
	centers := make([][]float64, l)
	scatter := make([]float64, l)
	for c, members := range p.clusters {
		centers[c] = p.centroid(c)
		for _, idx := range members {
			scatter[c] += floats.Distance(p.points[idx], centers[c], 2)
		}
		scatter[c] /= float64(len(members))
	}
	total := 0.0
	for i := 0; i < l; i++ {
		worst := 0.0
		for j := 0; j < l; j++ {
			if i == j {
				continue
			}
			sep := floats.Distance(centers[i], centers[j], 2)
			if sep == 0 {
				continue
			}
			if r := (scatter[i] + scatter[j]) / sep; r > worst {
				worst = r
			}
		}
		total += worst
	}
	return total / float64(l), true
}
