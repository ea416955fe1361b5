/*
 * @module service/clustering/matrix
 * @description 聚类算法公共的数据结构与距离计算
 * @architecture 算法层
 * @documentReference DESIGN.md
 * @stateFlow 特征矩阵 -> 算法 -> 标签向量
 * @rules 所有算法只读访问特征矩阵；噪声点统一使用 meta.NoiseLabel
 * @dependencies gonum.org/v1/gonum/floats
 * @refs service/registry, service/analysis
 */

package clustering

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Matrix 特征矩阵，每行一个样本，每列一个特征
type Matrix [][]float64

// Rows 样本数
func (m Matrix) Rows() int {
	return len(m)
}

// Cols 特征数
func (m Matrix) Cols() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Validate 校验矩阵非空且各行等宽
func (m Matrix) Validate() error {
	if len(m) == 0 {
		return errors.New("特征矩阵为空")
	}
	cols := len(m[0])
	if cols == 0 {
		return errors.New("特征矩阵没有特征列")
	}
	for i, row := range m {
		if len(row) != cols {
			return fmt.Errorf("第 %d 行特征数为 %d，期望 %d", i, len(row), cols)
		}
	}
	return nil
}

// ErrNotConverged 迭代算法未收敛
var ErrNotConverged = errors.New("算法未收敛")

// ErrTooFewSamples 样本数不足以得到请求的簇数
var ErrTooFewSamples = errors.New("样本数少于请求的簇数")

// squaredDistance 欧氏距离平方，k-means 等热点循环使用
func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// distance 欧氏距离
func distance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// pairwiseDistances 计算全部样本两两欧氏距离
func pairwiseDistances(ctx context.Context, x Matrix) ([][]float64, error) {
	n := len(x)
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for j := i + 1; j < n; j++ {
			v := distance(x[i], x[j])
			d[i][j] = v
			d[j][i] = v
		}
	}
	return d, nil
}

// nearestCenter 返回距离最近的中心下标及距离平方
func nearestCenter(point []float64, centers [][]float64) (int, float64) {
	best := 0
	bestDist := squaredDistance(point, centers[0])
	for c := 1; c < len(centers); c++ {
		if d := squaredDistance(point, centers[c]); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best, bestDist
}

// copyRow 复制一行
func copyRow(row []float64) []float64 {
	out := make([]float64, len(row))
	copy(out, row)
	return out
}

// relabel 按首次出现顺序重新编号标签，噪声保持不变
func relabel(labels []int, noise int) []int {
	mapping := make(map[int]int)
	out := make([]int, len(labels))
	for i, label := range labels {
		if label == noise {
			out[i] = noise
			continue
		}
		id, ok := mapping[label]
		if !ok {
			id = len(mapping)
			mapping[label] = id
		}
		out[i] = id
	}
	return out
}
