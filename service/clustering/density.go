package clustering

import (
	"clusterhub-service/service/meta"
	"context"
	"fmt"
	"math"
	"sort"
)

const unclassified = -2

// DBSCAN 基于密度的聚类。minSamples 计入样本自身，无法从核心点到达的样本标记为噪声
func DBSCAN(ctx context.Context, x Matrix, eps float64, minSamples int) ([]int, error) {
	if err := x.Validate(); err != nil {
		return nil, err
	}
	if eps <= 0 || minSamples < 1 {
		return nil, fmt.Errorf("eps 必须大于0且 min_samples 必须大于等于1")
	}

	dist, err := pairwiseDistances(ctx, x)
	if err != nil {
		return nil, err
	}
	n := x.Rows()
	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if dist[i][j] <= eps {
				neighbors[i] = append(neighbors[i], j)
			}
		}
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = unclassified
	}
	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != unclassified || len(neighbors[i]) < minSamples {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		labels[i] = cluster
		queue := []int{i}
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			for _, q := range neighbors[p] {
				if labels[q] != unclassified {
					continue
				}
				labels[q] = cluster
				if len(neighbors[q]) >= minSamples {
					queue = append(queue, q)
				}
			}
		}
		cluster++
	}

	for i := range labels {
		if labels[i] == unclassified {
			labels[i] = meta.NoiseLabel
		}
	}
	return labels, nil
}

// OPTICSOptions OPTICS 参数，Eps 为 0 时按 MaxEps 提取簇
type OPTICSOptions struct {
	MinSamples int
	MaxEps     float64
	Eps        float64
}

// OPTICSResult 可达性排序及按 eps 提取的标签
type OPTICSResult struct {
	Labels        []int
	Ordering      []int
	Reachability  []float64
	CoreDistances []float64
}

// OPTICS 计算可达性排序，再以 DBSCAN 方式在 eps 处切分
func OPTICS(ctx context.Context, x Matrix, opts OPTICSOptions) (*OPTICSResult, error) {
	if err := x.Validate(); err != nil {
		return nil, err
	}
	if opts.MinSamples < 1 {
		return nil, fmt.Errorf("min_samples 必须大于等于1")
	}
	maxEps := opts.MaxEps
	if maxEps <= 0 {
		maxEps = math.Inf(1)
	}
	eps := opts.Eps
	if eps <= 0 {
		eps = maxEps
	}

	dist, err := pairwiseDistances(ctx, x)
	if err != nil {
		return nil, err
	}
	n := x.Rows()

	core := make([]float64, n)
	sorted := make([]float64, n)
	for i := 0; i < n; i++ {
		if opts.MinSamples > n {
			core[i] = math.Inf(1)
			continue
		}
		copy(sorted, dist[i])
		sort.Float64s(sorted)
		core[i] = sorted[opts.MinSamples-1]
		if core[i] > maxEps {
			core[i] = math.Inf(1)
		}
	}

	reach := make([]float64, n)
	for i := range reach {
		reach[i] = math.Inf(1)
	}
	processed := make([]bool, n)
	ordering := make([]int, 0, n)

	for len(ordering) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		point := -1
		for i := 0; i < n; i++ {
			if !processed[i] && (point < 0 || reach[i] < reach[point]) {
				point = i
			}
		}
		processed[point] = true
		ordering = append(ordering, point)
		if math.IsInf(core[point], 1) {
			continue
		}
		for j := 0; j < n; j++ {
			if processed[j] || dist[point][j] > maxEps {
				continue
			}
			if r := math.Max(dist[point][j], core[point]); r < reach[j] {
				reach[j] = r
			}
		}
	}

	return &OPTICSResult{
		Labels:        extractDBSCAN(ordering, reach, core, eps),
		Ordering:      ordering,
		Reachability:  reach,
		CoreDistances: core,
	}, nil
}

// extractDBSCAN 沿可达性排序切分：可达距离超过 eps 且自身为核心点时开启新簇。
// 可达距离为无穷的点总视为新簇起点，因此 eps 为无穷时每个连通分量各成一簇。
func extractDBSCAN(ordering []int, reach, core []float64, eps float64) []int {
	labels := make([]int, len(reach))
	far := func(i int) bool {
		return reach[i] > eps || math.IsInf(reach[i], 1)
	}
	nearCore := func(i int) bool {
		return !math.IsInf(core[i], 1) && core[i] <= eps
	}
	cluster := meta.NoiseLabel
	for _, p := range ordering {
		if far(p) && nearCore(p) {
			cluster++
		}
		labels[p] = cluster
	}
	for i := range labels {
		if far(i) && !nearCore(i) {
			labels[i] = meta.NoiseLabel
		}
	}
	return labels
}
