package clustering

import (
	"clusterhub-service/service/meta"
	"context"
	"errors"
	"math"
	"sort"
)

// MeanShiftOptions 均值漂移参数，Bandwidth 为 0 时自动估计
type MeanShiftOptions struct {
	Bandwidth  float64
	MaxIter    int
	ClusterAll bool
}

// bandwidthQuantile 自动估计带宽时使用的近邻比例
const bandwidthQuantile = 0.3

// MeanShift 平坦核均值漂移，以全部样本为种子。
// ClusterAll 为 false 时，距离所有模态都超过带宽的样本标记为噪声
func MeanShift(ctx context.Context, x Matrix, opts MeanShiftOptions) ([]int, error) {
	if err := x.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = 300
	}
	bandwidth := opts.Bandwidth
	if bandwidth <= 0 {
		estimated, err := EstimateBandwidth(ctx, x, bandwidthQuantile)
		if err != nil {
			return nil, err
		}
		bandwidth = estimated
	}

	type mode struct {
		center []float64
		weight int
	}
	n := x.Rows()
	stopThresh := 1e-3 * bandwidth
	modes := make([]mode, 0, n)

	for s := 0; s < n; s++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mean := copyRow(x[s])
		weight := 0
		for iter := 0; iter < opts.MaxIter; iter++ {
			next := make([]float64, len(mean))
			count := 0
			for _, p := range x {
				if distance(p, mean) <= bandwidth {
					for d := range next {
						next[d] += p[d]
					}
					count++
				}
			}
			if count == 0 {
				break
			}
			for d := range next {
				next[d] /= float64(count)
			}
			shift := distance(next, mean)
			mean, weight = next, count
			if shift <= stopThresh {
				break
			}
		}
		if weight > 0 {
			modes = append(modes, mode{center: mean, weight: weight})
		}
	}
	if len(modes) == 0 {
		return nil, errors.New("均值漂移未找到任何模态，请尝试更大的带宽")
	}

	sort.SliceStable(modes, func(i, j int) bool {
		return modes[i].weight > modes[j].weight
	})
	centers := make([][]float64, 0, len(modes))
	for _, m := range modes {
		unique := true
		for _, c := range centers {
			if distance(m.center, c) < bandwidth {
				unique = false
				break
			}
		}
		if unique {
			centers = append(centers, m.center)
		}
	}

	labels := make([]int, n)
	for i, p := range x {
		c, d := nearestCenter(p, centers)
		if !opts.ClusterAll && math.Sqrt(d) > bandwidth {
			labels[i] = meta.NoiseLabel
			continue
		}
		labels[i] = c
	}
	return labels, nil
}

// EstimateBandwidth 以每个样本到其第 quantile*n 个近邻距离的均值作为带宽
func EstimateBandwidth(ctx context.Context, x Matrix, quantile float64) (float64, error) {
	dist, err := pairwiseDistances(ctx, x)
	if err != nil {
		return 0, err
	}
	n := x.Rows()
	k := int(float64(n) * quantile)
	if k < 1 {
		k = 1
	}
	sorted := make([]float64, n)
	total := 0.0
	for i := 0; i < n; i++ {
		copy(sorted, dist[i])
		sort.Float64s(sorted)
		total += sorted[k-1]
	}
	bandwidth := total / float64(n)
	if bandwidth <= 0 {
		return 0, errors.New("无法估计带宽：样本间距离为0，请显式指定 bandwidth")
	}
	return bandwidth, nil
}
