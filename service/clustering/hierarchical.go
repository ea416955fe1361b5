package clustering

import (
	"clusterhub-service/service/meta"
	"context"
	"fmt"
	"math"
)

// Agglomerative 自底向上层次聚类，合并到剩余 nClusters 个簇为止。
// ward 在平方欧氏距离上按 Lance-Williams 公式更新，其余连接方式使用欧氏距离。
func Agglomerative(ctx context.Context, x Matrix, nClusters int, linkage string) ([]int, error) {
	if err := checkClusterCount(x, nClusters); err != nil {
		return nil, err
	}
	if linkage == "" {
		linkage = meta.LinkageWard
	}
	update, err := linkageUpdate(linkage)
	if err != nil {
		return nil, err
	}

	n := x.Rows()
	dist, err := pairwiseDistances(ctx, x)
	if err != nil {
		return nil, err
	}
	if linkage == meta.LinkageWard {
		for i := range dist {
			for j := range dist[i] {
				dist[i][j] *= dist[i][j]
			}
		}
	}

	active := make([]bool, n)
	size := make([]int, n)
	parent := make([]int, n)
	for i := 0; i < n; i++ {
		active[i] = true
		size[i] = 1
		parent[i] = i
	}

	nn := make([]int, n)
	nnDist := make([]float64, n)
	refresh := func(i int) {
		nn[i], nnDist[i] = -1, math.Inf(1)
		for j := 0; j < n; j++ {
			if j == i || !active[j] {
				continue
			}
			if dist[i][j] < nnDist[i] {
				nn[i], nnDist[i] = j, dist[i][j]
			}
		}
	}
	for i := 0; i < n; i++ {
		refresh(i)
	}

	for remaining := n; remaining > nClusters; remaining-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		a := -1
		for i := 0; i < n; i++ {
			if active[i] && nn[i] >= 0 && (a < 0 || nnDist[i] < nnDist[a]) {
				a = i
			}
		}
		b := nn[a]
		if b < a {
			a, b = b, a
		}

		// b 并入 a
		for k := 0; k < n; k++ {
			if !active[k] || k == a || k == b {
				continue
			}
			v := update(dist[k][a], dist[k][b], dist[a][b], size[a], size[b], size[k])
			dist[a][k] = v
			dist[k][a] = v
		}
		active[b] = false
		parent[b] = a
		size[a] += size[b]

		refresh(a)
		for k := 0; k < n; k++ {
			if !active[k] || k == a {
				continue
			}
			switch {
			case nn[k] == a || nn[k] == b:
				refresh(k)
			case dist[k][a] < nnDist[k] || (dist[k][a] == nnDist[k] && a < nn[k]):
				nn[k], nnDist[k] = a, dist[k][a]
			}
		}
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = findRoot(parent, i)
	}
	return relabel(labels, meta.NoiseLabel), nil
}

func findRoot(parent []int, i int) int {
	for parent[i] != i {
		parent[i] = parent[parent[i]]
		i = parent[i]
	}
	return i
}

type lanceWilliams func(dki, dkj, dij float64, ni, nj, nk int) float64

func linkageUpdate(linkage string) (lanceWilliams, error) {
	switch linkage {
	case meta.LinkageWard:
		return func(dki, dkj, dij float64, ni, nj, nk int) float64 {
			fi, fj, fk := float64(ni), float64(nj), float64(nk)
			return ((fi+fk)*dki + (fj+fk)*dkj - fk*dij) / (fi + fj + fk)
		}, nil
	case meta.LinkageSingle:
		return func(dki, dkj, _ float64, _, _, _ int) float64 {
			return math.Min(dki, dkj)
		}, nil
	case meta.LinkageComplete:
		return func(dki, dkj, _ float64, _, _, _ int) float64 {
			return math.Max(dki, dkj)
		}, nil
	case meta.LinkageAverage:
		return func(dki, dkj, _ float64, ni, nj, _ int) float64 {
			fi, fj := float64(ni), float64(nj)
			return (fi*dki + fj*dkj) / (fi + fj)
		}, nil
	default:
		return nil, fmt.Errorf("不支持的连接方式: %s", linkage)
	}
}
