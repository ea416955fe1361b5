package clustering

import (
	"context"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// KMeansOptions k-means 参数
type KMeansOptions struct {
	NClusters int
	MaxIter   int
	NInit     int
	Tol       float64
	Seed      int64
}

// KMeansResult k-means 结果
type KMeansResult struct {
	Labels     []int
	Centers    [][]float64
	Inertia    float64
	Iterations int
}

// MiniBatchOptions mini-batch k-means 参数
type MiniBatchOptions struct {
	NClusters int
	BatchSize int
	MaxIter   int
	Seed      int64
}

// KMeans 使用 k-means++ 初始化的 Lloyd 算法，多次初始化取惯性最小的一次
func KMeans(ctx context.Context, x Matrix, opts KMeansOptions) (*KMeansResult, error) {
	if err := checkClusterCount(x, opts.NClusters); err != nil {
		return nil, err
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = 300
	}
	if opts.NInit <= 0 {
		opts.NInit = 10
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	tol := opts.Tol * meanVariance(x)

	var best *KMeansResult
	for run := 0; run < opts.NInit; run++ {
		centers := kmeansPlusPlus(x, opts.NClusters, rng)
		result, err := lloyd(ctx, x, centers, opts.MaxIter, tol)
		if err != nil {
			return nil, err
		}
		if best == nil || result.Inertia < best.Inertia {
			best = result
		}
	}
	return best, nil
}

// MiniBatchKMeans 小批量 k-means，按样本计数衰减学习率更新中心
func MiniBatchKMeans(ctx context.Context, x Matrix, opts MiniBatchOptions) (*KMeansResult, error) {
	if err := checkClusterCount(x, opts.NClusters); err != nil {
		return nil, err
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = 100
	}
	n := x.Rows()
	batchSize := opts.BatchSize
	if batchSize <= 0 || batchSize > n {
		batchSize = n
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	centers := kmeansPlusPlus(x, opts.NClusters, rng)
	counts := make([]float64, opts.NClusters)
	batch := make([]int, batchSize)
	assigned := make([]int, batchSize)

	for iter := 0; iter < opts.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for b := range batch {
			batch[b] = rng.Intn(n)
		}
		for b, i := range batch {
			assigned[b], _ = nearestCenter(x[i], centers)
		}
		for b, i := range batch {
			c := assigned[b]
			counts[c]++
			eta := 1.0 / counts[c]
			for d := range centers[c] {
				centers[c][d] += eta * (x[i][d] - centers[c][d])
			}
		}
	}

	labels := make([]int, n)
	inertia := 0.0
	for i, p := range x {
		var d float64
		labels[i], d = nearestCenter(p, centers)
		inertia += d
	}
	return &KMeansResult{Labels: labels, Centers: centers, Inertia: inertia, Iterations: opts.MaxIter}, nil
}

func checkClusterCount(x Matrix, k int) error {
	if err := x.Validate(); err != nil {
		return err
	}
	if k < 1 {
		return fmt.Errorf("n_clusters 必须大于等于1，当前为 %d", k)
	}
	if k > x.Rows() {
		return fmt.Errorf("%w: n_clusters=%d, 样本数=%d", ErrTooFewSamples, k, x.Rows())
	}
	return nil
}

// meanVariance 各特征方差的均值，用于把相对容差换算为绝对容差
func meanVariance(x Matrix) float64 {
	cols := x.Cols()
	column := make([]float64, x.Rows())
	total := 0.0
	for c := 0; c < cols; c++ {
		for i, row := range x {
			column[i] = row[c]
		}
		_, variance := stat.PopMeanVariance(column, nil)
		total += variance
	}
	return total / float64(cols)
}

// kmeansPlusPlus 按与已选中心距离平方的概率选择初始中心
func kmeansPlusPlus(x Matrix, k int, rng *rand.Rand) [][]float64 {
	n := x.Rows()
	centers := make([][]float64, 0, k)
	centers = append(centers, copyRow(x[rng.Intn(n)]))

	dist := make([]float64, n)
	for i := range x {
		dist[i] = squaredDistance(x[i], centers[0])
	}

	for len(centers) < k {
		total := floats.Sum(dist)
		idx := n - 1
		if total <= 0 {
			idx = rng.Intn(n)
		} else {
			target := rng.Float64() * total
			cum := 0.0
			for i, d := range dist {
				cum += d
				if cum > target {
					idx = i
					break
				}
			}
		}

		center := copyRow(x[idx])
		centers = append(centers, center)
		for i := range x {
			if d := squaredDistance(x[i], center); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centers
}

// lloyd 迭代分配与更新，直到中心位移平方和不超过 tol
func lloyd(ctx context.Context, x Matrix, centers [][]float64, maxIter int, tol float64) (*KMeansResult, error) {
	n, k, dim := x.Rows(), len(centers), x.Cols()
	labels := make([]int, n)
	iterations := 0

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iterations = iter + 1

		for i, p := range x {
			labels[i], _ = nearestCenter(p, centers)
		}

		counts := make([]int, k)
		next := make([][]float64, k)
		for c := range next {
			next[c] = make([]float64, dim)
		}
		for i, p := range x {
			c := labels[i]
			counts[c]++
			floats.Add(next[c], p)
		}
		fillEmptyClusters(x, labels, counts, centers, next)
		for c := range next {
			if counts[c] == 0 {
				copy(next[c], centers[c])
				continue
			}
			floats.Scale(1/float64(counts[c]), next[c])
		}

		shift := 0.0
		for c := range centers {
			shift += squaredDistance(centers[c], next[c])
		}
		centers = next
		if shift <= tol {
			break
		}
	}

	inertia := 0.0
	for i, p := range x {
		var d float64
		labels[i], d = nearestCenter(p, centers)
		inertia += d
	}
	return &KMeansResult{Labels: labels, Centers: centers, Inertia: inertia, Iterations: iterations}, nil
}

// fillEmptyClusters 把离当前中心最远的样本移入空簇，sums 为各簇坐标和
func fillEmptyClusters(x Matrix, labels, counts []int, centers, sums [][]float64) {
	for c := range counts {
		if counts[c] > 0 {
			continue
		}
		far, farDist := -1, -1.0
		for i, p := range x {
			if counts[labels[i]] <= 1 {
				continue
			}
			if d := squaredDistance(p, centers[labels[i]]); d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			continue
		}
		old := labels[far]
		counts[old]--
		floats.Sub(sums[old], x[far])
		labels[far] = c
		counts[c] = 1
		copy(sums[c], x[far])
	}
}
