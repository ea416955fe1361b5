package clustering

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SpectralOptions 谱聚类参数
type SpectralOptions struct {
	NClusters int
	Gamma     float64
	Seed      int64
}

// Spectral 以 RBF 核构造亲和矩阵，取 D^-1/2 A D^-1/2 的前 k 个特征向量，
// 行归一化后用 k-means 划分
func Spectral(ctx context.Context, x Matrix, opts SpectralOptions) ([]int, error) {
	if err := checkClusterCount(x, opts.NClusters); err != nil {
		return nil, err
	}
	gamma := opts.Gamma
	if gamma <= 0 {
		gamma = 1.0
	}

	n := x.Rows()
	affinity := make([]float64, n*n)
	degree := make([]float64, n)
	for i := 0; i < n; i++ {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for j := i; j < n; j++ {
			a := math.Exp(-gamma * squaredDistance(x[i], x[j]))
			affinity[i*n+j] = a
			affinity[j*n+i] = a
		}
	}
	for i := 0; i < n; i++ {
		degree[i] = floats.Sum(affinity[i*n : (i+1)*n])
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			affinity[i*n+j] /= math.Sqrt(degree[i] * degree[j])
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(mat.NewSymDense(n, affinity), true); !ok {
		return nil, ErrNotConverged
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// 特征值升序排列，取最后 k 列
	k := opts.NClusters
	embedding := make(Matrix, n)
	for i := 0; i < n; i++ {
		row := make([]float64, k)
		for c := 0; c < k; c++ {
			row[c] = vectors.At(i, n-k+c)
		}
		if norm := floats.Norm(row, 2); norm > 0 {
			floats.Scale(1/norm, row)
		}
		embedding[i] = row
	}

	result, err := KMeans(ctx, embedding, KMeansOptions{NClusters: k, NInit: 10, MaxIter: 300, Tol: 1e-4, Seed: opts.Seed})
	if err != nil {
		return nil, err
	}
	return result.Labels, nil
}
