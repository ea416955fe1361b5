package clustering

import (
	"clusterhub-service/service/validity"
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// EstimateOptions 簇数估计参数，候选 k 为 [KMin, KMax] 闭区间
type EstimateOptions struct {
	KMin  int
	KMax  int
	NRefs int
	Seed  int64
	NInit int
}

// CurvePoint 估计曲线上的一个点，StdErr 仅 gap statistic 提供
type CurvePoint struct {
	K      int
	Score  float64
	StdErr *float64
}

// EstimateResult 估计结果，SuggestedK 为 0 表示不给出建议
type EstimateResult struct {
	Curve      []CurvePoint
	SuggestedK int
}

func (o EstimateOptions) kmeans(k int, seed int64) KMeansOptions {
	nInit := o.NInit
	if nInit <= 0 {
		nInit = 10
	}
	return KMeansOptions{NClusters: k, MaxIter: 300, NInit: nInit, Tol: 1e-4, Seed: seed}
}

func checkRange(x Matrix, o EstimateOptions, minK int) error {
	if err := x.Validate(); err != nil {
		return err
	}
	if o.KMin < minK || o.KMax < o.KMin {
		return fmt.Errorf("候选簇数范围无效: [%d, %d]", o.KMin, o.KMax)
	}
	return nil
}

// Elbow 每个候选 k 的簇内平方和，只返回曲线不给出建议
func Elbow(ctx context.Context, x Matrix, opts EstimateOptions) (*EstimateResult, error) {
	if err := checkRange(x, opts, 1); err != nil {
		return nil, err
	}
	result := &EstimateResult{}
	for k := opts.KMin; k <= opts.KMax; k++ {
		km, err := KMeans(ctx, x, opts.kmeans(k, opts.Seed))
		if err != nil {
			return nil, err
		}
		result.Curve = append(result.Curve, CurvePoint{K: k, Score: km.Inertia})
	}
	return result, nil
}

// SilhouetteEstimate 每个候选 k 的平均轮廓系数，建议值为得分最高的 k
func SilhouetteEstimate(ctx context.Context, x Matrix, opts EstimateOptions) (*EstimateResult, error) {
	if err := checkRange(x, opts, 2); err != nil {
		return nil, err
	}
	if opts.KMax >= x.Rows() {
		return nil, fmt.Errorf("%w: 轮廓系数要求 k 小于样本数, k=%d, 样本数=%d", ErrTooFewSamples, opts.KMax, x.Rows())
	}
	result := &EstimateResult{}
	best := math.Inf(-1)
	for k := opts.KMin; k <= opts.KMax; k++ {
		km, err := KMeans(ctx, x, opts.kmeans(k, opts.Seed))
		if err != nil {
			return nil, err
		}
		score, ok := validity.Silhouette(x, km.Labels)
		if !ok {
			return nil, fmt.Errorf("k=%d 时 k-means 仅得到少于2个有效簇，轮廓系数无定义", k)
		}
		result.Curve = append(result.Curve, CurvePoint{K: k, Score: score})
		if score > best {
			best = score
			result.SuggestedK = k
		}
	}
	return result, nil
}

// GapStatistic 以特征包围盒内的均匀分布为参照，比较 log(W_k) 与参照期望。
// 建议值取满足 Gap(k) >= Gap(k+1) - s(k+1) 的最小 k，不存在时取 Gap 最大的 k
func GapStatistic(ctx context.Context, x Matrix, opts EstimateOptions) (*EstimateResult, error) {
	if err := checkRange(x, opts, 1); err != nil {
		return nil, err
	}
	if opts.NRefs < 1 {
		return nil, fmt.Errorf("n_refs 必须大于等于1")
	}

	lower, upper := boundingBox(x)
	rng := rand.New(rand.NewSource(opts.Seed))
	refs := make([]Matrix, opts.NRefs)
	refSeeds := make([]int64, opts.NRefs)
	for b := range refs {
		refs[b] = uniformSample(rng, x.Rows(), lower, upper)
		refSeeds[b] = rng.Int63()
	}

	result := &EstimateResult{}
	gaps := make([]float64, 0, opts.KMax-opts.KMin+1)
	errs := make([]float64, 0, cap(gaps))
	refLogs := make([]float64, opts.NRefs)
	for k := opts.KMin; k <= opts.KMax; k++ {
		km, err := KMeans(ctx, x, opts.kmeans(k, opts.Seed))
		if err != nil {
			return nil, err
		}
		for b, ref := range refs {
			refKM, err := KMeans(ctx, ref, opts.kmeans(k, refSeeds[b]))
			if err != nil {
				return nil, err
			}
			refLogs[b] = safeLog(refKM.Inertia)
		}
		mean, variance := stat.PopMeanVariance(refLogs, nil)
		gap := mean - safeLog(km.Inertia)
		sk := math.Sqrt(variance) * math.Sqrt(1+1/float64(opts.NRefs))
		gaps = append(gaps, gap)
		errs = append(errs, sk)
		stdErr := sk
		result.Curve = append(result.Curve, CurvePoint{K: k, Score: gap, StdErr: &stdErr})
	}

	for i := 0; i+1 < len(gaps); i++ {
		if gaps[i] >= gaps[i+1]-errs[i+1] {
			result.SuggestedK = opts.KMin + i
			return result, nil
		}
	}
	best := 0
	for i := range gaps {
		if gaps[i] > gaps[best] {
			best = i
		}
	}
	result.SuggestedK = opts.KMin + best
	return result, nil
}

func safeLog(v float64) float64 {
	return math.Log(math.Max(v, math.SmallestNonzeroFloat64))
}

func boundingBox(x Matrix) ([]float64, []float64) {
	lower := copyRow(x[0])
	upper := copyRow(x[0])
	for _, row := range x[1:] {
		for d, v := range row {
			lower[d] = math.Min(lower[d], v)
			upper[d] = math.Max(upper[d], v)
		}
	}
	return lower, upper
}

func uniformSample(rng *rand.Rand, n int, lower, upper []float64) Matrix {
	out := make(Matrix, n)
	for i := range out {
		row := make([]float64, len(lower))
		for d := range row {
			row[d] = lower[d] + rng.Float64()*(upper[d]-lower[d])
		}
		out[i] = row
	}
	return out
}
