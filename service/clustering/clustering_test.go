package clustering

import (
	"clusterhub-service/service/meta"
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var blobCenters = [][]float64{{0, 0}, {10, 10}, {20, 0}}

// makeBlobs 生成围绕 centers 的高斯团，返回矩阵与每个样本所属团
func makeBlobs(seed int64, centers [][]float64, perBlob int, std float64) (Matrix, []int) {
	rng := rand.New(rand.NewSource(seed))
	var x Matrix
	var truth []int
	for c, center := range centers {
		for i := 0; i < perBlob; i++ {
			row := make([]float64, len(center))
			for d := range row {
				row[d] = center[d] + rng.NormFloat64()*std
			}
			x = append(x, row)
			truth = append(truth, c)
		}
	}
	return x, truth
}

func assertSeparates(t *testing.T, labels, truth []int) {
	t.Helper()
	require.Len(t, labels, len(truth))
	blobLabel := map[int]int{}
	seen := map[int]bool{}
	for i, blob := range truth {
		if l, ok := blobLabel[blob]; ok {
			assert.Equal(t, l, labels[i], "样本 %d 应与同团样本同簇", i)
			continue
		}
		assert.False(t, seen[labels[i]], "不同团不应共享标签 %d", labels[i])
		blobLabel[blob] = labels[i]
		seen[labels[i]] = true
	}
}

func TestKMeans_SeparatesBlobs(t *testing.T) {
	x, truth := makeBlobs(1, blobCenters, 30, 0.3)

	result, err := KMeans(context.Background(), x, KMeansOptions{NClusters: 3, Seed: 42})
	require.NoError(t, err)

	assertSeparates(t, result.Labels, truth)
	assert.Len(t, result.Centers, 3)
	assert.Greater(t, result.Iterations, 0)
	assert.Less(t, result.Inertia, 90*0.3*0.3*4)
}

func TestKMeans_Deterministic(t *testing.T) {
	x, _ := makeBlobs(7, blobCenters, 20, 2.5)
	opts := KMeansOptions{NClusters: 4, NInit: 3, Seed: 99}

	first, err := KMeans(context.Background(), x, opts)
	require.NoError(t, err)
	second, err := KMeans(context.Background(), x, opts)
	require.NoError(t, err)

	assert.Equal(t, first.Labels, second.Labels)
	assert.Equal(t, first.Inertia, second.Inertia)
}

func TestKMeans_TooManyClusters(t *testing.T) {
	x := Matrix{{0, 0}, {1, 1}}
	_, err := KMeans(context.Background(), x, KMeansOptions{NClusters: 3})
	assert.ErrorIs(t, err, ErrTooFewSamples)
}

func TestKMeans_DuplicatePoints(t *testing.T) {
	x := Matrix{{1, 1}, {1, 1}, {1, 1}, {5, 5}}
	result, err := KMeans(context.Background(), x, KMeansOptions{NClusters: 3, Seed: 1})
	require.NoError(t, err)

	require.Len(t, result.Labels, 4)
	assert.NotEqual(t, result.Labels[0], result.Labels[3])
	assert.Equal(t, result.Labels[0], result.Labels[1])
}

func TestKMeans_Cancelled(t *testing.T) {
	x, _ := makeBlobs(1, blobCenters, 10, 0.3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := KMeans(ctx, x, KMeansOptions{NClusters: 3})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMiniBatchKMeans(t *testing.T) {
	x, _ := makeBlobs(3, blobCenters, 30, 0.3)
	opts := MiniBatchOptions{NClusters: 3, BatchSize: 20, MaxIter: 50, Seed: 5}

	first, err := MiniBatchKMeans(context.Background(), x, opts)
	require.NoError(t, err)
	second, err := MiniBatchKMeans(context.Background(), x, opts)
	require.NoError(t, err)

	assert.Len(t, first.Labels, 90)
	assert.Equal(t, first.Labels, second.Labels)
	for _, l := range first.Labels {
		assert.True(t, l >= 0 && l < 3)
	}
}

func TestAgglomerative_Linkages(t *testing.T) {
	x, truth := makeBlobs(2, blobCenters, 15, 0.3)
	for _, linkage := range []string{meta.LinkageWard, meta.LinkageSingle, meta.LinkageComplete, meta.LinkageAverage} {
		t.Run(linkage, func(t *testing.T) {
			labels, err := Agglomerative(context.Background(), x, 3, linkage)
			require.NoError(t, err)
			assertSeparates(t, labels, truth)
			assert.Equal(t, 0, labels[0], "标签按首次出现顺序编号")
		})
	}
}

func TestAgglomerative_UnknownLinkage(t *testing.T) {
	x := Matrix{{0}, {1}, {2}}
	_, err := Agglomerative(context.Background(), x, 2, "centroid")
	assert.Error(t, err)
}

func TestAgglomerative_SingleCluster(t *testing.T) {
	x := Matrix{{0}, {1}, {5}}
	labels, err := Agglomerative(context.Background(), x, 1, meta.LinkageAverage)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, labels)
}

func TestDBSCAN_ClustersAndNoise(t *testing.T) {
	x, truth := makeBlobs(4, blobCenters, 20, 0.3)
	x = append(x, []float64{100, 100})

	labels, err := DBSCAN(context.Background(), x, 1.5, 3)
	require.NoError(t, err)

	assertSeparates(t, labels[:60], truth)
	assert.Equal(t, meta.NoiseLabel, labels[60])
}

func TestDBSCAN_AllNoise(t *testing.T) {
	x := Matrix{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {2, 2}}

	labels, err := DBSCAN(context.Background(), x, 0.01, 10)
	require.NoError(t, err)
	for _, l := range labels {
		assert.Equal(t, meta.NoiseLabel, l)
	}
}

func TestOPTICS_ExtractsAtEps(t *testing.T) {
	x, truth := makeBlobs(5, blobCenters, 20, 0.3)
	x = append(x, []float64{-50, 40})

	result, err := OPTICS(context.Background(), x, OPTICSOptions{MinSamples: 3, Eps: 2})
	require.NoError(t, err)

	assertSeparates(t, result.Labels[:60], truth)
	assert.Equal(t, meta.NoiseLabel, result.Labels[60])
	assert.Len(t, result.Ordering, 61)
}

func TestOPTICS_TooFewSamplesAllNoise(t *testing.T) {
	x := Matrix{{0}, {1}, {2}}
	result, err := OPTICS(context.Background(), x, OPTICSOptions{MinSamples: 5})
	require.NoError(t, err)
	assert.Equal(t, []int{-1, -1, -1}, result.Labels)
}

func TestMeanShift(t *testing.T) {
	x, truth := makeBlobs(6, blobCenters, 15, 0.3)

	labels, err := MeanShift(context.Background(), x, MeanShiftOptions{Bandwidth: 2, ClusterAll: true})
	require.NoError(t, err)
	assertSeparates(t, labels, truth)
}

func TestMeanShift_EstimatedBandwidth(t *testing.T) {
	x, _ := makeBlobs(6, blobCenters, 20, 0.2)

	labels, err := MeanShift(context.Background(), x, MeanShiftOptions{ClusterAll: true})
	require.NoError(t, err)
	require.Len(t, labels, 60)
	for _, l := range labels {
		assert.GreaterOrEqual(t, l, 0)
	}
	assert.NotEqual(t, labels[0], labels[59])
}

func TestEstimateBandwidth(t *testing.T) {
	x, _ := makeBlobs(8, blobCenters, 20, 0.3)
	bw, err := EstimateBandwidth(context.Background(), x, 0.3)
	require.NoError(t, err)
	assert.Greater(t, bw, 0.0)

	_, err = EstimateBandwidth(context.Background(), Matrix{{1, 1}, {1, 1}}, 0.3)
	assert.Error(t, err)
}

func TestBirch(t *testing.T) {
	x, truth := makeBlobs(9, blobCenters, 30, 0.3)

	labels, err := Birch(context.Background(), x, BirchOptions{NClusters: 3, Threshold: 0.5, BranchingFactor: 4})
	require.NoError(t, err)
	assertSeparates(t, labels, truth)
}

func TestBirch_FewerSubclustersThanRequested(t *testing.T) {
	x := Matrix{{0, 0}, {0.1, 0}, {0, 0.1}}
	labels, err := Birch(context.Background(), x, BirchOptions{NClusters: 3, Threshold: 5, BranchingFactor: 50})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, labels)
}

func TestSpectral(t *testing.T) {
	x, truth := makeBlobs(10, blobCenters, 15, 0.3)

	labels, err := Spectral(context.Background(), x, SpectralOptions{NClusters: 3, Gamma: 1, Seed: 42})
	require.NoError(t, err)
	assertSeparates(t, labels, truth)
}

func TestElbow(t *testing.T) {
	x, _ := makeBlobs(11, blobCenters, 20, 0.3)

	result, err := Elbow(context.Background(), x, EstimateOptions{KMin: 1, KMax: 5, Seed: 1})
	require.NoError(t, err)
	require.Len(t, result.Curve, 5)
	assert.Equal(t, 1, result.Curve[0].K)
	assert.Greater(t, result.Curve[0].Score, result.Curve[2].Score)
	assert.Zero(t, result.SuggestedK)
}

func TestSilhouetteEstimate(t *testing.T) {
	x, _ := makeBlobs(12, blobCenters, 20, 0.3)

	result, err := SilhouetteEstimate(context.Background(), x, EstimateOptions{KMin: 2, KMax: 6, Seed: 1})
	require.NoError(t, err)
	assert.Len(t, result.Curve, 5)
	assert.Equal(t, 3, result.SuggestedK)

	_, err = SilhouetteEstimate(context.Background(), x, EstimateOptions{KMin: 1, KMax: 3})
	assert.Error(t, err)
}

func TestGapStatistic(t *testing.T) {
	x, _ := makeBlobs(13, blobCenters, 15, 0.3)
	opts := EstimateOptions{KMin: 1, KMax: 4, NRefs: 3, NInit: 2, Seed: 7}

	first, err := GapStatistic(context.Background(), x, opts)
	require.NoError(t, err)
	second, err := GapStatistic(context.Background(), x, opts)
	require.NoError(t, err)

	require.Len(t, first.Curve, 4)
	for _, p := range first.Curve {
		require.NotNil(t, p.StdErr)
	}
	assert.Equal(t, first.Curve, second.Curve)
	assert.GreaterOrEqual(t, first.SuggestedK, 1)
	assert.LessOrEqual(t, first.SuggestedK, 4)

	opts.NRefs = 0
	_, err = GapStatistic(context.Background(), x, opts)
	assert.Error(t, err)
}

func TestRelabel(t *testing.T) {
	assert.Equal(t, []int{0, 0, 1, -1, 2}, relabel([]int{7, 7, 3, -1, 9}, -1))
}
