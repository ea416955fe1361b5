package registry

import (
	"clusterhub-service/service/clustering"
	"clusterhub-service/service/meta"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_ListsEveryBuiltin(t *testing.T) {
	r := Default()

	var clusteringNames, estimatorNames []string
	for _, e := range r.List(meta.AlgorithmKindClustering) {
		clusteringNames = append(clusteringNames, e.Name)
	}
	for _, e := range r.List(meta.AlgorithmKindEstimator) {
		estimatorNames = append(estimatorNames, e.Name)
	}

	assert.Equal(t, []string{"kmeans", "mini_batch_kmeans", "birch", "hierarchical", "spectral", "mean_shift", "dbscan", "optics"}, clusteringNames)
	assert.Equal(t, []string{"elbow", "silhouette", "gap_statistic"}, estimatorNames)
	assert.Len(t, r.List(""), 11)
}

func TestDefault_SchemaSerializable(t *testing.T) {
	for _, e := range Default().List("") {
		_, err := json.Marshal(e)
		assert.NoError(t, err, e.Name)
		_, ok := e.Param("seed")
		assert.True(t, ok, "%s 应接受 seed", e.Name)
	}
}

func TestDescribe_Unknown(t *testing.T) {
	_, err := Default().Describe("affinity_propagation")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestRegister_Duplicate(t *testing.T) {
	r := Default()
	err := r.Register(&Entry{Name: "kmeans", Run: func(context.Context, clustering.Matrix, Params, int64) (*Output, error) { return nil, nil }})
	assert.Error(t, err)
}

func TestValidate_AppliesDefaults(t *testing.T) {
	params, err := Default().Validate("kmeans", map[string]interface{}{"n_clusters": float64(3)})
	require.NoError(t, err)

	assert.Equal(t, 3, params["n_clusters"])
	assert.Equal(t, 300, params.Int("max_iter"))
	assert.Equal(t, 10, params.Int("n_init"))
	assert.Equal(t, 1e-4, params.Float("tol"))
	assert.False(t, params.Has("seed"))
}

func TestValidate_Rejections(t *testing.T) {
	r := Default()
	cases := []struct {
		name      string
		algorithm string
		raw       map[string]interface{}
	}{
		{"缺少必填参数", "kmeans", map[string]interface{}{}},
		{"簇数小于1", "kmeans", map[string]interface{}{"n_clusters": 0}},
		{"整数参数为小数", "kmeans", map[string]interface{}{"n_clusters": 2.5}},
		{"整数参数为布尔", "kmeans", map[string]interface{}{"n_clusters": true}},
		{"整数参数为非数字字符串", "kmeans", map[string]interface{}{"n_clusters": "three"}},
		{"未知参数", "kmeans", map[string]interface{}{"n_clusters": 2, "foo": 1}},
		{"eps 为0", "dbscan", map[string]interface{}{"eps": 0}},
		{"eps 缺失", "dbscan", map[string]interface{}{"min_samples": 3}},
		{"min_samples 为0", "dbscan", map[string]interface{}{"eps": 0.3, "min_samples": 0}},
		{"未知连接方式", "hierarchical", map[string]interface{}{"n_clusters": 2, "linkage": "centroid"}},
		{"连接方式非字符串", "hierarchical", map[string]interface{}{"n_clusters": 2, "linkage": 1}},
		{"轮廓系数 k=1", "silhouette", map[string]interface{}{"k": 1}},
		{"轮廓系数 k_min=1", "silhouette", map[string]interface{}{"k_min": 1}},
		{"k_min 大于 k_max", "elbow", map[string]interface{}{"k_min": 5, "k_max": 3}},
		{"n_refs 为0", "gap_statistic", map[string]interface{}{"n_refs": 0}},
		{"eps 大于 max_eps", "optics", map[string]interface{}{"eps": 2, "max_eps": 1}},
		{"gamma 为负", "spectral", map[string]interface{}{"n_clusters": 2, "gamma": -1}},
		{"branching_factor 为1", "birch", map[string]interface{}{"branching_factor": 1}},
		{"cluster_all 非布尔", "mean_shift", map[string]interface{}{"cluster_all": "maybe"}},
		{"种子超出整数上限", "kmeans", map[string]interface{}{"n_clusters": 2, "seed": 1e19}},
		{"种子超出整数下限", "kmeans", map[string]interface{}{"n_clusters": 2, "seed": -1e19}},
		{"种子为 2^63", "kmeans", map[string]interface{}{"n_clusters": 2, "seed": json.Number("9223372036854775808")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Validate(tc.algorithm, tc.raw)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func TestValidate_Coercion(t *testing.T) {
	r := Default()

	params, err := r.Validate("dbscan", map[string]interface{}{"eps": "0.25", "min_samples": json.Number("4")})
	require.NoError(t, err)
	assert.Equal(t, 0.25, params.Float("eps"))
	assert.Equal(t, 4, params.Int("min_samples"))

	params, err = r.Validate("hierarchical", map[string]interface{}{"n_clusters": 4.0, "seed": 7})
	require.NoError(t, err)
	assert.Equal(t, meta.LinkageWard, params.String("linkage"))
	assert.Equal(t, 7, params.Int("seed"))

	params, err = r.Validate("kmeans", map[string]interface{}{"n_clusters": 2, "seed": float64(1 << 62)})
	require.NoError(t, err)
	assert.Equal(t, 1<<62, params.Int("seed"))
}

func TestValidate_UnknownAlgorithm(t *testing.T) {
	_, err := Default().Validate("nope", nil)
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestRun_KMeans(t *testing.T) {
	r := Default()
	x := clustering.Matrix{{0, 0}, {0.1, 0}, {10, 10}, {10.1, 10}}
	params, err := r.Validate("kmeans", map[string]interface{}{"n_clusters": 2})
	require.NoError(t, err)

	out, err := r.Run(context.Background(), "kmeans", x, params, 42)
	require.NoError(t, err)
	require.Len(t, out.Labels, 4)
	assert.Equal(t, out.Labels[0], out.Labels[1])
	assert.NotEqual(t, out.Labels[0], out.Labels[2])
}

func TestRun_EstimatorSingleK(t *testing.T) {
	r := Default()
	x := clustering.Matrix{{0}, {0.1}, {5}, {5.1}, {10}, {10.1}}
	params, err := r.Validate("elbow", map[string]interface{}{"k": 3})
	require.NoError(t, err)

	out, err := r.Run(context.Background(), "elbow", x, params, 1)
	require.NoError(t, err)
	require.Len(t, out.Curve, 1)
	assert.Equal(t, 3, out.Curve[0].K)
	assert.Nil(t, out.Labels)
}

func TestRun_DBSCANAllNoise(t *testing.T) {
	r := Default()
	x := clustering.Matrix{{0}, {1}, {2}, {3}, {4}}
	params, err := r.Validate("dbscan", map[string]interface{}{"eps": 0.01, "min_samples": 10})
	require.NoError(t, err)

	out, err := r.Run(context.Background(), "dbscan", x, params, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{-1, -1, -1, -1, -1}, out.Labels)
}
