package registry

import (
	"clusterhub-service/service/clustering"
	"clusterhub-service/service/meta"
	"context"
	"errors"
)

func bound(v float64) *float64 {
	return &v
}

var seedParam = ParamSpec{
	Name:        "seed",
	Type:        ParamInt,
	Description: "随机种子，缺省时由编排器提供并记录",
}

func nClustersParam(required bool, def interface{}) ParamSpec {
	return ParamSpec{
		Name:        "n_clusters",
		Type:        ParamInt,
		Required:    required,
		Default:     def,
		Min:         bound(1),
		Description: "簇数",
	}
}

// Default 返回包含全部内置算法与估计器的注册表
func Default() *Registry {
	r := New()
	for _, entry := range builtinEntries() {
		if err := r.Register(entry); err != nil {
			panic(err)
		}
	}
	return r
}

func builtinEntries() []*Entry {
	linkages := make([]string, 0, len(meta.LinkageMethods))
	for _, m := range meta.LinkageMethods {
		linkages = append(linkages, m.Method)
	}

	return []*Entry{
		{
			Name:        "kmeans",
			Label:       "K-Means",
			Kind:        meta.AlgorithmKindClustering,
			Description: "k-means++ 初始化的 Lloyd 迭代，多次初始化取惯性最小者",
			Schema: []ParamSpec{
				nClustersParam(true, nil),
				{Name: "max_iter", Type: ParamInt, Default: 300, Min: bound(1), Description: "单次初始化的最大迭代次数"},
				{Name: "n_init", Type: ParamInt, Default: 10, Min: bound(1), Description: "初始化次数"},
				{Name: "tol", Type: ParamFloat, Default: 1e-4, Min: bound(0), Description: "相对收敛容差"},
				seedParam,
			},
			Run: func(ctx context.Context, x clustering.Matrix, p Params, seed int64) (*Output, error) {
				result, err := clustering.KMeans(ctx, x, clustering.KMeansOptions{
					NClusters: p.Int("n_clusters"),
					MaxIter:   p.Int("max_iter"),
					NInit:     p.Int("n_init"),
					Tol:       p.Float("tol"),
					Seed:      seed,
				})
				if err != nil {
					return nil, err
				}
				return &Output{Labels: result.Labels}, nil
			},
		},
		{
			Name:        "mini_batch_kmeans",
			Label:       "MiniBatch K-Means",
			Kind:        meta.AlgorithmKindClustering,
			Description: "小批量随机更新中心的 k-means 变体",
			Schema: []ParamSpec{
				nClustersParam(true, nil),
				{Name: "batch_size", Type: ParamInt, Default: 100, Min: bound(1), Description: "每批样本数"},
				{Name: "max_iter", Type: ParamInt, Default: 100, Min: bound(1), Description: "批次迭代次数"},
				seedParam,
			},
			Run: func(ctx context.Context, x clustering.Matrix, p Params, seed int64) (*Output, error) {
				result, err := clustering.MiniBatchKMeans(ctx, x, clustering.MiniBatchOptions{
					NClusters: p.Int("n_clusters"),
					BatchSize: p.Int("batch_size"),
					MaxIter:   p.Int("max_iter"),
					Seed:      seed,
				})
				if err != nil {
					return nil, err
				}
				return &Output{Labels: result.Labels}, nil
			},
		},
		{
			Name:        "birch",
			Label:       "Birch",
			Kind:        meta.AlgorithmKindClustering,
			Description: "CF 树汇总后对子簇做全局层次聚类",
			Schema: []ParamSpec{
				nClustersParam(false, 3),
				{Name: "threshold", Type: ParamFloat, Default: 0.5, Min: bound(0), ExclusiveMin: true, Description: "子簇半径上限"},
				{Name: "branching_factor", Type: ParamInt, Default: 50, Min: bound(2), Description: "节点最大条目数"},
				seedParam,
			},
			Run: func(ctx context.Context, x clustering.Matrix, p Params, _ int64) (*Output, error) {
				labels, err := clustering.Birch(ctx, x, clustering.BirchOptions{
					NClusters:       p.Int("n_clusters"),
					Threshold:       p.Float("threshold"),
					BranchingFactor: p.Int("branching_factor"),
				})
				return labelsOutput(labels, err)
			},
		},
		{
			Name:        "hierarchical",
			Label:       "Hierarchical",
			Kind:        meta.AlgorithmKindClustering,
			Description: "自底向上层次聚类",
			Schema: []ParamSpec{
				nClustersParam(true, nil),
				{Name: "linkage", Type: ParamEnum, Default: meta.LinkageWard, Enum: linkages, Description: "连接方式"},
				seedParam,
			},
			Run: func(ctx context.Context, x clustering.Matrix, p Params, _ int64) (*Output, error) {
				labels, err := clustering.Agglomerative(ctx, x, p.Int("n_clusters"), p.String("linkage"))
				return labelsOutput(labels, err)
			},
		},
		{
			Name:        "spectral",
			Label:       "Spectral",
			Kind:        meta.AlgorithmKindClustering,
			Description: "RBF 亲和矩阵的归一化谱嵌入上做 k-means",
			Schema: []ParamSpec{
				nClustersParam(true, nil),
				{Name: "gamma", Type: ParamFloat, Default: 1.0, Min: bound(0), ExclusiveMin: true, Description: "RBF 核系数"},
				seedParam,
			},
			Run: func(ctx context.Context, x clustering.Matrix, p Params, seed int64) (*Output, error) {
				labels, err := clustering.Spectral(ctx, x, clustering.SpectralOptions{
					NClusters: p.Int("n_clusters"),
					Gamma:     p.Float("gamma"),
					Seed:      seed,
				})
				return labelsOutput(labels, err)
			},
		},
		{
			Name:        "mean_shift",
			Label:       "MeanShift",
			Kind:        meta.AlgorithmKindClustering,
			Description: "平坦核均值漂移，簇数由数据决定",
			Schema: []ParamSpec{
				{Name: "bandwidth", Type: ParamFloat, Min: bound(0), ExclusiveMin: true, Description: "核带宽，缺省时自动估计"},
				{Name: "max_iter", Type: ParamInt, Default: 300, Min: bound(1), Description: "每个种子的最大迭代次数"},
				{Name: "cluster_all", Type: ParamBool, Default: true, Description: "为 false 时远离所有模态的样本标记为噪声"},
				seedParam,
			},
			Run: func(ctx context.Context, x clustering.Matrix, p Params, _ int64) (*Output, error) {
				labels, err := clustering.MeanShift(ctx, x, clustering.MeanShiftOptions{
					Bandwidth:  p.Float("bandwidth"),
					MaxIter:    p.Int("max_iter"),
					ClusterAll: p.Bool("cluster_all"),
				})
				return labelsOutput(labels, err)
			},
		},
		{
			Name:        "dbscan",
			Label:       "DBSCAN",
			Kind:        meta.AlgorithmKindClustering,
			Description: "基于密度的聚类，未被核心点覆盖的样本为噪声",
			Schema: []ParamSpec{
				{Name: "eps", Type: ParamFloat, Required: true, Min: bound(0), ExclusiveMin: true, Description: "邻域半径"},
				{Name: "min_samples", Type: ParamInt, Default: 5, Min: bound(1), Description: "核心点的最少邻居数（含自身）"},
				seedParam,
			},
			Run: func(ctx context.Context, x clustering.Matrix, p Params, _ int64) (*Output, error) {
				labels, err := clustering.DBSCAN(ctx, x, p.Float("eps"), p.Int("min_samples"))
				return labelsOutput(labels, err)
			},
		},
		{
			Name:        "optics",
			Label:       "OPTICS",
			Kind:        meta.AlgorithmKindClustering,
			Description: "可达性排序后按 eps 以 DBSCAN 方式提取簇",
			Schema: []ParamSpec{
				{Name: "min_samples", Type: ParamInt, Default: 5, Min: bound(1), Description: "核心点的最少邻居数（含自身）"},
				{Name: "max_eps", Type: ParamFloat, Min: bound(0), ExclusiveMin: true, Description: "邻域搜索半径上限，缺省为无穷"},
				{Name: "eps", Type: ParamFloat, Min: bound(0), ExclusiveMin: true, Description: "提取阈值，缺省为 max_eps"},
				seedParam,
			},
			Check: func(p Params) error {
				if p.Has("eps") && p.Has("max_eps") && p.Float("eps") > p.Float("max_eps") {
					return errors.New("eps 不能大于 max_eps")
				}
				return nil
			},
			Run: func(ctx context.Context, x clustering.Matrix, p Params, _ int64) (*Output, error) {
				result, err := clustering.OPTICS(ctx, x, clustering.OPTICSOptions{
					MinSamples: p.Int("min_samples"),
					MaxEps:     p.Float("max_eps"),
					Eps:        p.Float("eps"),
				})
				if err != nil {
					return nil, err
				}
				return &Output{Labels: result.Labels}, nil
			},
		},
		estimatorEntry("elbow", "Elbow", "每个候选 k 的簇内平方和曲线", 1, false, clustering.Elbow),
		estimatorEntry("silhouette", "Silhouette", "每个候选 k 的平均轮廓系数，建议得分最高的 k", 2, false, clustering.SilhouetteEstimate),
		estimatorEntry("gap_statistic", "Gap Statistic", "与均匀参照分布比较的间隙统计量", 1, true, clustering.GapStatistic),
	}
}

type estimateFunc func(ctx context.Context, x clustering.Matrix, opts clustering.EstimateOptions) (*clustering.EstimateResult, error)

func estimatorEntry(name, label, description string, minK float64, withRefs bool, estimate estimateFunc) *Entry {
	schema := []ParamSpec{
		{Name: "k", Type: ParamInt, Min: bound(minK), Description: "单个候选簇数，给出时覆盖 k_min/k_max"},
		{Name: "k_min", Type: ParamInt, Default: 2, Min: bound(minK), Description: "候选簇数下限"},
		{Name: "k_max", Type: ParamInt, Default: 10, Min: bound(minK), Description: "候选簇数上限"},
	}
	if withRefs {
		schema = append(schema, ParamSpec{Name: "n_refs", Type: ParamInt, Default: 10, Min: bound(1), Description: "参照分布重采样次数"})
	}
	schema = append(schema, seedParam)

	return &Entry{
		Name:        name,
		Label:       label,
		Kind:        meta.AlgorithmKindEstimator,
		Description: description,
		Schema:      schema,
		Check: func(p Params) error {
			if !p.Has("k") && p.Int("k_min") > p.Int("k_max") {
				return errors.New("k_min 不能大于 k_max")
			}
			return nil
		},
		Run: func(ctx context.Context, x clustering.Matrix, p Params, seed int64) (*Output, error) {
			opts := clustering.EstimateOptions{
				KMin:  p.Int("k_min"),
				KMax:  p.Int("k_max"),
				NRefs: p.Int("n_refs"),
				Seed:  seed,
			}
			if p.Has("k") {
				opts.KMin, opts.KMax = p.Int("k"), p.Int("k")
			}
			result, err := estimate(ctx, x, opts)
			if err != nil {
				return nil, err
			}
			return &Output{Curve: result.Curve, SuggestedK: result.SuggestedK}, nil
		},
	}
}

func labelsOutput(labels []int, err error) (*Output, error) {
	if err != nil {
		return nil, err
	}
	return &Output{Labels: labels}, nil
}
