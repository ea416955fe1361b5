package clustering

import (
	"clusterhub-service/service/meta"
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// BirchOptions BIRCH 参数
type BirchOptions struct {
	NClusters       int
	Threshold       float64
	BranchingFactor int
}

// cfEntry 聚类特征 (N, LS, SS)，非叶节点条目同时指向子节点
type cfEntry struct {
	n     int
	ls    []float64
	ss    float64
	child *cfNode
}

type cfNode struct {
	leaf    bool
	entries []*cfEntry
}

func newPointEntry(p []float64) *cfEntry {
	return &cfEntry{n: 1, ls: copyRow(p), ss: floats.Dot(p, p)}
}

func (e *cfEntry) centroid() []float64 {
	c := copyRow(e.ls)
	floats.Scale(1/float64(e.n), c)
	return c
}

func (e *cfEntry) addPoint(p []float64) {
	e.n++
	floats.Add(e.ls, p)
	e.ss += floats.Dot(p, p)
}

func (e *cfEntry) merge(o *cfEntry) {
	e.n += o.n
	floats.Add(e.ls, o.ls)
	e.ss += o.ss
}

// radiusWith 吸收 p 之后的子簇半径
func (e *cfEntry) radiusWith(p []float64) float64 {
	n := float64(e.n + 1)
	ls := copyRow(e.ls)
	floats.Add(ls, p)
	r2 := (e.ss+floats.Dot(p, p))/n - floats.Dot(ls, ls)/(n*n)
	if r2 < 0 {
		return 0
	}
	return math.Sqrt(r2)
}

type cfTree struct {
	root      *cfNode
	threshold float64
	branching int
}

func (t *cfTree) insert(p []float64) {
	if split := t.insertInto(t.root, p); split != nil {
		t.root = &cfNode{entries: split}
	}
}

// insertInto 返回非 nil 时表示 node 已分裂，调用方用返回的两个条目替换原条目
func (t *cfTree) insertInto(node *cfNode, p []float64) []*cfEntry {
	if node.leaf {
		absorbed := false
		if len(node.entries) > 0 {
			e := node.entries[closestEntry(node.entries, p)]
			if e.radiusWith(p) <= t.threshold {
				e.addPoint(p)
				absorbed = true
			}
		}
		if !absorbed {
			node.entries = append(node.entries, newPointEntry(p))
		}
	} else {
		idx := closestEntry(node.entries, p)
		if split := t.insertInto(node.entries[idx].child, p); split != nil {
			entries := make([]*cfEntry, 0, len(node.entries)+1)
			entries = append(entries, node.entries[:idx]...)
			entries = append(entries, split...)
			entries = append(entries, node.entries[idx+1:]...)
			node.entries = entries
		} else {
			node.entries[idx].addPoint(p)
		}
	}

	if len(node.entries) <= t.branching {
		return nil
	}
	return splitNode(node)
}

func closestEntry(entries []*cfEntry, p []float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, e := range entries {
		if d := squaredDistance(e.centroid(), p); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// splitNode 以质心最远的两个条目为种子把节点一分为二
func splitNode(node *cfNode) []*cfEntry {
	centroids := make([][]float64, len(node.entries))
	for i, e := range node.entries {
		centroids[i] = e.centroid()
	}
	a, b, farthest := 0, 1, -1.0
	for i := range centroids {
		for j := i + 1; j < len(centroids); j++ {
			if d := squaredDistance(centroids[i], centroids[j]); d > farthest {
				a, b, farthest = i, j, d
			}
		}
	}

	left := &cfNode{leaf: node.leaf}
	right := &cfNode{leaf: node.leaf}
	for i, e := range node.entries {
		switch {
		case i == a:
			left.entries = append(left.entries, e)
		case i == b:
			right.entries = append(right.entries, e)
		case squaredDistance(centroids[i], centroids[a]) <= squaredDistance(centroids[i], centroids[b]):
			left.entries = append(left.entries, e)
		default:
			right.entries = append(right.entries, e)
		}
	}
	return []*cfEntry{summarize(left), summarize(right)}
}

func summarize(node *cfNode) *cfEntry {
	e := &cfEntry{ls: make([]float64, len(node.entries[0].ls)), child: node}
	for _, c := range node.entries {
		e.merge(c)
	}
	return e
}

func (t *cfTree) subclusters() [][]float64 {
	var centroids [][]float64
	var walk func(node *cfNode)
	walk = func(node *cfNode) {
		for _, e := range node.entries {
			if node.leaf {
				centroids = append(centroids, e.centroid())
			} else {
				walk(e.child)
			}
		}
	}
	walk(t.root)
	return centroids
}

// Birch 构建 CF 树得到叶子子簇，再对子簇质心做 ward 层次聚类，样本取最近子簇的标签。
// 子簇数少于 NClusters 时以子簇数为准
func Birch(ctx context.Context, x Matrix, opts BirchOptions) ([]int, error) {
	if err := checkClusterCount(x, opts.NClusters); err != nil {
		return nil, err
	}
	if opts.Threshold <= 0 {
		return nil, fmt.Errorf("threshold 必须大于0")
	}
	if opts.BranchingFactor < 2 {
		return nil, fmt.Errorf("branching_factor 必须大于等于2")
	}

	tree := &cfTree{
		root:      &cfNode{leaf: true},
		threshold: opts.Threshold,
		branching: opts.BranchingFactor,
	}
	for i, p := range x {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tree.insert(p)
	}

	centroids := tree.subclusters()
	k := opts.NClusters
	if k > len(centroids) {
		k = len(centroids)
	}
	subLabels, err := Agglomerative(ctx, centroids, k, meta.LinkageWard)
	if err != nil {
		return nil, err
	}

	labels := make([]int, x.Rows())
	for i, p := range x {
		c, _ := nearestCenter(p, centroids)
		labels[i] = subLabels[c]
	}
	return relabel(labels, meta.NoiseLabel), nil
}
