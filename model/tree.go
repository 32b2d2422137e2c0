package model

import (
	"math"
	"sort"
)

// leafFeature 标记叶子节点
const leafFeature = -1

// minSplitGain 以下的增益视为浮点噪声，不分裂
const minSplitGain = 1e-12

// TreeNode 是扁平存储的回归树节点。
// 内部节点：x[Feature] < Threshold 走 Left，否则走 Right；叶子节点 Feature = -1。
// Cover 是训练时到达该节点的样本数，TreeSHAP 用它估计条件期望。
type TreeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Cover     float64 `json:"cover"`
}

// IsLeaf 是否叶子
func (n *TreeNode) IsLeaf() bool { return n.Feature == leafFeature }

// Tree 是一棵回归树，根节点下标为 0。
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// Predict 返回 x 落入叶子的值
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// ExpectedValue 返回按 cover 加权的叶子期望值
func (t *Tree) ExpectedValue() float64 {
	if len(t.Nodes) == 0 || t.Nodes[0].Cover == 0 {
		return 0
	}
	var sum float64
	for i := range t.Nodes {
		if n := &t.Nodes[i]; n.IsLeaf() {
			sum += n.Value * n.Cover
		}
	}
	return sum / t.Nodes[0].Cover
}

// Depth 返回最大深度（仅根为 0）
func (t *Tree) Depth() int {
	var walk func(i, d int) int
	walk = func(i, d int) int {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return d
		}
		return max(walk(n.Left, d+1), walk(n.Right, d+1))
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0, 0)
}

// treeBuilder 用二阶梯度做精确贪心分裂。
// 特征按 schema 顺序遍历，同分时保留先出现的分裂点。
type treeBuilder struct {
	x              [][]float64
	grad           []float64
	hess           []float64
	maxDepth       int
	lambda         float64
	minChildWeight float64
	learningRate   float64

	nodes []TreeNode
}

type splitCandidate struct {
	feature   int
	threshold float64
	gain      float64
}

func (b *treeBuilder) build(rows []int) *Tree {
	b.nodes = b.nodes[:0]
	b.grow(rows, 0)
	return &Tree{Nodes: append([]TreeNode(nil), b.nodes...)}
}

func (b *treeBuilder) grow(rows []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{Feature: leafFeature, Cover: float64(len(rows))})

	g, h := b.sums(rows)
	if depth < b.maxDepth && len(rows) >= 2 {
		if best := b.bestSplit(rows, g, h); best != nil {
			lrows, rrows := b.partition(rows, best)
			left := b.grow(lrows, depth+1)
			right := b.grow(rrows, depth+1)
			n := &b.nodes[idx]
			n.Feature = best.feature
			n.Threshold = best.threshold
			n.Left = left
			n.Right = right
			return idx
		}
	}
	b.nodes[idx].Value = b.leafValue(g, h)
	return idx
}

func (b *treeBuilder) sums(rows []int) (g, h float64) {
	for _, r := range rows {
		g += b.grad[r]
		h += b.hess[r]
	}
	return g, h
}

func (b *treeBuilder) leafValue(g, h float64) float64 {
	den := h + b.lambda
	if den <= 0 {
		return 0
	}
	return -g / den * b.learningRate
}

func (b *treeBuilder) score(g, h float64) float64 {
	den := h + b.lambda
	if den <= 0 {
		return 0
	}
	return g * g / den
}

func (b *treeBuilder) bestSplit(rows []int, g, h float64) *splitCandidate {
	parent := b.score(g, h)
	var best *splitCandidate
	sorted := make([]int, len(rows))
	nFeatures := len(b.x[rows[0]])

	for f := 0; f < nFeatures; f++ {
		copy(sorted, rows)
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.x[sorted[i]][f] < b.x[sorted[j]][f]
		})

		var gl, hl float64
		for i := 0; i < len(sorted)-1; i++ {
			gl += b.grad[sorted[i]]
			hl += b.hess[sorted[i]]
			lo, hi := b.x[sorted[i]][f], b.x[sorted[i+1]][f]
			if lo == hi {
				continue
			}
			gr, hr := g-gl, h-hl
			if hl < b.minChildWeight || hr < b.minChildWeight {
				continue
			}
			gain := b.score(gl, hl) + b.score(gr, hr) - parent
			if gain <= minSplitGain || (best != nil && gain <= best.gain) {
				continue
			}
			threshold := lo + (hi-lo)/2
			if !(threshold > lo) || math.IsInf(threshold, 0) {
				threshold = hi
			}
			best = &splitCandidate{feature: f, threshold: threshold, gain: gain}
		}
	}
	return best
}

// partition 按分裂点划分行，子节点内保持原有行序
func (b *treeBuilder) partition(rows []int, s *splitCandidate) (left, right []int) {
	for _, r := range rows {
		if b.x[r][s.feature] < s.threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	return left, right
}
