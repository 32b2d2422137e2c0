package model

// 精确 TreeSHAP（Lundberg et al., "Consistent Individualized Feature Attribution for Tree Ensembles"）。
// 以训练 cover 作为背景分布，单棵树的贡献之和等于 Predict(x) - ExpectedValue()。

type pathElement struct {
	feature      int
	zeroFraction float64 // 不含该特征时流经此路径的样本比例
	oneFraction  float64 // x 是否走此路径（0 或 1）
	weight       float64
}

// shap 将本树对 x 的逐特征贡献累加到 phi
func (t *Tree) shap(x, phi []float64) {
	if len(t.Nodes) == 0 {
		return
	}
	t.shapRecurse(x, phi, 0, nil, 0, 1, 1, leafFeature)
}

func (t *Tree) shapRecurse(
	x, phi []float64,
	nodeIndex int,
	parentPath []pathElement,
	depth int,
	zeroFraction, oneFraction float64,
	feature int,
) {
	path := make([]pathElement, depth+1)
	copy(path, parentPath[:min(len(parentPath), depth)])
	extendPath(path, depth, zeroFraction, oneFraction, feature)

	n := &t.Nodes[nodeIndex]
	if n.IsLeaf() {
		for i := 1; i <= depth; i++ {
			w := unwoundPathSum(path, depth, i)
			el := path[i]
			phi[el.feature] += w * (el.oneFraction - el.zeroFraction) * n.Value
		}
		return
	}

	hot, cold := n.Right, n.Left
	if x[n.Feature] < n.Threshold {
		hot, cold = n.Left, n.Right
	}
	hotZero := t.Nodes[hot].Cover / n.Cover
	coldZero := t.Nodes[cold].Cover / n.Cover
	incomingZero, incomingOne := 1.0, 1.0

	// 同一特征在路径上已出现时先撤销，再以合并后的比例重新扩展
	k := 0
	for ; k <= depth; k++ {
		if path[k].feature == n.Feature {
			break
		}
	}
	if k <= depth {
		incomingZero = path[k].zeroFraction
		incomingOne = path[k].oneFraction
		unwindPath(path, depth, k)
		depth--
	}

	t.shapRecurse(x, phi, hot, path, depth+1, hotZero*incomingZero, incomingOne, n.Feature)
	t.shapRecurse(x, phi, cold, path, depth+1, coldZero*incomingZero, 0, n.Feature)
}

func extendPath(path []pathElement, depth int, zeroFraction, oneFraction float64, feature int) {
	w := 0.0
	if depth == 0 {
		w = 1
	}
	path[depth] = pathElement{feature: feature, zeroFraction: zeroFraction, oneFraction: oneFraction, weight: w}
	for i := depth - 1; i >= 0; i-- {
		path[i+1].weight += oneFraction * path[i].weight * float64(i+1) / float64(depth+1)
		path[i].weight = zeroFraction * path[i].weight * float64(depth-i) / float64(depth+1)
	}
}

func unwindPath(path []pathElement, depth, k int) {
	one := path[k].oneFraction
	zero := path[k].zeroFraction
	next := path[depth].weight
	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].weight
			path[i].weight = next * float64(depth+1) / (float64(i+1) * one)
			next = tmp - path[i].weight*zero*float64(depth-i)/float64(depth+1)
		} else {
			path[i].weight = path[i].weight * float64(depth+1) / (zero * float64(depth-i))
		}
	}
	for i := k; i < depth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zeroFraction = path[i+1].zeroFraction
		path[i].oneFraction = path[i+1].oneFraction
	}
}

func unwoundPathSum(path []pathElement, depth, k int) float64 {
	one := path[k].oneFraction
	zero := path[k].zeroFraction
	next := path[depth].weight
	var total float64
	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := next * float64(depth+1) / (float64(i+1) * one)
			total += tmp
			next = path[i].weight - tmp*zero*float64(depth-i)/float64(depth+1)
		} else {
			total += path[i].weight / zero / (float64(depth-i) / float64(depth+1))
		}
	}
	return total
}
