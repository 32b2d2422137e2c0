package model

import "math"

// groupSpan 是训练表中一个分组的行区间 [start, start+size)
type groupSpan struct {
	start int
	size  int
}

// pairwiseGradients 计算 RankNet 逻辑损失在当前分数上的一阶/二阶梯度。
//
// 只在同一分组内、标签不同的行之间成对：label_i > label_j 时
// loss = log(1 + exp(-(s_i - s_j)))，跨组的行从不比较。
// grad/hess 需由调用方清零。
func pairwiseGradients(spans []groupSpan, labels, scores, grad, hess []float64) {
	for _, sp := range spans {
		end := sp.start + sp.size
		for i := sp.start; i < end; i++ {
			for j := sp.start; j < end; j++ {
				if labels[i] <= labels[j] {
					continue
				}
				p := sigmoid(scores[j] - scores[i])
				h := p * (1 - p)
				grad[i] -= p
				grad[j] += p
				hess[i] += h
				hess[j] += h
			}
		}
	}
}

// pairwiseLoss 返回平均成对损失（日志观测用）
func pairwiseLoss(spans []groupSpan, labels, scores []float64) float64 {
	var loss float64
	var pairs int
	for _, sp := range spans {
		end := sp.start + sp.size
		for i := sp.start; i < end; i++ {
			for j := sp.start; j < end; j++ {
				if labels[i] <= labels[j] {
					continue
				}
				loss += softplus(scores[j] - scores[i])
				pairs++
			}
		}
	}
	if pairs == 0 {
		return 0
	}
	return loss / float64(pairs)
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus = log(1 + exp(z))，大 z 时避免溢出
func softplus(z float64) float64 {
	if z > 30 {
		return z
	}
	return math.Log1p(math.Exp(z))
}

// hasPairs 分组内是否存在不同标签
func hasPairs(labels []float64, sp groupSpan) bool {
	if sp.size < 2 {
		return false
	}
	first := labels[sp.start]
	for i := sp.start + 1; i < sp.start+sp.size; i++ {
		if labels[i] != first {
			return true
		}
	}
	return false
}
