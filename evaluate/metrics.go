package evaluate

import (
	"fmt"
	"math"

	"github.com/rushteam/compkit/core"
)

// PrecisionAtK 返回排名前 K 中的正例数 / K。
// 候选不足 K 个时缺位按未命中计，分母固定为 K。
func PrecisionAtK(rankedLabels []int, k int) float64 {
	hits := 0
	for i := 0; i < k && i < len(rankedLabels); i++ {
		if rankedLabels[i] > 0 {
			hits++
		}
	}
	return float64(hits) / float64(k)
}

// NDCGAtK 使用二值增益与 1/log2(rank+1) 折扣；没有正例的分组记 0。
func NDCGAtK(rankedLabels []int, k int) float64 {
	var dcg float64
	positives := 0
	for i, l := range rankedLabels {
		if l <= 0 {
			continue
		}
		positives++
		if i < k {
			dcg += 1 / math.Log2(float64(i+2))
		}
	}
	var idcg float64
	for i := 0; i < k && i < positives; i++ {
		idcg += 1 / math.Log2(float64(i+2))
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

// TrainingMetric 返回训练进度观测用的指标函数（组内同分按行序）。
// name 为 core.MetricNDCG 或 core.MetricPrecision。
func TrainingMetric(name string, k int) func(scores, labels []float64, groupSizes []int) float64 {
	metric := NDCGAtK
	if name == core.MetricPrecision {
		metric = PrecisionAtK
	}
	return func(scores, labels []float64, groupSizes []int) float64 {
		var sum float64
		n := 0
		start := 0
		for _, size := range groupSizes {
			if size == 0 {
				continue
			}
			ids := make([]string, size)
			for i := range ids {
				ids[i] = fmt.Sprintf("%010d", i)
			}
			order := core.RankIndices(scores[start:start+size], ids)
			ranked := make([]int, size)
			for i, idx := range order {
				ranked[i] = int(labels[start+idx])
			}
			sum += metric(ranked, k)
			n++
			start += size
		}
		if n == 0 {
			return 0
		}
		return sum / float64(n)
	}
}
