package explain

import "github.com/rushteam/compkit/core"

// Estimate 由 top-K 候选的成交价计算估值建议：均价、区间与区间中点。
// 没有任何候选带成交价时返回 nil。
func Estimate(orderID string, records []*core.ExplanationRecord) *core.ValueEstimate {
	est := &core.ValueEstimate{OrderID: orderID}
	var sum float64
	for _, r := range records {
		if r == nil || r.Candidate.SalePrice == nil {
			continue
		}
		p := *r.Candidate.SalePrice
		if est.Count == 0 || p < est.Min {
			est.Min = p
		}
		if est.Count == 0 || p > est.Max {
			est.Max = p
		}
		sum += p
		est.Count++
	}
	if est.Count == 0 {
		return nil
	}
	est.Mean = sum / float64(est.Count)
	est.Midpoint = est.Min + (est.Max-est.Min)/2
	return est
}
