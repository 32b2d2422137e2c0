// Package evaluate 在测试分组上计算 Precision@K 与 NDCG@K。
package evaluate

import (
	"fmt"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/dataset"
	"github.com/rushteam/compkit/log"
	"github.com/rushteam/compkit/model"
)

// GroupResult 是单个分组的评估结果
type GroupResult struct {
	OrderID    string   `json:"orderId"`
	Candidates int      `json:"candidates"`
	Positives  int      `json:"positives"`
	Precision  float64  `json:"precision_at_k"`
	NDCG       float64  `json:"ndcg_at_k"`
	TopK       []string `json:"top_k"`
}

// Report 是分组与汇总指标。均值只统计至少有一个候选的分组。
type Report struct {
	K             int           `json:"k"`
	Groups        []GroupResult `json:"groups"`
	Excluded      []string      `json:"excluded,omitempty"` // 零候选分组
	MeanPrecision float64       `json:"mean_precision_at_k"`
	MeanNDCG      float64       `json:"mean_ndcg_at_k"`
}

// Evaluated 参与汇总的分组数
func (r *Report) Evaluated() int { return len(r.Groups) }

// Option 评估选项
type Option func(*options)

type options struct {
	logger log.Logger
}

// WithLogger 指定日志输出
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Evaluate 用模型为每组打分并计算指标。
// 组内按分数降序、同分按候选 id 升序排名；K <= 0 返回 INVALID_ARGUMENT。
func Evaluate(m model.RankModel, rows []core.TrainingRow, groupSizes []int, k int, opts ...Option) (*Report, error) {
	o := &options{logger: log.Default}
	for _, opt := range opts {
		opt(o)
	}
	if k <= 0 {
		return nil, core.NewInvalidArgumentError(core.ModuleEvaluate, fmt.Sprintf("k must be > 0, got %d", k))
	}
	total := 0
	for _, s := range groupSizes {
		if s < 0 {
			return nil, core.NewInvalidArgumentError(core.ModuleEvaluate, "group size must be >= 0")
		}
		total += s
	}
	if total != len(rows) {
		return nil, core.NewInvalidArgumentError(core.ModuleEvaluate,
			fmt.Sprintf("group sizes sum to %d, table has %d rows", total, len(rows)))
	}

	r := &Report{K: k}
	start := 0
	for gi, size := range groupSizes {
		if size == 0 {
			r.Excluded = append(r.Excluded, fmt.Sprintf("#%d", gi))
			o.logger.Warnf("evaluate: group #%d has no candidates, excluded", gi)
			continue
		}
		group := rows[start : start+size]
		start += size

		scores := make([]float64, size)
		ids := make([]string, size)
		res := GroupResult{OrderID: group[0].OrderID, Candidates: size}
		for i := range group {
			s, err := m.Score(&group[i].FeatureVector)
			if err != nil {
				return nil, err
			}
			scores[i] = s
			ids[i] = group[i].CandidateID
			res.Positives += group[i].IsComp
		}
		order := core.RankIndices(scores, ids)
		ranked := make([]int, size)
		for i, idx := range order {
			ranked[i] = group[idx].IsComp
			if i < k {
				res.TopK = append(res.TopK, ids[idx])
			}
		}
		res.Precision = PrecisionAtK(ranked, k)
		res.NDCG = NDCGAtK(ranked, k)
		r.Groups = append(r.Groups, res)
		r.MeanPrecision += res.Precision
		r.MeanNDCG += res.NDCG
	}

	if n := len(r.Groups); n > 0 {
		r.MeanPrecision /= float64(n)
		r.MeanNDCG /= float64(n)
	} else {
		o.logger.Warnf("evaluate: no group with candidates, aggregate metrics are 0")
	}
	return r, nil
}

// EvaluateTable 评估训练表；零候选分组按订单 id 记录
func EvaluateTable(m model.RankModel, t *dataset.Table, k int, opts ...Option) (*Report, error) {
	r, err := Evaluate(m, t.Rows, t.GroupSizes(), k, opts...)
	if err != nil {
		return nil, err
	}
	r.Excluded = r.Excluded[:0]
	for _, g := range t.Groups {
		if g.Size == 0 {
			r.Excluded = append(r.Excluded, g.OrderID)
		}
	}
	if len(r.Excluded) == 0 {
		r.Excluded = nil
	}
	return r, nil
}
