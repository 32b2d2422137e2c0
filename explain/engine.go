// Package explain 为每个订单选出 top-K 候选并生成加性特征归因记录。
//
// 记录只包含结构化内容（摘要、贡献列表）；叙述文本由 narrative 包另行补充，
// 叙述服务不可用时记录依然完整有效。
package explain

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/feature"
	"github.com/rushteam/compkit/log"
	"github.com/rushteam/compkit/model"
	"github.com/rushteam/compkit/pipeline"
	"github.com/rushteam/compkit/rank"
	"github.com/rushteam/compkit/rerank"
)

// DefaultTolerance 是归因加和校验的相对误差
const DefaultTolerance = 1e-3

// MetaRecord 是 Item.Meta 中存放解释记录的 key
const MetaRecord = "explanation"

// Engine 生成解释记录。构造后只读，可被多个订单并发使用。
type Engine struct {
	features  *feature.Engine
	filters   []pipeline.Node
	tolerance float64
	logger    log.Logger
}

// Option 配置选项
type Option func(*Engine)

// WithFeatureEngine 指定特征引擎
func WithFeatureEngine(fe *feature.Engine) Option {
	return func(e *Engine) {
		e.features = fe
	}
}

// WithFilters 在打分前插入过滤节点（如 filter.FilterNode）
func WithFilters(nodes ...pipeline.Node) Option {
	return func(e *Engine) {
		e.filters = append(e.filters, nodes...)
	}
}

// WithTolerance 设置归因加和校验的相对误差
func WithTolerance(tol float64) Option {
	return func(e *Engine) {
		e.tolerance = tol
	}
}

// WithLogger 指定日志
func WithLogger(l log.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{tolerance: DefaultTolerance}
	for _, opt := range opts {
		opt(e)
	}
	if e.features == nil {
		e.features = feature.NewEngine()
	}
	if e.logger == nil {
		e.logger = log.Default
	}
	return e
}

// Pipeline 返回单个订单的推理链：特征 → 去重 → 过滤 → 打分排序 → top-K → 归因。
func (e *Engine) Pipeline(m model.Explainer, k int) *pipeline.Pipeline {
	nodes := []pipeline.Node{
		&feature.Node{Engine: e.features},
		&rerank.Dedupe{},
	}
	nodes = append(nodes, e.filters...)
	nodes = append(nodes,
		&rank.ModelNode{Model: m},
		&rerank.TopKNode{K: k},
		&Node{Engine: e, Model: m},
	)
	return &pipeline.Pipeline{Nodes: nodes}
}

// Explain 对订单内全部候选打分，取 top-K（同分按候选 id 升序），返回 rank 1..K 的解释记录。
// 候选数少于 K 时返回全部候选的记录。
func (e *Engine) Explain(ctx context.Context, m model.Explainer, order *core.Order, k int) ([]*core.ExplanationRecord, error) {
	if k <= 0 {
		return nil, core.NewInvalidArgumentError(core.ModuleExplain, "k must be > 0")
	}
	if m == nil {
		return nil, core.NewInvalidArgumentError(core.ModuleExplain, "model is required")
	}
	if order == nil {
		return nil, core.NewInvalidArgumentError(core.ModuleExplain, "order is required")
	}

	octx := core.NewOrderContext("", order, k)
	items, err := e.Pipeline(m, k).Run(ctx, octx, core.ItemsFromOrder(order))
	if err != nil {
		return nil, err
	}

	records := make([]*core.ExplanationRecord, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		rec, ok := it.Meta[MetaRecord].(*core.ExplanationRecord)
		if !ok {
			return nil, core.NewDomainError(core.ModuleExplain, core.ErrorCodeInternalError,
				fmt.Sprintf("explain: candidate %s has no record", it.ID))
		}
		records = append(records, rec)
	}
	e.logger.Debugf("explain: order %s: %d of %d candidates explained", order.ID, len(records), len(order.Candidates))
	return records, nil
}

// Record 为一个已打分的候选构建解释记录。
func (e *Engine) Record(m model.Explainer, order *core.Order, candidate *core.Property, fv *core.FeatureVector, position int) (*core.ExplanationRecord, error) {
	score, err := m.Score(fv)
	if err != nil {
		return nil, err
	}
	attrs, err := m.Attribute(fv)
	if err != nil {
		return nil, err
	}
	baseline := m.Baseline()

	names := m.Schema().Features
	if len(attrs) != len(names) {
		return nil, core.NewDomainError(core.ModuleExplain, core.ErrorCodeInternalError,
			"explain: attribution count does not match schema")
	}
	inputs := fv.Values()

	rec := &core.ExplanationRecord{
		OrderID:         order.ID,
		CandidateID:     candidate.ID,
		Rank:            position,
		Score:           score,
		Baseline:        baseline,
		Subject:         e.features.Summarize(&order.Subject),
		Candidate:       e.features.Summarize(candidate),
		NarrativeStatus: core.NarrativeSkipped,
	}
	rec.Contributions = make([]core.Contribution, len(names))
	for i, name := range names {
		rec.Contributions[i] = core.Contribution{Feature: name, Value: attrs[i], Input: inputs[i]}
	}
	sortByMagnitude(rec.Contributions)
	for _, c := range rec.Contributions {
		switch {
		case c.Value > 0:
			rec.Positive = append(rec.Positive, c)
		case c.Value < 0:
			rec.Negative = append(rec.Negative, c)
		}
	}

	if len(order.Comps) > 0 {
		_, hit := order.CompSet()[candidate.ID]
		rec.IsComp = &hit
	}

	if err := e.checkSum(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// checkSum 校验 sum(contributions) ≈ score - baseline
func (e *Engine) checkSum(rec *core.ExplanationRecord) error {
	diff := math.Abs(rec.ContributionSum() - (rec.Score - rec.Baseline))
	tol := e.tolerance * math.Max(1, math.Abs(rec.Score))
	if diff > tol {
		return core.NewDomainError(core.ModuleExplain, core.ErrorCodeInternalError,
			"explain: attributions do not sum to score minus baseline").
			WithDetail("order_id", rec.OrderID).
			WithDetail("candidate_id", rec.CandidateID).
			WithDetail("residual", fmt.Sprintf("%g", diff))
	}
	return nil
}

// sortByMagnitude 按 |value| 降序稳定排序；同值保持 schema 顺序。
func sortByMagnitude(cs []core.Contribution) {
	sort.SliceStable(cs, func(i, j int) bool {
		return math.Abs(cs[i].Value) > math.Abs(cs[j].Value)
	})
}

// Top 返回贡献列表的前 n 项（n 超出时返回全部）
func Top(cs []core.Contribution, n int) []core.Contribution {
	if n < 0 || n >= len(cs) {
		return cs
	}
	return cs[:n]
}
