package model

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/log"
)

// KindGBRank 是 pairwise 梯度提升树模型的 artifact 类型
const KindGBRank = "gbrank"

// progressEvery 每隔多少轮输出一次训练进度
const progressEvery = 10

// MetricFunc 在训练分组上计算排序指标（按行对齐的分数、标签与分组大小）。
type MetricFunc func(scores, labels []float64, groupSizes []int) float64

// TrainOption 训练选项
type TrainOption func(*trainOptions)

type trainOptions struct {
	logger log.Logger
	metric MetricFunc
}

// WithLogger 指定训练日志输出
func WithLogger(l log.Logger) TrainOption {
	return func(o *trainOptions) {
		o.logger = l
	}
}

// WithEvalMetric 每 10 轮在训练分组上计算并记录一次 cfg.EvalMetric
func WithEvalMetric(fn MetricFunc) TrainOption {
	return func(o *trainOptions) {
		o.metric = fn
	}
}

// GBRank 是 pairwise 梯度提升回归树排序模型。
// 训练完成后只读，可在多个 goroutine 间共享。
type GBRank struct {
	schema   core.Schema
	config   core.TrainConfig
	trees    []*Tree
	baseline float64
}

// NewGBRank 由已训练的树构造模型（反序列化时使用）
func NewGBRank(schema core.Schema, cfg core.TrainConfig, trees []*Tree) *GBRank {
	m := &GBRank{schema: schema, config: cfg, trees: trees}
	for _, t := range trees {
		m.baseline += t.ExpectedValue()
	}
	return m
}

func (m *GBRank) Name() string             { return KindGBRank }
func (m *GBRank) Schema() core.Schema      { return m.schema }
func (m *GBRank) Config() core.TrainConfig { return m.config }
func (m *GBRank) Baseline() float64        { return m.baseline }
func (m *GBRank) NumTrees() int            { return len(m.trees) }
func (m *GBRank) Trees() []*Tree           { return slices.Clone(m.trees) }

// Score 返回各树输出之和（base score 为 0）
func (m *GBRank) Score(fv *core.FeatureVector) (float64, error) {
	x, err := m.input(fv)
	if err != nil {
		return 0, err
	}
	return m.predict(x), nil
}

// Attribute 用精确 TreeSHAP 计算逐特征贡献，sum == Score - Baseline。
func (m *GBRank) Attribute(fv *core.FeatureVector) ([]float64, error) {
	x, err := m.input(fv)
	if err != nil {
		return nil, err
	}
	phi := make([]float64, len(x))
	for _, t := range m.trees {
		t.shap(x, phi)
	}
	return phi, nil
}

func (m *GBRank) input(fv *core.FeatureVector) ([]float64, error) {
	if fv == nil {
		return nil, core.NewInvalidArgumentError(core.ModuleModel, "feature vector is required")
	}
	if err := checkSchema(m.schema); err != nil {
		return nil, err
	}
	return fv.Values(), nil
}

func (m *GBRank) predict(x []float64) float64 {
	var s float64
	for _, t := range m.trees {
		s += t.Predict(x)
	}
	return s
}

// Train 在分组训练表上训练 pairwise 排序模型。
//
// groupSizes 与 rows 对齐：第 i 组占用紧随前一组之后的 groupSizes[i] 行。
// 空组与标签全相同的组不产生成对信号，记录日志后跳过；没有任何可用分组时返回 INSUFFICIENT_DATA。
// 给定相同的 rows、分组、配置与 seed，结果完全一致。
func Train(
	ctx context.Context,
	rows []core.TrainingRow,
	groupSizes []int,
	cfg core.TrainConfig,
	opts ...TrainOption,
) (*GBRank, error) {
	o := &trainOptions{logger: log.Default}
	for _, opt := range opts {
		opt(o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	spans, err := buildSpans(rows, groupSizes)
	if err != nil {
		return nil, err
	}

	labels := make([]float64, len(rows))
	x := make([][]float64, len(rows))
	for i := range rows {
		labels[i] = rows[i].Label()
		x[i] = rows[i].Values()
	}

	active := make([]groupSpan, 0, len(spans))
	for i, sp := range spans {
		if hasPairs(labels, sp) {
			active = append(active, sp)
			continue
		}
		if sp.size == 0 {
			o.logger.Warnf("model: group #%d is empty, skipped in loss", i)
		} else {
			o.logger.Warnf("model: group %s has a single label value, skipped in loss", rows[sp.start].OrderID)
		}
	}
	if len(active) == 0 {
		return nil, core.NewInsufficientDataError(
			fmt.Sprintf("no group among %d has both comp and non-comp candidates", len(spans)))
	}
	o.logger.Infof("model: training %s on %d rows, %d/%d contributing groups, rounds=%d",
		KindGBRank, len(rows), len(active), len(spans), cfg.Rounds)

	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)^0x9e3779b97f4a7c15))
	builder := &treeBuilder{
		x:              x,
		grad:           make([]float64, len(rows)),
		hess:           make([]float64, len(rows)),
		maxDepth:       cfg.MaxDepth,
		lambda:         cfg.Lambda,
		minChildWeight: cfg.MinChildWeight,
		learningRate:   cfg.LearningRate,
	}
	scores := make([]float64, len(rows))
	trees := make([]*Tree, 0, cfg.Rounds)

	for round := 0; round < cfg.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sampled := sampleSpans(rng, active, cfg.Subsample)
		clear(builder.grad)
		clear(builder.hess)
		pairwiseGradients(sampled, labels, scores, builder.grad, builder.hess)

		tree := builder.build(spanRows(sampled))
		trees = append(trees, tree)
		for i := range scores {
			scores[i] += tree.Predict(x[i])
		}

		if (round+1)%progressEvery == 0 || round+1 == cfg.Rounds {
			msg := fmt.Sprintf("model: round %d/%d pairwise_loss=%.6f", round+1, cfg.Rounds, pairwiseLoss(active, labels, scores))
			if o.metric != nil {
				msg += fmt.Sprintf(" train_%s@%d=%.4f", cfg.EvalMetric, cfg.EvalK, o.metric(scores, labels, groupSizes))
			}
			o.logger.Infof("%s", msg)
		}
	}
	return NewGBRank(core.FeatureSchema(), cfg, trees), nil
}

// buildSpans 校验分组大小与行数一致，且每组行属于同一订单、订单不跨组出现。
func buildSpans(rows []core.TrainingRow, groupSizes []int) ([]groupSpan, error) {
	total := 0
	for _, s := range groupSizes {
		if s < 0 {
			return nil, core.NewInvalidArgumentError(core.ModuleModel, "group size must be >= 0")
		}
		total += s
	}
	if total != len(rows) {
		return nil, core.NewInvalidArgumentError(core.ModuleModel,
			fmt.Sprintf("group sizes sum to %d, table has %d rows", total, len(rows)))
	}

	spans := make([]groupSpan, len(groupSizes))
	seen := make(map[string]struct{}, len(groupSizes))
	start := 0
	for i, s := range groupSizes {
		spans[i] = groupSpan{start: start, size: s}
		if s > 0 {
			id := rows[start].OrderID
			if _, dup := seen[id]; dup {
				return nil, core.NewInvalidArgumentError(core.ModuleModel,
					fmt.Sprintf("rows of order %s are not contiguous", id))
			}
			seen[id] = struct{}{}
			for r := start; r < start+s; r++ {
				if rows[r].OrderID != id {
					return nil, core.NewInvalidArgumentError(core.ModuleModel,
						fmt.Sprintf("group #%d mixes orders %s and %s", i, id, rows[r].OrderID))
				}
			}
		}
		start += s
	}
	return spans, nil
}

// sampleSpans 按比例抽样分组，保持原有分组顺序
func sampleSpans(rng *rand.Rand, spans []groupSpan, ratio float64) []groupSpan {
	if ratio >= 1 {
		return spans
	}
	n := max(1, int(math.Ceil(ratio*float64(len(spans)))))
	picked := rng.Perm(len(spans))[:n]
	slices.Sort(picked)
	out := make([]groupSpan, n)
	for i, p := range picked {
		out[i] = spans[p]
	}
	return out
}

func spanRows(spans []groupSpan) []int {
	var rows []int
	for _, sp := range spans {
		for r := sp.start; r < sp.start+sp.size; r++ {
			rows = append(rows, r)
		}
	}
	return rows
}
