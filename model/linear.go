package model

import (
	"context"
	"fmt"
	"math"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/log"
)

// KindLinear 是线性 pairwise 模型的 artifact 类型
const KindLinear = "linear"

// LinearModel 是线性 pairwise 排序模型（RankNet 的线性版本）。
//
// 打分原理：
//  1. 线性加权求和: s = Bias + sum(Weight_i * x_i)
//  2. 不做 Sigmoid：分数只用于组内比较
//
// 归因：contribution_i = Weight_i * (x_i - Mean_i)，Baseline = Bias + sum(Weight_i * Mean_i)，
// Mean 为训练行的特征均值。
type LinearModel struct {
	Bias    float64            // 偏置项，对组内排序无影响
	Weights map[string]float64 // 特征权重（原始尺度）
	Means   map[string]float64 // 训练行特征均值（归因背景）

	schema core.Schema
}

// NewLinearModel 构造线性模型，schema 为训练时的特征 schema
func NewLinearModel(schema core.Schema, bias float64, weights, means map[string]float64) *LinearModel {
	return &LinearModel{Bias: bias, Weights: weights, Means: means, schema: schema}
}

func (m *LinearModel) Name() string        { return KindLinear }
func (m *LinearModel) Schema() core.Schema { return m.schema }

func (m *LinearModel) Score(fv *core.FeatureVector) (float64, error) {
	if err := m.check(fv); err != nil {
		return 0, err
	}
	score := m.Bias
	for i, v := range fv.Values() {
		score += m.Weights[m.schema.Features[i]] * v
	}
	return score, nil
}

func (m *LinearModel) Baseline() float64 {
	b := m.Bias
	for _, name := range m.schema.Features {
		b += m.Weights[name] * m.Means[name]
	}
	return b
}

func (m *LinearModel) Attribute(fv *core.FeatureVector) ([]float64, error) {
	if err := m.check(fv); err != nil {
		return nil, err
	}
	x := fv.Values()
	phi := make([]float64, len(x))
	for i, name := range m.schema.Features {
		phi[i] = m.Weights[name] * (x[i] - m.Means[name])
	}
	return phi, nil
}

func (m *LinearModel) check(fv *core.FeatureVector) error {
	if fv == nil {
		return core.NewInvalidArgumentError(core.ModuleModel, "feature vector is required")
	}
	return checkSchema(m.schema)
}

// TrainLinear 用全量梯度下降最小化平均成对逻辑损失 + L2。
// 特征先按训练均值/标准差标准化，训练完成后换算回原始尺度。
// 分组规则与 Train 相同：只在组内比较，退化分组跳过。
func TrainLinear(
	ctx context.Context,
	rows []core.TrainingRow,
	groupSizes []int,
	cfg core.TrainConfig,
	opts ...TrainOption,
) (*LinearModel, error) {
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

	schema := core.FeatureSchema()
	nf := len(schema.Features)
	labels := make([]float64, len(rows))
	raw := make([][]float64, len(rows))
	for i := range rows {
		labels[i] = rows[i].Label()
		raw[i] = rows[i].Values()
	}

	active := make([]groupSpan, 0, len(spans))
	for _, sp := range spans {
		if hasPairs(labels, sp) {
			active = append(active, sp)
		} else if sp.size > 0 {
			o.logger.Warnf("model: group %s has a single label value, skipped in loss", rows[sp.start].OrderID)
		}
	}
	if len(active) == 0 {
		return nil, core.NewInsufficientDataError(
			fmt.Sprintf("no group among %d has both comp and non-comp candidates", len(spans)))
	}

	mean, std := columnStats(raw, nf)
	x := make([][]float64, len(raw))
	for i, r := range raw {
		x[i] = make([]float64, nf)
		for f := range r {
			x[i][f] = (r[f] - mean[f]) / std[f]
		}
	}

	var pairs int
	for _, sp := range active {
		for i := sp.start; i < sp.start+sp.size; i++ {
			for j := sp.start; j < sp.start+sp.size; j++ {
				if labels[i] > labels[j] {
					pairs++
				}
			}
		}
	}

	w := make([]float64, nf)
	scores := make([]float64, len(rows))
	grad := make([]float64, len(rows))
	hess := make([]float64, len(rows))
	for round := 0; round < cfg.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range x {
			scores[i] = dot(w, x[i])
		}
		clear(grad)
		clear(hess)
		pairwiseGradients(active, labels, scores, grad, hess)

		gw := make([]float64, nf)
		for i := range x {
			if grad[i] == 0 {
				continue
			}
			for f := range gw {
				gw[f] += grad[i] * x[i][f]
			}
		}
		for f := range w {
			w[f] -= cfg.LearningRate * (gw[f]/float64(pairs) + cfg.Lambda*w[f]/float64(pairs))
		}

		if (round+1)%progressEvery == 0 || round+1 == cfg.Rounds {
			for i := range x {
				scores[i] = dot(w, x[i])
			}
			o.logger.Infof("model: linear round %d/%d pairwise_loss=%.6f",
				round+1, cfg.Rounds, pairwiseLoss(active, labels, scores))
		}
	}

	weights := make(map[string]float64, nf)
	means := make(map[string]float64, nf)
	var bias float64
	for f, name := range schema.Features {
		weights[name] = w[f] / std[f]
		means[name] = mean[f]
		bias -= w[f] * mean[f] / std[f]
	}
	return NewLinearModel(schema, bias, weights, means), nil
}

func columnStats(x [][]float64, nf int) (mean, std []float64) {
	mean = make([]float64, nf)
	std = make([]float64, nf)
	if len(x) == 0 {
		for f := range std {
			std[f] = 1
		}
		return mean, std
	}
	n := float64(len(x))
	for _, r := range x {
		for f, v := range r {
			mean[f] += v / n
		}
	}
	for _, r := range x {
		for f, v := range r {
			d := v - mean[f]
			std[f] += d * d / n
		}
	}
	for f := range std {
		std[f] = math.Sqrt(std[f])
		if std[f] == 0 {
			std[f] = 1
		}
	}
	return mean, std
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
