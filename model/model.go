package model

import "github.com/rushteam/compkit/core"

// RankModel 是排序阶段的最小抽象：输入特征向量，输出一个组内可比较的分数。
// 分数只在同一订单内有意义，不是概率。
type RankModel interface {
	Name() string

	// Schema 返回模型训练时的特征 schema
	Schema() core.Schema

	// Score 按 schema 顺序读取特征并打分
	Score(fv *core.FeatureVector) (float64, error)
}

// Explainer 是可做加性归因的模型：
// 对任意输入 x，sum(contributions) == Score(x) - Baseline()（浮点误差内）。
type Explainer interface {
	RankModel

	// Baseline 返回期望输出（训练分布上的加权平均分数）
	Baseline() float64

	// Attribute 返回与 schema 顺序对齐的逐特征贡献
	Attribute(fv *core.FeatureVector) ([]float64, error)
}

// checkSchema 在打分前确认特征 schema 与模型一致
func checkSchema(want core.Schema) error {
	got := core.FeatureSchema()
	if !want.Equal(got) {
		return core.NewSchemaMismatchError(want.Version, got.Version)
	}
	return nil
}
