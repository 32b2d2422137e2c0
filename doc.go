// Package compkit 为评估订单（appraisal）推荐可比房产（comparable）并解释推荐理由。
//
// 设计要点：
// - Pipeline-first: 单个订单的推理通过 Node 串联（Feature → Filter → Rank → ReRank → Explain）
// - Labels-first: labels 全链路透传与标准化 merge，用于解释与观测
// - 批处理由 runner 编排：构建训练表 → 切分 → 训练 → 评估 → 解释 → 叙述 → 持久化
package compkit

import (
	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/pipeline"
)

// 轻量 facade：便于直接 import "compkit" 使用核心抽象。
type (
	Pipeline     = pipeline.Pipeline
	Node         = pipeline.Node
	Kind         = pipeline.Kind
	Order        = core.Order
	Property     = core.Property
	OrderContext = core.OrderContext
)

const (
	KindFeature = pipeline.KindFeature
	KindFilter  = pipeline.KindFilter
	KindRank    = pipeline.KindRank
	KindReRank  = pipeline.KindReRank
	KindExplain = pipeline.KindExplain
)
