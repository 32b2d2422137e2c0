package pipeline

import (
	"context"

	"github.com/rushteam/compkit/core"
)

// Kind 用于标记 Node 类型，方便观测/编排（例如按阶段打点）。
type Kind string

const (
	KindFeature Kind = "feature" // 特征阶段：计算 (subject, candidate) 差值特征
	KindFilter  Kind = "filter"  // 过滤阶段：剔除不满足约束的候选
	KindRank    Kind = "rank"    // 排序阶段：模型打分并排序
	KindReRank  Kind = "rerank"  // 重排阶段：top-K 截断等
	KindExplain Kind = "explain" // 解释阶段：特征归因
)

// Node 是 Pipeline 的最小可扩展单元。
// 统一采用“输入 items -> 输出 items”的形态，方便特征计算、过滤截断、排序重排等操作。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		octx *core.OrderContext,
		items []*core.Item,
	) ([]*core.Item, error)
}

// NodeBuilder 根据配置构建 Node
type NodeBuilder func(map[string]interface{}) (Node, error)
