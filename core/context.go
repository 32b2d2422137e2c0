package core

import "github.com/rushteam/compkit/pkg/utils"

// OrderContext 承载一次订单推理的上下文（订单、运行信息、标签），贯穿整个 Pipeline 透传。
// 各订单的 OrderContext 相互独立，不共享可变状态。
type OrderContext struct {
	RunID string
	Order *Order

	// K 是本次需要的 top-K 数量
	K int

	// Labels 是订单级标签，可驱动 Pipeline 行为
	Labels map[string]utils.Label

	// Params 请求级参数，供表达式过滤等使用
	Params map[string]any
}

// NewOrderContext 创建订单上下文
func NewOrderContext(runID string, order *Order, k int) *OrderContext {
	return &OrderContext{
		RunID:  runID,
		Order:  order,
		K:      k,
		Labels: make(map[string]utils.Label),
		Params: make(map[string]any),
	}
}

// OrderID 返回订单 id（nil 安全）
func (octx *OrderContext) OrderID() string {
	if octx == nil || octx.Order == nil {
		return ""
	}
	return octx.Order.ID
}

// PutLabel 写入订单级 Label。
func (octx *OrderContext) PutLabel(key string, lbl utils.Label) {
	if octx.Labels == nil {
		octx.Labels = make(map[string]utils.Label)
	}
	if old, ok := octx.Labels[key]; ok {
		octx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	octx.Labels[key] = lbl
}

// GetLabel 获取订单级 Label。
func (octx *OrderContext) GetLabel(key string) (utils.Label, bool) {
	if octx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := octx.Labels[key]
	return lbl, ok
}
