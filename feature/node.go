package feature

import (
	"context"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/pipeline"
	"github.com/rushteam/compkit/pkg/utils"
)

// Node 为订单内每个候选计算差值特征，写入 Item.Vector / Item.Features。
// 任一候选数据不完整时整个订单失败（DATA_INTEGRITY），不会跳过候选。
type Node struct {
	Engine *Engine
}

func (n *Node) Name() string        { return "feature.diff" }
func (n *Node) Kind() pipeline.Kind { return pipeline.KindFeature }

func (n *Node) Process(
	_ context.Context,
	octx *core.OrderContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if octx == nil || octx.Order == nil {
		return nil, core.NewInvalidArgumentError(core.ModuleFeature, "order context is required")
	}
	engine := n.Engine
	if engine == nil {
		engine = NewEngine()
	}
	subject := &octx.Order.Subject
	for _, it := range items {
		if it == nil {
			continue
		}
		fv, err := engine.Compute(octx.Order.ID, subject, it.Property)
		if err != nil {
			return nil, err
		}
		it.SetVector(fv)
		it.PutLabel("feature", utils.Label{Value: core.FeatureSchema().Version, Source: "feature"})
	}
	return items, nil
}
