package explain

import (
	"context"
	"fmt"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/model"
	"github.com/rushteam/compkit/pipeline"
	"github.com/rushteam/compkit/pkg/utils"
)

// Node 为已排序、已截断的候选生成解释记录，写入 Item.Meta[MetaRecord]。
// rank 即候选在 items 中的位置（从 1 开始）。
type Node struct {
	Engine *Engine
	Model  model.Explainer
}

func (n *Node) Name() string        { return "explain.attribution" }
func (n *Node) Kind() pipeline.Kind { return pipeline.KindExplain }

func (n *Node) Process(
	ctx context.Context,
	octx *core.OrderContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if n.Model == nil {
		return nil, core.NewInvalidArgumentError(core.ModuleExplain, "explain node has no model")
	}
	if octx == nil || octx.Order == nil {
		return nil, core.NewInvalidArgumentError(core.ModuleExplain, "order context is required")
	}
	engine := n.Engine
	if engine == nil {
		engine = NewEngine()
	}

	rank := 0
	for _, it := range items {
		if it == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if it.Vector == nil || it.Property == nil {
			return nil, core.NewInvalidArgumentError(core.ModuleExplain,
				fmt.Sprintf("candidate %s has no feature vector", it.ID))
		}
		rank++
		rec, err := engine.Record(n.Model, octx.Order, it.Property, it.Vector, rank)
		if err != nil {
			return nil, err
		}
		if it.Meta == nil {
			it.Meta = make(map[string]any)
		}
		it.Meta[MetaRecord] = rec
		it.PutLabel("explained", utils.Label{Value: fmt.Sprintf("%d", rank), Source: "explain"})
	}
	return items, nil
}
