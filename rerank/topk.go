package rerank

import (
	"context"
	"strconv"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/pipeline"
	"github.com/rushteam/compkit/pkg/utils"
)

// TopKNode 是 Top-K 截断节点，在排序（Rank）节点之后截取前 K 个候选。
//
// K 的来源优先级：
//   - TopKNode.K > 0
//   - OrderContext.K
//
// 两者都不大于 0 时返回 INVALID_ARGUMENT。K 大于候选数时返回全部候选。
//
// 示例：
//
//	p := &pipeline.Pipeline{
//	    Nodes: []pipeline.Node{
//	        &feature.Node{Engine: engine},
//	        &rank.ModelNode{Model: m},
//	        &rerank.TopKNode{K: 3},
//	    },
//	}
type TopKNode struct {
	K int
}

func (n *TopKNode) Name() string {
	return "rerank.topk"
}

func (n *TopKNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *TopKNode) Process(
	_ context.Context,
	octx *core.OrderContext,
	items []*core.Item,
) ([]*core.Item, error) {
	k := n.K
	if k <= 0 && octx != nil {
		k = octx.K
	}
	if k <= 0 {
		return nil, core.NewInvalidArgumentError(core.ModuleExplain, "k must be > 0")
	}

	if len(items) > k {
		items = items[:k]
	}
	for i, it := range items {
		if it == nil {
			continue
		}
		it.PutLabel("topk", utils.Label{Value: strconv.Itoa(i + 1), Source: "rerank"})
	}
	return items, nil
}
