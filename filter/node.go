package filter

import (
	"context"
	"fmt"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/log"
	"github.com/rushteam/compkit/pipeline"
	"github.com/rushteam/compkit/pkg/utils"
)

// FilterNode 按顺序应用 Filters，命中任一过滤器的候选被移除并打上 filtered 标签。
//
// 过滤器出错时默认保留候选并记录告警；Strict 为 true 时错误直接中止该订单。
type FilterNode struct {
	Filters []Filter
	Strict  bool
}

func (n *FilterNode) Name() string { return "filter.node" }

func (n *FilterNode) Kind() pipeline.Kind { return pipeline.KindFilter }

func (n *FilterNode) Process(
	ctx context.Context,
	octx *core.OrderContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(n.Filters) == 0 || len(items) == 0 {
		return items, nil
	}

	kept := items[:0:0]
	removed := 0
	for _, item := range items {
		if item == nil {
			continue
		}
		by, err := n.match(ctx, octx, item)
		if err != nil {
			return nil, err
		}
		if by == "" {
			kept = append(kept, item)
			continue
		}
		item.PutLabel("filtered", utils.Label{Value: "true", Source: by})
		removed++
	}
	if removed > 0 {
		log.Debugf("filter: order %s removed %d of %d candidates", octx.OrderID(), removed, len(items))
	}
	return kept, nil
}

// match 返回第一个命中的过滤器名，未命中返回空串。
func (n *FilterNode) match(ctx context.Context, octx *core.OrderContext, item *core.Item) (string, error) {
	for _, f := range n.Filters {
		hit, err := f.ShouldFilter(ctx, octx, item)
		if err != nil {
			if n.Strict {
				return "", fmt.Errorf("%s on candidate %s: %w", f.Name(), item.ID, err)
			}
			log.Warnf("filter: %s on order %s candidate %s: %v", f.Name(), octx.OrderID(), item.ID, err)
			continue
		}
		if hit {
			return f.Name(), nil
		}
	}
	return "", nil
}
