package pipeline

import (
	"context"
	"fmt"

	"github.com/rushteam/compkit/core"
)

// Pipeline 把单个订单的推理拆成可组合的 Node 链。
// Pipeline 本身无状态，可被多个订单并发复用，前提是各 Node 只读。
type Pipeline struct {
	Nodes []Node
}

// Run 依次执行各 Node；ctx 取消时在 Node 之间中止。
func (p *Pipeline) Run(
	ctx context.Context,
	octx *core.OrderContext,
	items []*core.Item,
) ([]*core.Item, error) {
	cur := items
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := node.Process(ctx, octx, cur)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", node.Name(), err)
		}
		cur = next
	}
	return cur, nil
}

// Append 返回追加了 nodes 的新 Pipeline，不修改原 Pipeline。
func (p *Pipeline) Append(nodes ...Node) *Pipeline {
	out := &Pipeline{Nodes: make([]Node, 0, len(p.Nodes)+len(nodes))}
	out.Nodes = append(out.Nodes, p.Nodes...)
	out.Nodes = append(out.Nodes, nodes...)
	return out
}
