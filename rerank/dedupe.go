package rerank

import (
	"context"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/pipeline"
	"github.com/rushteam/compkit/pkg/utils"
)

// Dedupe 是去重 ReRank：同一候选 id 只保留首次出现的一个（放在排序之后即保留排名最靠前者）。
type Dedupe struct{}

func (n *Dedupe) Name() string {
	return "rerank.dedupe"
}

func (n *Dedupe) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *Dedupe) Process(
	_ context.Context,
	_ *core.OrderContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}

	seen := make(map[string]bool, len(items))
	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		if seen[it.ID] {
			it.PutLabel("deduped", utils.Label{Value: "true", Source: "rerank"})
			continue
		}
		seen[it.ID] = true
		out = append(out, it)
	}
	return out, nil
}
