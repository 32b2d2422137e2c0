package rank

import (
	"context"
	"fmt"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/model"
	"github.com/rushteam/compkit/pipeline"
	"github.com/rushteam/compkit/pkg/utils"
)

// ModelNode 使用 RankModel 为候选打分（不限定模型类型，GBRank / Linear 均可）。
// - 写入 labels：rank_model
// - 更新 item.Score 并按分数降序排序，同分按候选 id 升序
//
// 候选必须已经过 feature.diff 节点（Item.Vector 非空）。
type ModelNode struct {
	Model model.RankModel
}

func (n *ModelNode) Name() string        { return "rank.model" }
func (n *ModelNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *ModelNode) Process(
	_ context.Context,
	octx *core.OrderContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if n.Model == nil {
		return nil, core.NewInvalidArgumentError(core.ModuleModel, "rank node has no model")
	}
	if len(items) == 0 {
		return items, nil
	}

	for _, it := range items {
		if it == nil {
			continue
		}
		if it.Vector == nil {
			return nil, core.NewInvalidArgumentError(core.ModuleModel,
				fmt.Sprintf("candidate %s of order %s has no feature vector", it.ID, octx.OrderID()))
		}
		score, err := n.Model.Score(it.Vector)
		if err != nil {
			return nil, err
		}
		it.Score = score
		it.PutLabel("rank_model", utils.Label{Value: n.Model.Name(), Source: "rank"})
	}

	core.SortItems(items)
	return items, nil
}
