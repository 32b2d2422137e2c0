package core

import "github.com/rushteam/compkit/pkg/utils"

// Item 是排序链路中的统一承载结构：候选房产、特征、分数、元信息、标签。
// Labels 用于解释与观测；Score 用于排序决策。
type Item struct {
	ID       string
	Score    float64
	Property *Property
	Vector   *FeatureVector
	Features map[string]float64
	Meta     map[string]any
	Labels   map[string]utils.Label
}

func NewItem(id string) *Item {
	return &Item{
		ID:       id,
		Score:    0,
		Features: make(map[string]float64),
		Meta:     make(map[string]any),
		Labels:   make(map[string]utils.Label),
	}
}

// ItemsFromOrder 为订单的每个候选创建 Item，保持候选原始顺序。
func ItemsFromOrder(order *Order) []*Item {
	if order == nil {
		return nil
	}
	items := make([]*Item, 0, len(order.Candidates))
	for _, c := range order.Candidates {
		if c == nil {
			continue
		}
		it := NewItem(c.ID)
		it.Property = c
		items = append(items, it)
	}
	return items
}

// SetVector 写入特征向量并同步 Features map。
func (it *Item) SetVector(fv *FeatureVector) {
	it.Vector = fv
	if fv != nil {
		it.Features = fv.Map()
	}
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}
