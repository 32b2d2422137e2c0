package core

// TrainingRow 是带标签的特征行，OrderID 即分组（group）。
// 同一分组的行在训练表中必须连续。
type TrainingRow struct {
	FeatureVector
	IsComp int `json:"is_comp"`
}

// Label 返回排序标签（float，便于梯度计算）
func (r *TrainingRow) Label() float64 { return float64(r.IsComp) }

// Group 描述训练表中的一个分组。
// Contributing=false 表示该组没有 pairwise 信号（空组或标签全相同），仅保留用于评估。
type Group struct {
	OrderID      string `json:"orderId"`
	Size         int    `json:"size"`
	Positives    int    `json:"positives"`
	Contributing bool   `json:"contributing"`
}

// GroupSizes 从分组列表提取 group_sizes，顺序与行顺序对齐。
func GroupSizes(groups []Group) []int {
	sizes := make([]int, len(groups))
	for i, g := range groups {
		sizes[i] = g.Size
	}
	return sizes
}
