package core

// Contribution 是单个特征对分数的加性贡献（相对 baseline）。
// Input 是该特征在此候选上的取值，供叙述服务引用。
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Input   float64 `json:"input"`
}

// PropertySummary 是随记录下发给叙述服务的房产摘要。
type PropertySummary struct {
	ID           string   `json:"id"`
	PropertyType string   `json:"property_type"` // 规范化后的类型
	GLA          float64  `json:"gla"`
	LotSize      float64  `json:"lot_size_sf"`
	Bedrooms     float64  `json:"bedrooms"`
	FullBaths    float64  `json:"full_baths"`
	HalfBaths    float64  `json:"half_baths"`
	BathScore    float64  `json:"bath_score"`
	SalePrice    *float64 `json:"sale_price,omitempty"`
}

// NarrativeStatus 描述叙述字段的来源状态
type NarrativeStatus string

const (
	NarrativeSkipped NarrativeStatus = "skipped" // 未配置叙述服务
	NarrativeOK      NarrativeStatus = "ok"
	NarrativeFailed  NarrativeStatus = "failed" // 重试耗尽，叙述缺失
)

// ExplanationRecord 是一个 (order, rank) 的结构化解释记录。
//
// Contributions 包含全部特征，按 |value| 降序；Positive/Negative 是其按符号拆分后的子序列，
// 同样按绝对值降序。零贡献只出现在 Contributions 中。
type ExplanationRecord struct {
	OrderID       string          `json:"orderId"`
	CandidateID   string          `json:"candidateId"`
	Rank          int             `json:"rank"`
	Score         float64         `json:"score"`
	Baseline      float64         `json:"baseline"`
	IsComp        *bool           `json:"is_comp,omitempty"`
	Contributions []Contribution  `json:"contributions"`
	Positive      []Contribution  `json:"positive"`
	Negative      []Contribution  `json:"negative"`
	Subject       PropertySummary `json:"subject"`
	Candidate     PropertySummary `json:"candidate"`

	Narrative       *string         `json:"narrative,omitempty"`
	NarrativeStatus NarrativeStatus `json:"narrative_status"`
	NarrativeError  string          `json:"narrative_error,omitempty"`
}

// ContributionSum 返回全部贡献之和
func (r *ExplanationRecord) ContributionSum() float64 {
	var sum float64
	for _, c := range r.Contributions {
		sum += c.Value
	}
	return sum
}

// ValueEstimate 是基于 top-K 候选成交价的估值建议。
type ValueEstimate struct {
	OrderID  string  `json:"orderId"`
	Count    int     `json:"count"` // 参与计算的有成交价候选数
	Mean     float64 `json:"mean"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Midpoint float64 `json:"midpoint"`
}
