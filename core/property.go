package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PropertyTypeUnknown 表示类型规范化失败（相似度不足或显式无类型）。
// Unknown 不与任何类型相等，包括另一个 Unknown。
const PropertyTypeUnknown = "Unknown"

// Property 是上游 Canonicalizer 产出的规范化房产记录。
//
// 数值字段使用指针：nil 表示上游未给出，属于契约破坏，由 FeatureEngine 报 DATA_INTEGRITY；
// 本包不做任何缺失值填充。
type Property struct {
	ID           string   `json:"id"`
	EffectiveAge *float64 `json:"effective_age,omitempty"`
	SubjectAge   *float64 `json:"subject_age,omitempty"`
	GLA          *float64 `json:"gla,omitempty"`         // 居住面积（sqft）
	LotSize      *float64 `json:"lot_size_sf,omitempty"` // 占地面积（sqft）
	RoomCount    *float64 `json:"room_count,omitempty"`
	Bedrooms     *float64 `json:"bedrooms,omitempty"`
	FullBaths    *float64 `json:"full_baths,omitempty"`
	HalfBaths    *float64 `json:"half_baths,omitempty"`
	// BathScore 可由上游给出；缺省时按 full + 0.5*half 推导
	BathScore *float64 `json:"bath_score,omitempty"`

	// PropertyType 是原始类型文本，由 feature.Canonicalizer 映射到固定类型表
	PropertyType string `json:"property_type,omitempty"`

	SaleDate      *Date    `json:"sale_date,omitempty"`
	EffectiveDate Date     `json:"effective_date,omitempty"`
	SalePrice     *float64 `json:"sale_price,omitempty"`
}

// DerivedBathScore 返回 bath_score：优先使用上游值，否则按 full + 0.5*half 推导。
func (p *Property) DerivedBathScore() *float64 {
	if p.BathScore != nil {
		return p.BathScore
	}
	if p.FullBaths == nil || p.HalfBaths == nil {
		return nil
	}
	v := *p.FullBaths + 0.5*(*p.HalfBaths)
	return &v
}

// Order 是一次评估（appraisal）：一个 subject、一组真实 comps 与候选池。
type Order struct {
	ID         string      `json:"orderId"`
	Subject    Property    `json:"subject"`
	Comps      []string    `json:"comps"`
	Candidates []*Property `json:"candidates"`
}

// CompSet 返回真实 comp id 集合。
func (o *Order) CompSet() map[string]struct{} {
	set := make(map[string]struct{}, len(o.Comps))
	for _, id := range o.Comps {
		set[id] = struct{}{}
	}
	return set
}

// Float 是构造 *float64 的便捷函数（测试与样例数据常用）。
func Float(v float64) *float64 { return &v }

// Date 是只关心日历日的时间类型，JSON 支持 "2006-01-02" 与 RFC3339。
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate 按 UTC 构造日期
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate 解析 "2006-01-02" 或 RFC3339 文本
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// DaysBetween 返回 a - b 的日历天数（按 UTC 日期截断）。
func DaysBetween(a, b Date) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(da.Sub(db).Hours() / 24)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.UTC().Format(dateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		if string(data) == "null" {
			*d = Date{}
			return nil
		}
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
