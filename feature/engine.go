package feature

import (
	"math"

	"github.com/rushteam/compkit/core"
)

// DefaultRecentWindowDays 是 sold_recently 的窗口（含边界）。
const DefaultRecentWindowDays = 90

// 必填数值字段名（与上游 Property JSON 字段一致）
const (
	FieldEffectiveAge  = "effective_age"
	FieldSubjectAge    = "subject_age"
	FieldGLA           = "gla"
	FieldLotSize       = "lot_size_sf"
	FieldRoomCount     = "room_count"
	FieldBedrooms      = "bedrooms"
	FieldFullBaths     = "full_baths"
	FieldHalfBaths     = "half_baths"
	FieldBathScore     = "bath_score"
	FieldEffectiveDate = "effective_date"
)

// Engine 计算 (subject, candidate) 的差值特征向量。
//
// Compute 是纯函数：相同输入得到相同输出，不修改入参；Engine 构造后只读，可并发使用。
// 任一侧缺失必填数值字段（或为负数/NaN）返回 DATA_INTEGRITY 错误，不做填充。
type Engine struct {
	canon            *Canonicalizer
	recentWindowDays int
}

// EngineOption 配置选项
type EngineOption func(*Engine)

// WithCanonicalizer 指定类型规范化器
func WithCanonicalizer(c *Canonicalizer) EngineOption {
	return func(e *Engine) {
		e.canon = c
	}
}

// WithRecentWindowDays 设置 sold_recently 窗口天数
func WithRecentWindowDays(days int) EngineOption {
	return func(e *Engine) {
		e.recentWindowDays = days
	}
}

// NewEngine 创建特征引擎
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{recentWindowDays: DefaultRecentWindowDays}
	for _, opt := range opts {
		opt(e)
	}
	if e.canon == nil {
		e.canon = NewCanonicalizer()
	}
	return e
}

// Canonicalizer 返回引擎使用的类型规范化器
func (e *Engine) Canonicalizer() *Canonicalizer { return e.canon }

// numericField 是参与差值计算的属性（subject 侧与 candidate 侧读取方式相同）。
type numericField struct {
	name string
	get  func(p *core.Property) *float64
}

var numericFields = []numericField{
	{FieldEffectiveAge, func(p *core.Property) *float64 { return p.EffectiveAge }},
	{FieldSubjectAge, func(p *core.Property) *float64 { return p.SubjectAge }},
	{FieldGLA, func(p *core.Property) *float64 { return p.GLA }},
	{FieldLotSize, func(p *core.Property) *float64 { return p.LotSize }},
	{FieldRoomCount, func(p *core.Property) *float64 { return p.RoomCount }},
	{FieldBedrooms, func(p *core.Property) *float64 { return p.Bedrooms }},
	{FieldFullBaths, func(p *core.Property) *float64 { return p.FullBaths }},
	{FieldHalfBaths, func(p *core.Property) *float64 { return p.HalfBaths }},
	{FieldBathScore, func(p *core.Property) *float64 { return p.DerivedBathScore() }},
}

// Validate 检查 Property 的必填数值字段，返回按字段名索引的取值。
func Validate(orderID string, p *core.Property, side string) (map[string]float64, error) {
	if p == nil {
		return nil, core.NewDataIntegrityError(orderID, "", "property").WithDetail("side", side)
	}
	values := make(map[string]float64, len(numericFields))
	for _, f := range numericFields {
		v := f.get(p)
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
			return nil, core.NewDataIntegrityError(orderID, p.ID, f.name).WithDetail("side", side)
		}
		values[f.name] = *v
	}
	return values, nil
}

// Compute 计算单个候选的特征向量。差值方向为 subject - candidate。
func (e *Engine) Compute(orderID string, subject, candidate *core.Property) (*core.FeatureVector, error) {
	sv, err := Validate(orderID, subject, "subject")
	if err != nil {
		return nil, err
	}
	if subject.EffectiveDate.IsZero() {
		return nil, core.NewDataIntegrityError(orderID, subject.ID, FieldEffectiveDate).WithDetail("side", "subject")
	}
	cv, err := Validate(orderID, candidate, "candidate")
	if err != nil {
		return nil, err
	}

	diff := func(name string) (float64, float64) {
		d := sv[name] - cv[name]
		return d, math.Abs(d)
	}

	fv := &core.FeatureVector{OrderID: orderID, CandidateID: candidate.ID}
	fv.BathScoreDiff, fv.AbsBathScoreDiff = diff(FieldBathScore)
	fv.FullBathsDiff, fv.AbsFullBathsDiff = diff(FieldFullBaths)
	fv.HalfBathsDiff, fv.AbsHalfBathsDiff = diff(FieldHalfBaths)
	fv.RoomCountDiff, fv.AbsRoomCountDiff = diff(FieldRoomCount)
	fv.BedroomsDiff, fv.AbsBedroomsDiff = diff(FieldBedrooms)
	fv.EffectiveAgeDiff, fv.AbsEffectiveAgeDiff = diff(FieldEffectiveAge)
	fv.SubjectAgeDiff, fv.AbsSubjectAgeDiff = diff(FieldSubjectAge)
	fv.LotSizeDiff, fv.AbsLotSizeDiff = diff(FieldLotSize)
	fv.GLADiff, fv.AbsGLADiff = diff(FieldGLA)

	fv.SamePropertyType = boolFlag(e.SameType(subject.PropertyType, candidate.PropertyType))
	fv.SoldRecently = boolFlag(e.SoldRecently(subject, candidate))
	return fv, nil
}

// SameType 两侧规范类型都已知且相等时为 true；Unknown 不匹配任何类型。
func (e *Engine) SameType(subjectRaw, candidateRaw string) bool {
	st := e.canon.Canonicalize(subjectRaw)
	ct := e.canon.Canonicalize(candidateRaw)
	if st == core.PropertyTypeUnknown || ct == core.PropertyTypeUnknown {
		return false
	}
	return st == ct
}

// SoldRecently 候选有成交日期且与 subject 评估日相差不超过窗口天数时为 true。
func (e *Engine) SoldRecently(subject, candidate *core.Property) bool {
	if candidate.SaleDate == nil || candidate.SaleDate.IsZero() {
		return false
	}
	days := core.DaysBetween(subject.EffectiveDate, *candidate.SaleDate)
	if days < 0 {
		days = -days
	}
	return days <= e.recentWindowDays
}

// ComputeOrder 计算订单内全部候选的特征向量，保持候选顺序。
func (e *Engine) ComputeOrder(order *core.Order) ([]*core.FeatureVector, error) {
	out := make([]*core.FeatureVector, 0, len(order.Candidates))
	for _, c := range order.Candidates {
		fv, err := e.Compute(order.ID, &order.Subject, c)
		if err != nil {
			return nil, err
		}
		out = append(out, fv)
	}
	return out, nil
}

// Summarize 生成房产摘要（类型已规范化）。调用前应已通过 Validate。
func (e *Engine) Summarize(p *core.Property) core.PropertySummary {
	s := core.PropertySummary{
		ID:           p.ID,
		PropertyType: e.canon.Canonicalize(p.PropertyType),
		SalePrice:    p.SalePrice,
	}
	deref := func(v *float64) float64 {
		if v == nil {
			return 0
		}
		return *v
	}
	s.GLA = deref(p.GLA)
	s.LotSize = deref(p.LotSize)
	s.Bedrooms = deref(p.Bedrooms)
	s.FullBaths = deref(p.FullBaths)
	s.HalfBaths = deref(p.HalfBaths)
	s.BathScore = deref(p.DerivedBathScore())
	return s
}

func boolFlag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
