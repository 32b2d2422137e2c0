// Package dataset 把订单转换为分组的训练表：按订单分组、按真实 comps 打标签、
// 标记没有成对信号的分组，并提供订单粒度的 train/test 切分与 CSV 导出。
package dataset

import (
	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/feature"
	"github.com/rushteam/compkit/log"
)

// Key 定位订单内的一个候选
type Key struct {
	OrderID     string
	CandidateID string
}

// Table 是分组训练表。同一订单的行连续，Groups 与行顺序对齐。
type Table struct {
	Rows   []core.TrainingRow
	Groups []core.Group
}

// GroupSizes 返回与 Rows 对齐的分组大小
func (t *Table) GroupSizes() []int { return core.GroupSizes(t.Groups) }

// Contributing 返回可贡献成对损失的分组数
func (t *Table) Contributing() int {
	n := 0
	for _, g := range t.Groups {
		if g.Contributing {
			n++
		}
	}
	return n
}

// GroupRows 返回第 i 个分组的行（共享底层数组）
func (t *Table) GroupRows(i int) []core.TrainingRow {
	start := 0
	for j := 0; j < i; j++ {
		start += t.Groups[j].Size
	}
	return t.Rows[start : start+t.Groups[i].Size]
}

// Builder 构造训练表
type Builder struct {
	engine    *feature.Engine
	overrides map[Key]int
	logger    log.Logger
}

// BuilderOption 配置选项
type BuilderOption func(*Builder)

// WithEngine 指定特征引擎
func WithEngine(e *feature.Engine) BuilderOption {
	return func(b *Builder) {
		b.engine = e
	}
}

// WithLabelOverrides 用评审反馈替换 (order, candidate) 的真实标签
func WithLabelOverrides(overrides map[Key]int) BuilderOption {
	return func(b *Builder) {
		b.overrides = overrides
	}
}

// WithLogger 指定日志输出
func WithLogger(l log.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = l
	}
}

// NewBuilder 创建训练表构造器
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{logger: log.Default}
	for _, opt := range opts {
		opt(b)
	}
	if b.engine == nil {
		b.engine = feature.NewEngine()
	}
	return b
}

// Build 为每个订单的每个候选生成一行，is_comp = 1 当且仅当候选 id 属于该订单的 comps。
//
// 重复出现的订单 id 合并为一个分组（候选与 comps 取并集，subject 取首次出现），
// 订单内重复的候选 id 只保留首次出现。任一候选缺失必填字段时整体失败（DATA_INTEGRITY）。
// 没有成对信号的分组保留在表中（Contributing=false），由训练阶段决定是否致命。
func (b *Builder) Build(orders []*core.Order) (*Table, error) {
	merged, err := b.merge(orders)
	if err != nil {
		return nil, err
	}

	t := &Table{Groups: make([]core.Group, 0, len(merged))}
	for _, order := range merged {
		comps := order.CompSet()
		seen := make(map[string]struct{}, len(order.Candidates))
		g := core.Group{OrderID: order.ID}
		for _, c := range order.Candidates {
			if c == nil {
				continue
			}
			if _, dup := seen[c.ID]; dup {
				b.logger.Warnf("dataset: order %s: duplicate candidate %s dropped", order.ID, c.ID)
				continue
			}
			seen[c.ID] = struct{}{}

			fv, err := b.engine.Compute(order.ID, &order.Subject, c)
			if err != nil {
				return nil, err
			}
			label := 0
			if _, ok := comps[c.ID]; ok {
				label = 1
			}
			if v, ok := b.overrides[Key{OrderID: order.ID, CandidateID: c.ID}]; ok {
				label = v
			}
			t.Rows = append(t.Rows, core.TrainingRow{FeatureVector: *fv, IsComp: label})
			g.Size++
			g.Positives += label
		}
		for id := range comps {
			if _, ok := seen[id]; !ok {
				b.logger.Debugf("dataset: order %s: comp %s is not in the candidate pool", order.ID, id)
			}
		}
		g.Contributing = g.Size >= 2 && g.Positives > 0 && g.Positives < g.Size
		if !g.Contributing {
			b.logger.Warnf("dataset: order %s has %d candidates and %d comps, no pairwise signal",
				order.ID, g.Size, g.Positives)
		}
		t.Groups = append(t.Groups, g)
	}
	return t, nil
}

// Build 是使用默认特征引擎的便捷函数
func Build(orders []*core.Order, opts ...BuilderOption) (*Table, error) {
	return NewBuilder(opts...).Build(orders)
}

// Merge 按 Build 的规则合并重复的订单 id，返回副本，不修改入参。
func (b *Builder) Merge(orders []*core.Order) ([]*core.Order, error) {
	return b.merge(orders)
}

func (b *Builder) merge(orders []*core.Order) ([]*core.Order, error) {
	out := make([]*core.Order, 0, len(orders))
	index := make(map[string]int, len(orders))
	for _, o := range orders {
		if o == nil {
			continue
		}
		if o.ID == "" {
			return nil, core.NewDataIntegrityError("", "", "orderId")
		}
		i, ok := index[o.ID]
		if !ok {
			index[o.ID] = len(out)
			cp := *o
			cp.Comps = append([]string(nil), o.Comps...)
			cp.Candidates = append([]*core.Property(nil), o.Candidates...)
			out = append(out, &cp)
			continue
		}
		b.logger.Warnf("dataset: order %s appears more than once, candidates merged", o.ID)
		out[i].Comps = append(out[i].Comps, o.Comps...)
		out[i].Candidates = append(out[i].Candidates, o.Candidates...)
	}
	return out, nil
}
