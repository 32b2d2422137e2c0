// Package feedback 记录评审对推荐候选的意见（同意/否决）。
//
// 反馈在下一次批量重训时覆盖对应 (order, candidate) 的标签；被否决的候选同时写入
// 订单的排除列表，供 filter.ExcludeFilter 在后续推理中剔除。
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/dataset"
	"github.com/rushteam/compkit/filter"
)

// 默认 Store key
const (
	DefaultKey           = "compkit:feedback"
	DefaultExcludePrefix = "compkit:exclude"
)

// Entry 是一条评审反馈
type Entry struct {
	OrderID     string    `json:"orderId"`
	CandidateID string    `json:"candidateId"`
	Rank        int       `json:"rank,omitempty"`
	Score       float64   `json:"score,omitempty"`
	Agree       bool      `json:"agree"`
	Reviewer    string    `json:"reviewer,omitempty"`
	At          time.Time `json:"at"`
}

// Label 返回反馈对应的训练标签
func (e Entry) Label() int {
	if e.Agree {
		return 1
	}
	return 0
}

// Log 是基于 KeyValueStore Hash 的反馈日志，同一 (order, candidate) 只保留最后一次反馈。
type Log struct {
	store         core.KeyValueStore
	key           string
	excludePrefix string
	excludes      *filter.StoreAdapter
}

// Option 配置选项
type Option func(*Log)

// WithKey 设置反馈 Hash 的 key
func WithKey(key string) Option {
	return func(l *Log) {
		l.key = key
	}
}

// WithExcludePrefix 设置排除列表 key 前缀；为空时不维护排除列表
func WithExcludePrefix(prefix string) Option {
	return func(l *Log) {
		l.excludePrefix = prefix
	}
}

// NewLog 创建反馈日志
func NewLog(store core.KeyValueStore, opts ...Option) *Log {
	l := &Log{store: store, key: DefaultKey, excludePrefix: DefaultExcludePrefix}
	for _, opt := range opts {
		opt(l)
	}
	l.excludes = filter.NewStoreAdapter(store)
	return l
}

// ExcludePrefix 返回排除列表 key 前缀（用于构造 filter.ExcludeFilter）
func (l *Log) ExcludePrefix() string { return l.excludePrefix }

// ExcludeFilter 返回读取本日志排除列表的过滤器
func (l *Log) ExcludeFilter() *filter.ExcludeFilter {
	return filter.NewExcludeFilter(nil, l.excludes, l.excludePrefix)
}

func field(orderID, candidateID string) string {
	return orderID + "/" + candidateID
}

// Record 写入一条反馈，覆盖同一候选的旧反馈。
func (l *Log) Record(ctx context.Context, e Entry) error {
	if e.OrderID == "" || e.CandidateID == "" {
		return core.NewInvalidArgumentError(core.ModuleStore, "feedback requires orderId and candidateId")
	}
	if strings.Contains(e.OrderID, "/") {
		return core.NewInvalidArgumentError(core.ModuleStore, "feedback orderId must not contain '/'")
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	if err := l.store.HSet(ctx, l.key, field(e.OrderID, e.CandidateID), data); err != nil {
		return fmt.Errorf("write feedback: %w", err)
	}
	return l.updateExclude(ctx, e.OrderID, e.CandidateID, !e.Agree)
}

// Remove 删除一条反馈
func (l *Log) Remove(ctx context.Context, orderID, candidateID string) error {
	if err := l.store.HDel(ctx, l.key, field(orderID, candidateID)); err != nil {
		return fmt.Errorf("delete feedback: %w", err)
	}
	return l.updateExclude(ctx, orderID, candidateID, false)
}

// List 返回全部反馈，按 (orderId, candidateId) 排序
func (l *Log) List(ctx context.Context) ([]Entry, error) {
	raw, err := l.store.HGetAll(ctx, l.key)
	if err != nil {
		return nil, fmt.Errorf("read feedback: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for f, data := range raw {
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode feedback %s: %w", f, err)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].OrderID != entries[j].OrderID {
			return entries[i].OrderID < entries[j].OrderID
		}
		return entries[i].CandidateID < entries[j].CandidateID
	})
	return entries, nil
}

// Overrides 返回训练标签覆盖表，传给 dataset.WithLabelOverrides
func (l *Log) Overrides(ctx context.Context) (map[dataset.Key]int, error) {
	entries, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[dataset.Key]int, len(entries))
	for _, e := range entries {
		out[dataset.Key{OrderID: e.OrderID, CandidateID: e.CandidateID}] = e.Label()
	}
	return out, nil
}

// Reset 清空反馈与对应的排除列表
func (l *Log) Reset(ctx context.Context) error {
	entries, err := l.List(ctx)
	if err != nil {
		return err
	}
	if l.excludePrefix != "" {
		seen := make(map[string]bool)
		for _, e := range entries {
			if seen[e.OrderID] {
				continue
			}
			seen[e.OrderID] = true
			if err := l.store.Delete(ctx, l.excludeKey(e.OrderID)); err != nil {
				return fmt.Errorf("reset exclude list: %w", err)
			}
		}
	}
	return l.store.Delete(ctx, l.key)
}

func (l *Log) excludeKey(orderID string) string {
	return l.excludePrefix + ":" + orderID
}

// updateExclude 维护订单排除列表：否决则加入，否则移除
func (l *Log) updateExclude(ctx context.Context, orderID, candidateID string, exclude bool) error {
	if l.excludePrefix == "" {
		return nil
	}
	key := l.excludeKey(orderID)
	ids, err := l.excludes.GetExcluded(ctx, key)
	if err != nil {
		return fmt.Errorf("read exclude list: %w", err)
	}
	has := slices.Contains(ids, candidateID)
	switch {
	case exclude && !has:
		ids = append(ids, candidateID)
		slices.Sort(ids)
	case !exclude && has:
		ids = slices.DeleteFunc(ids, func(id string) bool { return id == candidateID })
	default:
		return nil
	}
	if len(ids) == 0 {
		return l.store.Delete(ctx, key)
	}
	return l.excludes.PutExcluded(ctx, key, ids)
}
