package filter

import (
	"context"

	"github.com/rushteam/compkit/core"
)

// ExcludeFilter 剔除指定的候选：固定 id 列表，或按订单存放在 Store 中的排除列表
// （如评审明确否决、不应再推荐的候选）。
type ExcludeFilter struct {
	// CandidateIDs 是内存中的排除列表，对所有订单生效
	CandidateIDs []string

	// Store 用于按订单读取排除列表（可选）
	Store ExcludeStore

	// KeyPrefix 是 Store 中的 key 前缀，实际 key 为 {KeyPrefix}:{OrderID}
	KeyPrefix string
}

// ExcludeStore 是排除列表存储接口。
type ExcludeStore interface {
	// GetExcluded 获取排除的候选 id 列表
	GetExcluded(ctx context.Context, key string) ([]string, error)
}

// NewExcludeFilter 创建一个排除过滤器。
func NewExcludeFilter(candidateIDs []string, storeAdapter *StoreAdapter, keyPrefix string) *ExcludeFilter {
	var store ExcludeStore
	if storeAdapter != nil {
		store = storeAdapter
	}
	return &ExcludeFilter{
		CandidateIDs: candidateIDs,
		Store:        store,
		KeyPrefix:    keyPrefix,
	}
}

func (f *ExcludeFilter) Name() string {
	return "filter.exclude"
}

func (f *ExcludeFilter) ShouldFilter(
	ctx context.Context,
	octx *core.OrderContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}

	for _, id := range f.CandidateIDs {
		if item.ID == id {
			return true, nil
		}
	}

	if f.Store != nil && f.KeyPrefix != "" {
		ids, err := f.Store.GetExcluded(ctx, f.KeyPrefix+":"+octx.OrderID())
		if err != nil {
			return false, err
		}
		for _, id := range ids {
			if item.ID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

// SubjectFilter 剔除与 subject 同 id 的候选（候选池里混入 subject 本身）。
type SubjectFilter struct{}

func (f *SubjectFilter) Name() string {
	return "filter.subject"
}

func (f *SubjectFilter) ShouldFilter(_ context.Context, octx *core.OrderContext, item *core.Item) (bool, error) {
	if octx == nil || octx.Order == nil || item == nil {
		return false, nil
	}
	return octx.Order.Subject.ID != "" && item.ID == octx.Order.Subject.ID, nil
}
