package filter

import (
	"context"
	"encoding/json"

	"github.com/rushteam/compkit/core"
)

// StoreAdapter 将 core.Store 适配为过滤器所需的存储接口。
type StoreAdapter struct {
	store core.Store
}

// NewStoreAdapter 创建一个 core.Store 适配器。
func NewStoreAdapter(s core.Store) *StoreAdapter {
	return &StoreAdapter{store: s}
}

// GetExcluded 从 Store 读取 JSON 数组形式的排除列表；key 不存在视为空列表。
func (a *StoreAdapter) GetExcluded(ctx context.Context, key string) ([]string, error) {
	data, err := a.store.Get(ctx, key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// PutExcluded 写入排除列表
func (a *StoreAdapter) PutExcluded(ctx context.Context, key string, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return a.store.Set(ctx, key, data)
}
