package core

import "context"

// Store 是解释记录与反馈日志使用的 key-value 存储，由 store 包实现
// （MemoryStore 用于测试和单机，RedisStore 用于共享部署）。
//
// 键约定：
//   - compkit:explain:<runID>:<orderID>  解释记录
//   - compkit:feedback                    评审反馈（Hash）
//   - compkit:exclude:<orderID>           候选排除列表
type Store interface {
	Name() string

	// Get 在 key 不存在时返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Set 的 ttl 单位为秒，省略或 0 表示不过期
	Set(ctx context.Context, key string, value []byte, ttl ...int) error
	Delete(ctx context.Context, key string) error

	// BatchGet 只返回存在的 key
	BatchGet(ctx context.Context, keys []string) (map[string][]byte, error)
	BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error

	Close() error
}

// KeyValueStore 是 Store 的扩展接口，支持 Hash 操作（反馈日志按字段写入）。
type KeyValueStore interface {
	Store

	// HGet 读取 Hash 字段
	HGet(ctx context.Context, key, field string) ([]byte, error)

	// HSet 写入 Hash 字段
	HSet(ctx context.Context, key, field string, value []byte) error

	// HDel 删除 Hash 字段
	HDel(ctx context.Context, key string, fields ...string) error

	// HGetAll 读取整个 Hash
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
}

var ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")

// IsStoreNotFound 检查错误是否为 key 不存在
func IsStoreNotFound(err error) bool {
	de := GetDomainError(err)
	return de != nil && de.Module == ModuleStore && de.Code == ErrorCodeNotFound
}
