package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rushteam/compkit/core"
)

// RedisStore 是 Redis 实现的 KeyValueStore，多个批处理进程共享反馈日志与解释记录时使用。
// 解释记录写为普通 key（可带 TTL），反馈日志写为 Hash。
type RedisStore struct {
	client *redis.Client
}

// RedisOption 配置选项
type RedisOption func(*redis.Options)

// WithPassword 设置认证密码
func WithPassword(password string) RedisOption {
	return func(o *redis.Options) {
		if password != "" {
			o.Password = password
		}
	}
}

// WithDialTimeout 设置连接超时
func WithDialTimeout(d time.Duration) RedisOption {
	return func(o *redis.Options) {
		o.DialTimeout = d
	}
}

// NewRedisStore 连接 Redis 并 Ping 一次。addr 可以是 host:port，也可以是 redis:// / rediss:// URL
// （URL 中的 db 优先于参数 db）。连接失败返回 UNAVAILABLE。
func NewRedisStore(addr string, db int, opts ...RedisOption) (*RedisStore, error) {
	options := &redis.Options{Addr: addr, DB: db}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, core.NewInvalidArgumentError(core.ModuleStore, "store: invalid redis url: "+err.Error())
		}
		options = parsed
	}
	for _, opt := range opts {
		opt(options)
	}

	client := redis.NewClient(options)
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout(options))
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeUnavailable,
			"store: redis unreachable: "+err.Error()).WithDetail("addr", options.Addr)
	}
	return &RedisStore{client: client}, nil
}

func pingTimeout(o *redis.Options) time.Duration {
	if o.DialTimeout > 0 {
		return 2 * o.DialTimeout
	}
	return 10 * time.Second
}

// NewRedisStoreFromClient 包装已有的 client（自定义连接池、集群代理等）
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Name() string { return DriverRedis }

// expiration 把秒级 ttl 转为 go-redis 的过期时间；未给出或非正数表示不过期。
func expiration(ttl []int) time.Duration {
	if len(ttl) > 0 && ttl[0] > 0 {
		return time.Duration(ttl[0]) * time.Second
	}
	return 0
}

// wrap 把 redis.Nil 映射为 ErrStoreNotFound，其余错误附带操作名
func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return core.ErrStoreNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("store: redis %s: %w", op, err)
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, wrap("get", err)
	}
	return val, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	return wrap("set", r.client.Set(ctx, key, value, expiration(ttl)).Err())
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return wrap("del", r.client.Del(ctx, key).Err())
}

// BatchGet 不存在的 key 不出现在结果中
func (r *RedisStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrap("mget", err)
	}
	for i, k := range keys {
		if s, ok := vals[i].(string); ok {
			result[k] = []byte(s)
		}
	}
	return result, nil
}

// BatchSet 在一个 MULTI/EXEC 事务中写入，要么全部可见要么全部不可见。
func (r *RedisStore) BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error {
	if len(kvs) == 0 {
		return nil
	}
	exp := expiration(ttl)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range kvs {
			pipe.Set(ctx, k, v, exp)
		}
		return nil
	})
	return wrap("batch set", err)
}

func (r *RedisStore) HGet(ctx context.Context, key, field string) ([]byte, error) {
	val, err := r.client.HGet(ctx, key, field).Bytes()
	if err != nil {
		return nil, wrap("hget", err)
	}
	return val, nil
}

func (r *RedisStore) HSet(ctx context.Context, key, field string, value []byte) error {
	return wrap("hset", r.client.HSet(ctx, key, field, value).Err())
}

func (r *RedisStore) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return wrap("hdel", r.client.HDel(ctx, key, fields...).Err())
}

// HGetAll key 不存在时返回空 map
func (r *RedisStore) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	vals, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, wrap("hgetall", err)
	}
	result := make(map[string][]byte, len(vals))
	for k, v := range vals {
		result[k] = []byte(v)
	}
	return result, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ core.KeyValueStore = (*RedisStore)(nil)
