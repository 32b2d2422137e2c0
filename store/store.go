// Package store 提供 core.Store / core.KeyValueStore 的实现：内存（单机、测试）与 Redis（共享部署）。
//
// 注意：此包只包含实现，接口定义在 core 包。
//
// 示例：
//
//	var s core.Store = NewMemoryStore()
//	var kv core.KeyValueStore = NewMemoryStore()
package store

import (
	"fmt"

	"github.com/rushteam/compkit/core"
)

// 后端名称
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config 是 Store 的连接配置
type Config struct {
	Driver    string `mapstructure:"driver"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
	Password  string `mapstructure:"redis_password"`
}

// Open 按配置创建 KeyValueStore；Driver 为空时使用内存实现。
func Open(cfg Config) (core.KeyValueStore, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverRedis:
		return NewRedisStore(cfg.RedisAddr, cfg.RedisDB, WithPassword(cfg.Password))
	}
	return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeNotSupported,
		fmt.Sprintf("store: unknown driver %q", cfg.Driver))
}
