// Package config 维护节点类型注册表，把 pipeline 配置（YAML/JSON）中的 type 映射到 Node 构建器。
//
// 内置节点由 config/builders 在 init 中注册，入口处需要：
//
//	import _ "github.com/rushteam/compkit/config/builders"
package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/compkit/pipeline"
)

// NodeBuilder 与 pipeline.NodeBuilder 一致：根据 config 构建 Node。
type NodeBuilder = pipeline.NodeBuilder

var (
	registry   = make(map[string]NodeBuilder)
	registryMu sync.RWMutex
)

// Register 注册一种节点类型；同名重复注册时后者覆盖前者。
func Register(typeName string, builder NodeBuilder) {
	if typeName == "" || builder == nil {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[typeName] = builder
}

// SupportedTypes 返回已注册的节点类型（排序）
func SupportedTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultFactory 返回注册表当前快照构成的 NodeFactory
func DefaultFactory() *pipeline.NodeFactory {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f := pipeline.NewNodeFactory()
	for typeName, builder := range registry {
		f.Register(typeName, builder)
	}
	return f
}

// ValidatePipelineConfig 在构建前检查每个节点都声明了已注册的 type，一次返回全部问题。
func ValidatePipelineConfig(cfg *pipeline.Config) error {
	if cfg == nil {
		return nil
	}
	registryMu.RLock()
	defer registryMu.RUnlock()

	var errs []error
	for i, nc := range cfg.Pipeline.Nodes {
		if nc.Type == "" {
			errs = append(errs, fmt.Errorf("node %d: type is required", i))
			continue
		}
		if _, ok := registry[nc.Type]; !ok {
			errs = append(errs, fmt.Errorf("node %d: unsupported type %q", i, nc.Type))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	errs = append(errs, fmt.Errorf("supported types: %v", types))
	return errors.Join(errs...)
}
