package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 是订单推理 Pipeline 的配置结构（支持 YAML/JSON）。
//
// 示例：
//
//	pipeline:
//	  name: comps
//	  nodes:
//	    - type: feature.diff
//	      config:
//	        recent_window_days: 90
//	    - type: filter
//	      config:
//	        filters:
//	          - type: subject
//	          - type: expr
//	            expr: "features.abs_gla_diff < 1500.0"
//	    - type: rank.model
//	      config:
//	        model_path: models/rank.json
//	    - type: rerank.topk
//	      config:
//	        k: 3
//	    - type: explain.attribution
//	      config:
//	        model_path: models/rank.json
type Config struct {
	Pipeline struct {
		Name  string       `yaml:"name" json:"name"`
		Nodes []NodeConfig `yaml:"nodes" json:"nodes"`
	} `yaml:"pipeline" json:"pipeline"`
}

// NodeConfig 是单个 Node 的配置。
type NodeConfig struct {
	Type   string                 `yaml:"type" json:"type"`     // 见 config.SupportedTypes()
	Config map[string]interface{} `yaml:"config" json:"config"` // Node 特定配置
}

// Load 读取 Pipeline 配置文件，.json 按 JSON 解析，其余按 YAML 解析。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}
	cfg, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse 解析配置内容；节点列表为空视为错误。
func Parse(data []byte, isJSON bool) (*Config, error) {
	var cfg Config
	if isJSON {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(cfg.Pipeline.Nodes) == 0 {
		return nil, fmt.Errorf("pipeline %q has no nodes", cfg.Pipeline.Name)
	}
	return &cfg, nil
}

// BuildPipeline 按节点顺序构建 Pipeline。factory 由 config 包提供。
func (c *Config) BuildPipeline(factory *NodeFactory) (*Pipeline, error) {
	p := &Pipeline{Nodes: make([]Node, 0, len(c.Pipeline.Nodes))}
	for i, nc := range c.Pipeline.Nodes {
		node, err := factory.Build(nc.Type, nc.Config)
		if err != nil {
			return nil, fmt.Errorf("node %d (%s): %w", i, nc.Type, err)
		}
		p.Nodes = append(p.Nodes, node)
	}
	return p, nil
}

// NodeFactory 按类型名构建 Node。
type NodeFactory struct {
	builders map[string]NodeBuilder
}

func NewNodeFactory() *NodeFactory {
	return &NodeFactory{builders: make(map[string]NodeBuilder)}
}

// Register 注册构建器，同名覆盖。
func (f *NodeFactory) Register(nodeType string, builder NodeBuilder) {
	f.builders[nodeType] = builder
}

// Build 根据类型和配置构建 Node；config 为 nil 时传入空 map。
func (f *NodeFactory) Build(nodeType string, config map[string]interface{}) (Node, error) {
	builder, ok := f.builders[nodeType]
	if !ok {
		return nil, fmt.Errorf("unknown node type: %s", nodeType)
	}
	if config == nil {
		config = map[string]interface{}{}
	}
	return builder(config)
}
