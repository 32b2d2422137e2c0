// Package builders 注册内置 Node 的配置构建器。
package builders

import (
	"fmt"

	"github.com/rushteam/compkit/config"
	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/explain"
	"github.com/rushteam/compkit/feature"
	"github.com/rushteam/compkit/filter"
	"github.com/rushteam/compkit/model"
	"github.com/rushteam/compkit/pipeline"
	"github.com/rushteam/compkit/pkg/conv"
	"github.com/rushteam/compkit/rank"
	"github.com/rushteam/compkit/rerank"
)

func init() {
	config.Register("feature.diff", BuildFeatureDiffNode)
	config.Register("filter", BuildFilterNode)
	config.Register("rank.model", BuildModelNode)
	config.Register("rerank.topk", BuildTopKNode)
	config.Register("rerank.dedupe", BuildDedupeNode)
	config.Register("explain.attribution", BuildExplainNode)
}

// BuildFeatureDiffNode 配置项：recent_window_days、similarity_threshold、aliases（原始文本 -> 规范类型）
func BuildFeatureDiffNode(cfg map[string]interface{}) (pipeline.Node, error) {
	return &feature.Node{Engine: featureEngine(cfg)}, nil
}

func featureEngine(cfg map[string]interface{}) *feature.Engine {
	var canonOpts []feature.CanonicalizerOption
	if th := conv.ConfigGetInt64(cfg, "similarity_threshold", 0); th > 0 {
		canonOpts = append(canonOpts, feature.WithSimilarityThreshold(int(th)))
	}
	if extra := conv.ConfigGetStringMap(cfg, "aliases"); len(extra) > 0 {
		aliases := make(map[string]string, len(feature.DefaultTypeAliases)+len(extra))
		for k, v := range feature.DefaultTypeAliases {
			aliases[k] = v
		}
		for k, v := range extra {
			aliases[k] = v
		}
		canonOpts = append(canonOpts, feature.WithTypeAliases(aliases))
	}
	opts := []feature.EngineOption{feature.WithCanonicalizer(feature.NewCanonicalizer(canonOpts...))}
	if days := conv.ConfigGetInt64(cfg, "recent_window_days", 0); days > 0 {
		opts = append(opts, feature.WithRecentWindowDays(int(days)))
	}
	return feature.NewEngine(opts...)
}

// BuildFilterNode 配置项：filters 列表，每项 type 为 expr / subject / exclude；
// strict 为 true 时过滤器出错即中止订单。
func BuildFilterNode(cfg map[string]interface{}) (pipeline.Node, error) {
	filtersConfig, ok := cfg["filters"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("filters not found or invalid")
	}

	filters := make([]filter.Filter, 0, len(filtersConfig))
	for _, fc := range filtersConfig {
		filterMap, ok := fc.(map[string]interface{})
		if !ok {
			continue
		}
		switch filterType := conv.ConfigGet(filterMap, "type", ""); filterType {
		case "expr":
			expr := conv.ConfigGet(filterMap, "expr", "")
			if expr == "" {
				return nil, fmt.Errorf("expr filter requires expr")
			}
			f, err := filter.NewExprFilter(expr)
			if err != nil {
				return nil, err
			}
			filters = append(filters, f)
		case "subject":
			filters = append(filters, &filter.SubjectFilter{})
		case "exclude":
			ids := conv.SliceAnyToString(filterMap["candidate_ids"])
			filters = append(filters, filter.NewExcludeFilter(ids, nil, ""))
		default:
			return nil, fmt.Errorf("unknown filter type: %s", filterType)
		}
	}
	return &filter.FilterNode{Filters: filters, Strict: conv.ConfigGet(cfg, "strict", false)}, nil
}

func loadModel(cfg map[string]interface{}) (model.Explainer, error) {
	path := conv.ConfigGet(cfg, "model_path", "")
	if path == "" {
		return nil, core.NewInvalidArgumentError(core.ModuleModel, "model_path not found")
	}
	return model.LoadFile(path)
}

// BuildModelNode 配置项：model_path（model.SaveFile 写出的 artifact）
func BuildModelNode(cfg map[string]interface{}) (pipeline.Node, error) {
	m, err := loadModel(cfg)
	if err != nil {
		return nil, err
	}
	return &rank.ModelNode{Model: m}, nil
}

// BuildTopKNode 配置项：k；省略时使用 OrderContext.K
func BuildTopKNode(cfg map[string]interface{}) (pipeline.Node, error) {
	k := conv.ConfigGetInt64(cfg, "k", 0)
	if k < 0 {
		return nil, core.NewInvalidArgumentError(core.ModuleExplain, "k must be > 0")
	}
	return &rerank.TopKNode{K: int(k)}, nil
}

func BuildDedupeNode(_ map[string]interface{}) (pipeline.Node, error) {
	return &rerank.Dedupe{}, nil
}

// BuildExplainNode 配置项：model_path，以及 feature.diff 的同名配置（用于房产摘要）
func BuildExplainNode(cfg map[string]interface{}) (pipeline.Node, error) {
	m, err := loadModel(cfg)
	if err != nil {
		return nil, err
	}
	engine := explain.NewEngine(explain.WithFeatureEngine(featureEngine(cfg)))
	return &explain.Node{Engine: engine, Model: m}, nil
}
