package utils

import "strings"

// Label 是排序链路中的一等公民：可解释、可追踪、可透传。
// 典型 key：rank_model、filtered、topk、narrative。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // feature / filter / rank / rerank / explain
}

// MergeLabel 合并同名 Label，保留历史：
// - Value: 以 '|' 累积
// - Source: 以 ',' 累积，相同来源不重复
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" {
		return existing
	}

	merged := existing
	merged.Value = existing.Value + "|" + incoming.Value
	switch {
	case existing.Source == "":
		merged.Source = incoming.Source
	case incoming.Source == "", hasSource(existing.Source, incoming.Source):
		merged.Source = existing.Source
	default:
		merged.Source = existing.Source + "," + incoming.Source
	}
	return merged
}

func hasSource(sources, source string) bool {
	for _, s := range strings.Split(sources, ",") {
		if s == source {
			return true
		}
	}
	return false
}
