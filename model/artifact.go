package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rushteam/compkit/core"
)

// ArtifactFormatVersion 是当前 artifact 格式版本
const ArtifactFormatVersion = 1

// Artifact 是模型的自包含序列化形式：格式版本、模型类型、训练 schema、训练配置与参数。
type Artifact struct {
	FormatVersion int               `json:"format_version"`
	Kind          string            `json:"kind"`
	Schema        core.Schema       `json:"schema"`
	Config        *core.TrainConfig `json:"config,omitempty"`
	Trees         []*Tree           `json:"trees,omitempty"`
	Linear        *LinearParams     `json:"linear,omitempty"`
}

// LinearParams 是 LinearModel 的参数
type LinearParams struct {
	Bias    float64            `json:"bias"`
	Weights map[string]float64 `json:"weights"`
	Means   map[string]float64 `json:"means"`
}

// Save 把模型写为 JSON artifact
func Save(w io.Writer, m RankModel) error {
	a := &Artifact{FormatVersion: ArtifactFormatVersion, Kind: m.Name(), Schema: m.Schema()}
	switch mm := m.(type) {
	case *GBRank:
		cfg := mm.config
		a.Config = &cfg
		a.Trees = mm.trees
	case *LinearModel:
		a.Linear = &LinearParams{Bias: mm.Bias, Weights: mm.Weights, Means: mm.Means}
	default:
		return core.NewDomainError(core.ModuleModel, core.ErrorCodeNotSupported,
			fmt.Sprintf("model: cannot serialize %s", m.Name()))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

// Load 读取 artifact 并校验格式版本、schema 完整性以及与当前特征 schema 的一致性。
// schema 不一致是致命配置错误（SCHEMA_MISMATCH），不会返回可用模型。
func Load(r io.Reader) (Explainer, error) {
	var a Artifact
	dec := json.NewDecoder(r)
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("model: decode artifact: %w", err)
	}
	if a.FormatVersion != ArtifactFormatVersion {
		return nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeNotSupported,
			fmt.Sprintf("model: artifact format version %d not supported", a.FormatVersion))
	}
	if recomputed := core.NewSchema(a.Schema.Features); recomputed.Version != a.Schema.Version {
		return nil, core.NewSchemaMismatchError(a.Schema.Version, recomputed.Version).
			WithDetail("reason", "artifact schema version does not match its feature list")
	}
	if err := checkSchema(a.Schema); err != nil {
		return nil, err
	}

	switch a.Kind {
	case KindGBRank:
		if err := validateTrees(a.Trees, len(a.Schema.Features)); err != nil {
			return nil, err
		}
		cfg := core.DefaultTrainConfig()
		if a.Config != nil {
			cfg = *a.Config
		}
		return NewGBRank(a.Schema, cfg, a.Trees), nil
	case KindLinear:
		if a.Linear == nil {
			return nil, corruptArtifact("linear parameters missing")
		}
		return NewLinearModel(a.Schema, a.Linear.Bias, a.Linear.Weights, a.Linear.Means), nil
	}
	return nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeNotSupported,
		fmt.Sprintf("model: unknown artifact kind %q", a.Kind))
}

// SaveFile 原子写入 artifact 文件（先写临时文件再 rename）
func SaveFile(path string, m RankModel) error {
	var buf bytes.Buffer
	if err := Save(&buf, m); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadFile 从文件读取 artifact
func LoadFile(path string) (Explainer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func validateTrees(trees []*Tree, nFeatures int) error {
	for ti, t := range trees {
		if t == nil || len(t.Nodes) == 0 {
			return corruptArtifact(fmt.Sprintf("tree %d is empty", ti))
		}
		for ni, n := range t.Nodes {
			if n.IsLeaf() {
				continue
			}
			if n.Feature < 0 || n.Feature >= nFeatures {
				return corruptArtifact(fmt.Sprintf("tree %d node %d: feature %d out of range", ti, ni, n.Feature))
			}
			// 子节点总在父节点之后，保证遍历终止
			if n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return corruptArtifact(fmt.Sprintf("tree %d node %d: bad child index", ti, ni))
			}
		}
	}
	return nil
}

func corruptArtifact(msg string) error {
	return core.NewDomainError(core.ModuleModel, core.ErrorCodeInvalidArgument, "model: corrupt artifact: "+msg)
}
