package core

import "time"

// 评估指标名称
const (
	MetricNDCG      = "ndcg"
	MetricPrecision = "precision"
)

// TrainConfig 是 pairwise 排序模型的训练配置。所有字段均可覆盖。
type TrainConfig struct {
	LearningRate   float64 `json:"learning_rate" yaml:"learning_rate" mapstructure:"learning_rate"`
	MaxDepth       int     `json:"max_depth" yaml:"max_depth" mapstructure:"max_depth"`
	Rounds         int     `json:"rounds" yaml:"rounds" mapstructure:"rounds"`
	Lambda         float64 `json:"lambda" yaml:"lambda" mapstructure:"lambda"`                               // L2 正则
	MinChildWeight float64 `json:"min_child_weight" yaml:"min_child_weight" mapstructure:"min_child_weight"` // 叶子最小 hessian 和
	Subsample      float64 `json:"subsample" yaml:"subsample" mapstructure:"subsample"`                      // 每轮抽样的分组比例
	EvalMetric     string  `json:"eval_metric" yaml:"eval_metric" mapstructure:"eval_metric"`
	EvalK          int     `json:"eval_k" yaml:"eval_k" mapstructure:"eval_k"`
	Seed           int64   `json:"seed" yaml:"seed" mapstructure:"seed"`
}

// DefaultTrainConfig 返回文档化的默认训练配置。
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		LearningRate:   0.1,
		MaxDepth:       6,
		Rounds:         100,
		Lambda:         1.0,
		MinChildWeight: 0.01,
		Subsample:      1.0,
		EvalMetric:     MetricNDCG,
		EvalK:          3,
		Seed:           42,
	}
}

// Validate 校验配置取值
func (c TrainConfig) Validate() error {
	switch {
	case c.LearningRate <= 0:
		return NewInvalidArgumentError(ModuleModel, "learning_rate must be > 0")
	case c.MaxDepth <= 0:
		return NewInvalidArgumentError(ModuleModel, "max_depth must be > 0")
	case c.Rounds <= 0:
		return NewInvalidArgumentError(ModuleModel, "rounds must be > 0")
	case c.Lambda < 0:
		return NewInvalidArgumentError(ModuleModel, "lambda must be >= 0")
	case c.Subsample <= 0 || c.Subsample > 1:
		return NewInvalidArgumentError(ModuleModel, "subsample must be in (0, 1]")
	case c.EvalMetric != MetricNDCG && c.EvalMetric != MetricPrecision:
		return NewInvalidArgumentError(ModuleModel, "eval_metric must be ndcg or precision")
	case c.EvalK <= 0:
		return NewInvalidArgumentError(ModuleModel, "eval_k must be > 0")
	}
	return nil
}

// SplitConfig 控制订单粒度的 train/test 切分
type SplitConfig struct {
	TestFraction float64 `json:"test_fraction" yaml:"test_fraction" mapstructure:"test_fraction"`
	Seed         int64   `json:"seed" yaml:"seed" mapstructure:"seed"`
}

// DefaultSplitConfig 返回默认切分配置（20% 订单进入测试集）
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{TestFraction: 0.2, Seed: 42}
}

// NarrativeConfig 是叙述服务调用配置
type NarrativeConfig struct {
	Provider        string        `json:"provider" yaml:"provider" mapstructure:"provider"` // none / openai / gemini
	Model           string        `json:"model" yaml:"model" mapstructure:"model"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval" mapstructure:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval" mapstructure:"max_interval"`
	Workers         int           `json:"workers" yaml:"workers" mapstructure:"workers"`
}

// DefaultNarrativeConfig 返回默认叙述配置（未启用）
func DefaultNarrativeConfig() NarrativeConfig {
	return NarrativeConfig{
		Provider:        "none",
		Timeout:         30 * time.Second,
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Workers:         4,
	}
}
