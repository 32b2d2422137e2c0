package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/model"
	"github.com/rushteam/compkit/narrative"
	"github.com/rushteam/compkit/runner"
	"github.com/rushteam/compkit/store"
)

// EnvPrefix 是环境变量前缀，如 COMPKIT_TRAIN_ROUNDS、COMPKIT_STORE_DRIVER。
const EnvPrefix = "COMPKIT"

// Config 是命令行的完整配置，来源优先级：
// 命令行参数 > 环境变量 > .env / .env.local > 配置文件（compkit.yaml）> 默认值。
type Config struct {
	ConfigFile string `mapstructure:"-"`
	LogLevel   string `mapstructure:"log_level"`

	Model     ModelConfig          `mapstructure:"model"`
	Train     core.TrainConfig     `mapstructure:"train"`
	Split     core.SplitConfig     `mapstructure:"split"`
	Evaluate  EvaluateConfig       `mapstructure:"evaluate"`
	Explain   ExplainConfig        `mapstructure:"explain"`
	Narrative core.NarrativeConfig `mapstructure:"narrative"`
	Store     StoreConfig          `mapstructure:"store"`
	Pipeline  PipelineConfig       `mapstructure:"pipeline"`

	// Credentials 只从环境变量读取，不写入配置文件
	Credentials narrative.Credentials `mapstructure:"-"`
}

type ModelConfig struct {
	Kind string `mapstructure:"kind"` // gbrank / linear
}

type EvaluateConfig struct {
	K int `mapstructure:"k"`
}

type ExplainConfig struct {
	K       int    `mapstructure:"k"`
	Workers int    `mapstructure:"workers"`
	Scope   string `mapstructure:"scope"` // test / all
}

type StoreConfig struct {
	store.Config `mapstructure:",squash"`
	// RecordTTL 是解释记录在 Store 中的过期时间，0 表示不过期
	RecordTTL time.Duration `mapstructure:"record_ttl"`
}

type PipelineConfig struct {
	// Config 是节点链配置文件路径（YAML/JSON）
	Config string `mapstructure:"config"`
}

// LoadConfig 加载配置；configFile 为空时在当前目录与 $HOME/.compkit 下查找 compkit.yaml，找不到不报错。
func LoadConfig(configFile string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := bindAPIKeys(v); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("compkit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".compkit"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()
	cfg.Credentials = narrative.Credentials{
		OpenAIKey:     v.GetString("openai_api_key"),
		OpenAIBaseURL: v.GetString("openai_base_url"),
		GeminiKey:     v.GetString("gemini_api_key"),
		GeminiBaseURL: v.GetString("gemini_base_url"),
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	train := core.DefaultTrainConfig()
	split := core.DefaultSplitConfig()
	nc := core.DefaultNarrativeConfig()
	rc := runner.DefaultConfig()

	v.SetDefault("log_level", "info")
	v.SetDefault("model.kind", model.KindGBRank)

	v.SetDefault("train.learning_rate", train.LearningRate)
	v.SetDefault("train.max_depth", train.MaxDepth)
	v.SetDefault("train.rounds", train.Rounds)
	v.SetDefault("train.lambda", train.Lambda)
	v.SetDefault("train.min_child_weight", train.MinChildWeight)
	v.SetDefault("train.subsample", train.Subsample)
	v.SetDefault("train.eval_metric", train.EvalMetric)
	v.SetDefault("train.eval_k", train.EvalK)
	v.SetDefault("train.seed", train.Seed)

	v.SetDefault("split.test_fraction", split.TestFraction)
	v.SetDefault("split.seed", split.Seed)

	v.SetDefault("evaluate.k", rc.EvalK)
	v.SetDefault("explain.k", rc.ExplainK)
	v.SetDefault("explain.workers", rc.Workers)
	v.SetDefault("explain.scope", rc.ExplainScope)

	v.SetDefault("narrative.provider", nc.Provider)
	v.SetDefault("narrative.model", nc.Model)
	v.SetDefault("narrative.timeout", nc.Timeout)
	v.SetDefault("narrative.max_attempts", nc.MaxAttempts)
	v.SetDefault("narrative.initial_interval", nc.InitialInterval)
	v.SetDefault("narrative.max_interval", nc.MaxInterval)
	v.SetDefault("narrative.workers", nc.Workers)

	v.SetDefault("store.driver", store.DriverMemory)
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.record_ttl", time.Duration(0))

	v.SetDefault("pipeline.config", "")
}

// loadEnvFiles 依次加载 .env 与 .env.local；已存在的环境变量不会被覆盖。
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// bindAPIKeys 绑定不带前缀的服务商环境变量
func bindAPIKeys(v *viper.Viper) error {
	bindings := [][]string{
		{"openai_api_key", "OPENAI_API_KEY"},
		{"openai_base_url", "OPENAI_BASE_URL"},
		{"gemini_api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
		{"gemini_base_url", "GEMINI_BASE_URL"},
	}
	for _, b := range bindings {
		if err := v.BindEnv(b...); err != nil {
			return fmt.Errorf("bind env %s: %w", b[1], err)
		}
	}
	return nil
}

// RunnerConfig 转换为 runner 配置
func (c *Config) RunnerConfig() runner.Config {
	return runner.Config{
		ModelKind:    c.Model.Kind,
		Train:        c.Train,
		Split:        c.Split,
		EvalK:        c.Evaluate.K,
		ExplainK:     c.Explain.K,
		ExplainScope: c.Explain.Scope,
		Workers:      c.Explain.Workers,
		Narrative:    c.Narrative,
		RecordTTL:    int(c.Store.RecordTTL / time.Second),
	}
}

// Validate 校验与具体命令无关的配置项
func (c *Config) Validate() error {
	if err := c.Train.Validate(); err != nil {
		return err
	}
	switch {
	case c.Evaluate.K <= 0:
		return core.NewInvalidArgumentError(core.ModuleEvaluate, "evaluate.k must be > 0")
	case c.Explain.K <= 0:
		return core.NewInvalidArgumentError(core.ModuleExplain, "explain.k must be > 0")
	case c.Explain.Scope != runner.ScopeTest && c.Explain.Scope != runner.ScopeAll:
		return core.NewInvalidArgumentError(core.ModuleExplain, "explain.scope must be test or all")
	}
	return nil
}
