// Package app 集中管理 compkit 命令行的配置、日志与依赖（Store、叙述服务、节点链）。
package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rushteam/compkit/config"
	_ "github.com/rushteam/compkit/config/builders"
	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/feedback"
	"github.com/rushteam/compkit/log"
	"github.com/rushteam/compkit/narrative"
	"github.com/rushteam/compkit/pipeline"
	"github.com/rushteam/compkit/runner"
	"github.com/rushteam/compkit/store"
)

// App 持有一次命令执行所需的全部依赖。Store 延迟打开，整个进程只打开一次。
type App struct {
	version string
	config  *Config
	logger  log.Logger
	out     io.Writer

	mu    sync.Mutex
	store core.KeyValueStore
}

// Option 配置 App
type Option func(*App) error

// WithConfig 使用指定配置（跳过文件与环境变量加载）
func WithConfig(cfg *Config) Option {
	return func(a *App) error {
		a.config = cfg
		return nil
	}
}

// WithStore 使用已打开的 Store，忽略 store.* 配置
func WithStore(s core.KeyValueStore) Option {
	return func(a *App) error {
		a.store = s
		return nil
	}
}

// WithOutput 指定命令结果的输出位置（默认 stdout）
func WithOutput(w io.Writer) Option {
	return func(a *App) error {
		a.out = w
		return nil
	}
}

// New 创建 App 并加载默认配置
func New(version string, opts ...Option) (*App, error) {
	a := &App{version: version, logger: log.Default}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.config == nil {
		cfg, err := LoadConfig("")
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		a.config = cfg
	}
	return a, nil
}

func (a *App) Version() string    { return a.version }
func (a *App) Config() *Config    { return a.config }
func (a *App) Logger() log.Logger { return a.logger }

// Store 返回共享的 KeyValueStore，首次调用时按 store.* 配置打开。
func (a *App) Store() (core.KeyValueStore, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil {
		return a.store, nil
	}
	s, err := store.Open(a.config.Store.Config)
	if err != nil {
		return nil, err
	}
	a.logger.Debugf("app: opened %s store", s.Name())
	a.store = s
	return s, nil
}

// Feedback 返回基于共享 Store 的反馈日志
func (a *App) Feedback() (*feedback.Log, error) {
	s, err := a.Store()
	if err != nil {
		return nil, err
	}
	return feedback.NewLog(s), nil
}

// Narrator 按 narrative.* 配置创建叙述服务；provider 为 none 时返回 nil。
func (a *App) Narrator(ctx context.Context) (narrative.Narrator, error) {
	return narrative.New(ctx, a.config.Narrative, a.config.Credentials)
}

// Pipeline 加载 pipeline.config 指定的节点链；未配置时返回 nil。
func (a *App) Pipeline() (*pipeline.Pipeline, error) {
	path := a.config.Pipeline.Config
	if path == "" {
		return nil, nil
	}
	cfg, err := pipeline.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.ValidatePipelineConfig(cfg); err != nil {
		return nil, err
	}
	return cfg.BuildPipeline(config.DefaultFactory())
}

// Runner 组装 runner：共享 Store、反馈日志、叙述服务，以及节点链中的过滤节点。
func (a *App) Runner(ctx context.Context, extra ...runner.Option) (*runner.Runner, error) {
	s, err := a.Store()
	if err != nil {
		return nil, err
	}
	opts := []runner.Option{
		runner.WithStore(s),
		runner.WithFeedback(feedback.NewLog(s)),
		runner.WithLogger(a.logger),
	}

	n, err := a.Narrator(ctx)
	if err != nil {
		return nil, err
	}
	if n != nil {
		opts = append(opts, runner.WithNarrator(n))
	}

	p, err := a.Pipeline()
	if err != nil {
		return nil, err
	}
	if p != nil {
		for _, node := range p.Nodes {
			if node.Kind() == pipeline.KindFilter {
				opts = append(opts, runner.WithFilters(node))
			}
		}
	}
	return runner.New(a.config.RunnerConfig(), append(opts, extra...)...), nil
}

// Shutdown 释放 Store 等资源
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}
