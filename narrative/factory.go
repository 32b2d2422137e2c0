package narrative

import (
	"context"
	"fmt"

	"github.com/rushteam/compkit/core"
)

// 叙述服务提供方
const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Credentials 是各提供方的访问凭据
type Credentials struct {
	OpenAIKey     string
	OpenAIBaseURL string
	GeminiKey     string
	GeminiBaseURL string
}

// New 按配置创建带重试的 Narrator；provider 为 none 或空时返回 nil, nil（不生成叙述）。
func New(ctx context.Context, cfg core.NarrativeConfig, creds Credentials) (Narrator, error) {
	var n Narrator
	switch cfg.Provider {
	case "", ProviderNone:
		return nil, nil
	case ProviderOpenAI:
		if creds.OpenAIKey == "" {
			return nil, core.NewInvalidArgumentError(core.ModuleNarrative, "OPENAI_API_KEY is required for provider openai")
		}
		n = NewOpenAI(OpenAIOptions{APIKey: creds.OpenAIKey, BaseURL: creds.OpenAIBaseURL, Model: cfg.Model})
	case ProviderGemini:
		if creds.GeminiKey == "" {
			return nil, core.NewInvalidArgumentError(core.ModuleNarrative, "GEMINI_API_KEY is required for provider gemini")
		}
		g, err := NewGemini(ctx, GeminiOptions{APIKey: creds.GeminiKey, BaseURL: creds.GeminiBaseURL, Model: cfg.Model})
		if err != nil {
			return nil, err
		}
		n = g
	default:
		return nil, core.NewDomainError(core.ModuleNarrative, core.ErrorCodeNotSupported,
			fmt.Sprintf("narrative: unknown provider %q", cfg.Provider))
	}
	return WithRetry(n, PolicyFromConfig(cfg), nil), nil
}
