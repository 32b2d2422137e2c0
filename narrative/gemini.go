package narrative

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel 是未指定模型时使用的 Gemini 模型
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiOptions 是 Gemini 叙述服务配置
type GeminiOptions struct {
	APIKey  string
	BaseURL string // 可选：代理或测试服务地址
	Model   string
}

// Gemini 通过 GenAI SDK（Gemini API 后端）生成叙述
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini 创建 Gemini 叙述服务
func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	config := &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  opts.APIKey,
	}
	if opts.BaseURL != "" {
		config.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, unavailable("gemini", err)
	}
	model := opts.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Narrate(ctx context.Context, req *Request) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](DefaultTemperature),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(UserPrompt(req)), config)
	if err != nil {
		return "", unavailable(g.Name(), err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", unavailable(g.Name(), errors.New("empty content"))
	}
	return text, nil
}
