package narrative

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultOpenAIModel 是未指定模型时使用的 OpenAI 模型
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIOptions 是 OpenAI 叙述服务配置
type OpenAIOptions struct {
	APIKey  string
	BaseURL string // 可选：OpenAI 兼容服务
	Model   string
}

// OpenAI 通过 Chat Completions 生成叙述
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI 创建 OpenAI 叙述服务。SDK 自带的重试被关闭，由 Retrying 统一负责。
func NewOpenAI(opts OpenAIOptions) *OpenAI {
	clientOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{client: openai.NewClient(clientOpts...), model: model}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Narrate(ctx context.Context, req *Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(UserPrompt(req)),
		},
		Temperature: openai.Float(DefaultTemperature),
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", unavailable(o.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return "", unavailable(o.Name(), errors.New("empty choices"))
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", unavailable(o.Name(), errors.New("empty content"))
	}
	return text, nil
}
