// Package narrative 定义叙述服务（文本生成协作方）的请求/响应契约，
// 以及 OpenAI / Gemini 两种实现、重试包装和并发派发器。
//
// 叙述失败不会中断运行：记录的 Narrative 字段保持为空，NarrativeStatus 标记为 failed。
package narrative

import (
	"context"
	"fmt"
	"strings"

	"github.com/rushteam/compkit/core"
)

// DefaultTopContributors 是请求中携带的正/负贡献条数
const DefaultTopContributors = 3

// DefaultTemperature 是生成温度
const DefaultTemperature = 0.7

// Request 是发给叙述服务的请求
type Request struct {
	OrderID     string               `json:"orderId"`
	CandidateID string               `json:"candidateId"`
	Rank        int                  `json:"rank"`
	Score       float64              `json:"score"`
	Subject     core.PropertySummary `json:"subject"`
	Candidate   core.PropertySummary `json:"candidate"`
	Positive    []core.Contribution  `json:"positive"`
	Negative    []core.Contribution  `json:"negative"`
}

// NewRequest 由解释记录构造请求，正/负贡献各保留前 top 条（按绝对值降序）。
func NewRequest(rec *core.ExplanationRecord, top int) *Request {
	return &Request{
		OrderID:     rec.OrderID,
		CandidateID: rec.CandidateID,
		Rank:        rec.Rank,
		Score:       rec.Score,
		Subject:     rec.Subject,
		Candidate:   rec.Candidate,
		Positive:    head(rec.Positive, top),
		Negative:    head(rec.Negative, top),
	}
}

func head(cs []core.Contribution, n int) []core.Contribution {
	if n < 0 || n >= len(cs) {
		return cs
	}
	return cs[:n]
}

// Narrator 是叙述服务：输入结构化请求，返回一段说明文字。
type Narrator interface {
	Name() string
	Narrate(ctx context.Context, req *Request) (string, error)
}

// SystemPrompt 约束生成内容：只解释模型如何看待特征差异，不评价房产好坏。
const SystemPrompt = "You are a real estate appraisal assistant. Your job is to explain why a machine learning model " +
	"ranked a candidate property as more or less comparable to a subject property.\n\n" +
	"The model uses feature differences (e.g., size difference, age difference) between the candidate and subject. " +
	"Positive attribution values mean the feature made the candidate more similar (better match), " +
	"while negative values indicate dissimilarity.\n\n" +
	"Do not say whether the property is 'good' or 'bad'. Instead, explain how the model interpreted the feature " +
	"similarities or differences that affected the score. Use both the actual feature values and their impact scores."

// UserPrompt 把请求渲染为用户消息
func UserPrompt(req *Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The model gave candidate property %s (%s, %.0f sqft GLA) a score of %.2f when comparing it to subject %s (%s, %.0f sqft GLA).\n\n",
		req.Candidate.ID, req.Candidate.PropertyType, req.Candidate.GLA, req.Score,
		req.Subject.ID, req.Subject.PropertyType, req.Subject.GLA)
	fmt.Fprintf(&b, "These features made the candidate more similar:\n%s\n\n", describe(req.Positive))
	fmt.Fprintf(&b, "These features made the candidate less similar:\n%s\n\n", describe(req.Negative))
	b.WriteString("Using the actual values and impact scores, explain in 1-2 sentences why the model ranked this candidate where it did.")
	return b.String()
}

func describe(cs []core.Contribution) string {
	if len(cs) == 0 {
		return "None"
	}
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = fmt.Sprintf("%s = %.2f (impact %+.2f)", c.Feature, c.Input, c.Value)
	}
	return strings.Join(parts, ", ")
}

// unavailable 包装协作方错误
func unavailable(provider string, err error) error {
	return fmt.Errorf("%s: %w", provider,
		core.NewDomainError(core.ModuleNarrative, core.ErrorCodeUnavailable, "narrative: "+err.Error()))
}
