package narrative

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/log"
)

// RetryPolicy 是叙述调用的重试策略。
// MaxAttempts 含首次调用：MaxAttempts=3 表示 1 次调用 + 最多 2 次重试。
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	BackoffFactor   float64
	MaxInterval     time.Duration
	Jitter          bool
	// PerAttemptTimeout 单次调用超时；0 表示只受外层 ctx 约束
	PerAttemptTimeout time.Duration
}

// PolicyFromConfig 由叙述配置生成重试策略（指数退避，因子 2，带抖动）
func PolicyFromConfig(cfg core.NarrativeConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       cfg.MaxAttempts,
		InitialInterval:   cfg.InitialInterval,
		BackoffFactor:     2.0,
		MaxInterval:       cfg.MaxInterval,
		Jitter:            true,
		PerAttemptTimeout: cfg.Timeout,
	}
}

// NextDelay 返回第 attempt 次调用失败后的等待时间（attempt 从 1 开始）
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	delay := float64(p.InitialInterval) * math.Pow(factor, float64(attempt-1))
	if p.MaxInterval > 0 {
		delay = math.Min(delay, float64(p.MaxInterval))
	}
	d := time.Duration(delay)
	if p.Jitter && d > 0 {
		d += time.Duration(rand.Int64N(int64(d)))
	}
	return d
}

// retryable 参数类错误与外层取消不重试
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !core.IsInvalidArgument(err) && !core.IsNotSupported(err)
}

// Retrying 为 Narrator 增加超时与指数退避重试
type Retrying struct {
	next   Narrator
	policy RetryPolicy
	logger log.Logger
}

// WithRetry 包装 Narrator
func WithRetry(n Narrator, policy RetryPolicy, logger log.Logger) *Retrying {
	if logger == nil {
		logger = log.Default
	}
	return &Retrying{next: n, policy: policy, logger: logger}
}

func (r *Retrying) Name() string { return r.next.Name() }

func (r *Retrying) Narrate(ctx context.Context, req *Request) (string, error) {
	attempts := max(r.policy.MaxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		text, err := r.once(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) || attempt == attempts {
			break
		}
		delay := r.policy.NextDelay(attempt)
		r.logger.Warnf("narrative: %s attempt %d/%d for order %s candidate %s failed: %v; retry in %s",
			r.next.Name(), attempt, attempts, req.OrderID, req.CandidateID, err, delay)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", lastErr
}

func (r *Retrying) once(ctx context.Context, req *Request) (string, error) {
	if r.policy.PerAttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.PerAttemptTimeout)
		defer cancel()
	}
	return r.next.Narrate(ctx, req)
}
