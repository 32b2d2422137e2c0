package narrative

import (
	"context"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/log"
)

// Dispatcher 用固定大小的 goroutine 池并发调用叙述服务。
// 单条记录的失败或超时只影响该记录。
type Dispatcher struct {
	narrator Narrator
	pool     *ants.Pool
	top      int
	logger   log.Logger
}

// DispatcherOption 配置选项
type DispatcherOption func(*Dispatcher)

// WithTopContributors 设置请求携带的正/负贡献条数
func WithTopContributors(n int) DispatcherOption {
	return func(d *Dispatcher) {
		d.top = n
	}
}

// WithDispatcherLogger 指定日志
func WithDispatcherLogger(l log.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher 创建派发器；workers <= 0 时使用 1。
func NewDispatcher(n Narrator, workers int, opts ...DispatcherOption) (*Dispatcher, error) {
	pool, err := ants.NewPool(max(workers, 1))
	if err != nil {
		return nil, err
	}
	d := &Dispatcher{narrator: n, pool: pool, top: DefaultTopContributors, logger: log.Default}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Annotate 为每条记录补充叙述，原地修改记录。
// 成功：Narrative 非空，状态 ok；失败：Narrative 为空，状态 failed 并记录错误。
// 返回失败条数。ctx 取消后尚未派发的记录直接记为 failed。
func (d *Dispatcher) Annotate(ctx context.Context, records []*core.ExplanationRecord) int {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			d.fail(rec, err)
			mu.Lock()
			failed++
			mu.Unlock()
			continue
		}
		task := func() {
			defer wg.Done()
			if !d.narrate(ctx, rec) {
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}
		wg.Add(1)
		if err := d.pool.Submit(task); err != nil {
			wg.Done()
			d.fail(rec, err)
			mu.Lock()
			failed++
			mu.Unlock()
		}
	}
	wg.Wait()
	return failed
}

func (d *Dispatcher) narrate(ctx context.Context, rec *core.ExplanationRecord) bool {
	text, err := d.narrator.Narrate(ctx, NewRequest(rec, d.top))
	if err != nil {
		d.fail(rec, err)
		return false
	}
	rec.Narrative = &text
	rec.NarrativeStatus = core.NarrativeOK
	rec.NarrativeError = ""
	return true
}

func (d *Dispatcher) fail(rec *core.ExplanationRecord, err error) {
	rec.Narrative = nil
	rec.NarrativeStatus = core.NarrativeFailed
	rec.NarrativeError = err.Error()
	d.logger.Warnf("narrative: %s failed for order %s candidate %s: %v",
		d.narrator.Name(), rec.OrderID, rec.CandidateID, err)
}

// Release 释放 goroutine 池
func (d *Dispatcher) Release() {
	d.pool.Release()
}
