// Package runner 编排一次批处理运行：
// 构建训练表 → 订单粒度切分 → 训练 → 评估 → 解释 → 叙述 → 持久化。
//
// 各订单的解释相互独立，并发执行；运行被取消时未处理的订单放弃，已产出的记录保持有效。
package runner

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/dataset"
	"github.com/rushteam/compkit/evaluate"
	"github.com/rushteam/compkit/explain"
	"github.com/rushteam/compkit/feature"
	"github.com/rushteam/compkit/feedback"
	"github.com/rushteam/compkit/filter"
	"github.com/rushteam/compkit/log"
	"github.com/rushteam/compkit/model"
	"github.com/rushteam/compkit/narrative"
	"github.com/rushteam/compkit/pipeline"
)

// 解释范围
const (
	ScopeTest = "test" // 只解释测试集订单（测试集为空时解释全部）
	ScopeAll  = "all"
)

// Config 是一次运行的配置
type Config struct {
	ModelKind    string               `mapstructure:"model_kind"` // gbrank / linear
	Train        core.TrainConfig     `mapstructure:"train"`
	Split        core.SplitConfig     `mapstructure:"split"`
	EvalK        int                  `mapstructure:"eval_k"`
	ExplainK     int                  `mapstructure:"explain_k"`
	ExplainScope string               `mapstructure:"explain_scope"`
	Workers      int                  `mapstructure:"workers"`
	Narrative    core.NarrativeConfig `mapstructure:"narrative"`
	RecordTTL    int                  `mapstructure:"record_ttl"` // 秒，0 表示不过期
}

// DefaultConfig 返回默认运行配置
func DefaultConfig() Config {
	return Config{
		ModelKind:    model.KindGBRank,
		Train:        core.DefaultTrainConfig(),
		Split:        core.DefaultSplitConfig(),
		EvalK:        3,
		ExplainK:     3,
		ExplainScope: ScopeTest,
		Workers:      8,
		Narrative:    core.DefaultNarrativeConfig(),
	}
}

// OrderResult 是单个订单的解释结果
type OrderResult struct {
	OrderID  string                    `json:"orderId"`
	Records  []*core.ExplanationRecord `json:"records"`
	Estimate *core.ValueEstimate       `json:"estimate,omitempty"`
}

// Result 是一次运行的产出
type Result struct {
	RunID  string
	Train  *dataset.Table
	Test   *dataset.Table
	Model  model.Explainer
	Report *evaluate.Report
	Orders []*OrderResult
	// ExplainedPrecision 是已解释且带真实 comps 的订单上的平均 top-K precision
	ExplainedPrecision float64
	NarrativeFailures  int
}

// Runner 执行批处理运行。Runner 自身只读，可复用。
type Runner struct {
	cfg      Config
	features *feature.Engine
	store    core.KeyValueStore
	feedback *feedback.Log
	narrator narrative.Narrator
	sinks    []explain.Sink
	filters  []pipeline.Node
	logger   log.Logger
}

// Option 配置选项
type Option func(*Runner)

// WithFeatureEngine 指定特征引擎
func WithFeatureEngine(fe *feature.Engine) Option {
	return func(r *Runner) {
		r.features = fe
	}
}

// WithStore 指定 KV Store：解释记录写入 Store，反馈日志从 Store 读取。
func WithStore(s core.KeyValueStore) Option {
	return func(r *Runner) {
		r.store = s
	}
}

// WithFeedback 启用反馈：训练时覆盖标签，推理时剔除被否决的候选。
func WithFeedback(l *feedback.Log) Option {
	return func(r *Runner) {
		r.feedback = l
	}
}

// WithNarrator 指定叙述服务；为 nil 时不生成叙述。
func WithNarrator(n narrative.Narrator) Option {
	return func(r *Runner) {
		r.narrator = n
	}
}

// WithSink 追加解释记录输出
func WithSink(s explain.Sink) Option {
	return func(r *Runner) {
		r.sinks = append(r.sinks, s)
	}
}

// WithFilters 追加候选过滤节点（打分前执行）
func WithFilters(nodes ...pipeline.Node) Option {
	return func(r *Runner) {
		r.filters = append(r.filters, nodes...)
	}
}

// WithLogger 指定日志
func WithLogger(l log.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

func New(cfg Config, opts ...Option) *Runner {
	r := &Runner{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.features == nil {
		r.features = feature.NewEngine()
	}
	if r.logger == nil {
		r.logger = log.Default
	}
	return r
}

// Config 返回运行配置
func (r *Runner) Config() Config { return r.cfg }

// NewRunID 生成运行 id
func NewRunID() string { return uuid.NewString() }

// Run 执行完整运行
func (r *Runner) Run(ctx context.Context, orders []*core.Order) (*Result, error) {
	res := &Result{RunID: NewRunID()}
	logger := r.logger.With("run_id", res.RunID)

	merged, table, err := r.BuildTable(ctx, orders, logger)
	if err != nil {
		return nil, err
	}

	res.Train, res.Test, err = dataset.Split(table, r.cfg.Split)
	if err != nil {
		return nil, err
	}
	logger.Infof("runner: split %d train / %d test orders", len(res.Train.Groups), len(res.Test.Groups))

	res.Model, err = r.Train(ctx, res.Train, logger)
	if err != nil {
		return nil, err
	}

	if len(res.Test.Groups) > 0 {
		res.Report, err = evaluate.EvaluateTable(res.Model, res.Test, r.cfg.EvalK, evaluate.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		logger.Infof("runner: test precision@%d=%.4f ndcg@%d=%.4f over %d groups",
			res.Report.K, res.Report.MeanPrecision, res.Report.K, res.Report.MeanNDCG, res.Report.Evaluated())
	}

	res.Orders, res.NarrativeFailures, err = r.ExplainOrders(ctx, res.RunID, res.Model, r.explainTargets(merged, res.Test))
	res.ExplainedPrecision = ExplainedPrecision(res.Orders, r.cfg.ExplainK)
	if err != nil {
		return res, err
	}
	logger.Infof("runner: explained %d orders, top-%d precision %.4f, %d narrative failures",
		len(res.Orders), r.cfg.ExplainK, res.ExplainedPrecision, res.NarrativeFailures)
	return res, nil
}

// BuildTable 合并重复订单并构建训练表；启用反馈时用评审结论覆盖标签。
func (r *Runner) BuildTable(ctx context.Context, orders []*core.Order, logger log.Logger) ([]*core.Order, *dataset.Table, error) {
	if logger == nil {
		logger = r.logger
	}
	builder := dataset.NewBuilder(r.builderOptions(ctx, logger)...)
	merged, err := builder.Merge(orders)
	if err != nil {
		return nil, nil, err
	}
	table, err := builder.Build(merged)
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("runner: %d orders, %d rows, %d contributing groups", len(table.Groups), len(table.Rows), table.Contributing())
	return merged, table, nil
}

func (r *Runner) builderOptions(ctx context.Context, logger log.Logger) []dataset.BuilderOption {
	opts := []dataset.BuilderOption{dataset.WithEngine(r.features), dataset.WithLogger(logger)}
	if r.feedback != nil {
		overrides, err := r.feedback.Overrides(ctx)
		if err != nil {
			logger.Warnf("runner: feedback unavailable, training on ground truth labels: %v", err)
		} else if len(overrides) > 0 {
			logger.Infof("runner: applying %d feedback label overrides", len(overrides))
			opts = append(opts, dataset.WithLabelOverrides(overrides))
		}
	}
	return opts
}

// Train 按配置训练模型
func (r *Runner) Train(ctx context.Context, t *dataset.Table, logger log.Logger) (model.Explainer, error) {
	if logger == nil {
		logger = r.logger
	}
	switch r.cfg.ModelKind {
	case "", model.KindGBRank:
		m, err := model.Train(ctx, t.Rows, t.GroupSizes(), r.cfg.Train,
			model.WithLogger(logger),
			model.WithEvalMetric(evaluate.TrainingMetric(r.cfg.Train.EvalMetric, r.cfg.Train.EvalK)))
		if err != nil {
			return nil, err
		}
		return m, nil
	case model.KindLinear:
		m, err := model.TrainLinear(ctx, t.Rows, t.GroupSizes(), r.cfg.Train, model.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeNotSupported,
		fmt.Sprintf("model: unknown kind %q", r.cfg.ModelKind))
}

func (r *Runner) explainTargets(orders []*core.Order, test *dataset.Table) []*core.Order {
	if r.cfg.ExplainScope == ScopeAll || test == nil || len(test.Groups) == 0 {
		return orders
	}
	ids := make(map[string]struct{}, len(test.Groups))
	for _, g := range test.Groups {
		ids[g.OrderID] = struct{}{}
	}
	out := make([]*core.Order, 0, len(ids))
	for _, o := range orders {
		if _, ok := ids[o.ID]; ok {
			out = append(out, o)
		}
	}
	return out
}

// ExplainOrders 并发解释订单、补充叙述并写入全部 Sink。
//
// 解释与叙述/持久化分两级执行：订单记录算出后立即计入结果，叙述与写入在独立的
// 协程中完成，慢速叙述服务不占用解释并发度。取消只放弃尚未解释的订单，已产出的
// 记录照常写入。返回结果按订单 id 排序，错误为第一个解释错误或写入错误。
func (r *Runner) ExplainOrders(ctx context.Context, runID string, m model.Explainer, orders []*core.Order) ([]*OrderResult, int, error) {
	if r.cfg.ExplainK <= 0 {
		return nil, 0, core.NewInvalidArgumentError(core.ModuleExplain, "k must be > 0")
	}

	engine := explain.NewEngine(r.explainOptions()...)

	var dispatcher *narrative.Dispatcher
	if r.narrator != nil {
		d, err := narrative.NewDispatcher(r.narrator, r.cfg.Narrative.Workers, narrative.WithDispatcherLogger(r.logger))
		if err != nil {
			return nil, 0, err
		}
		defer d.Release()
		dispatcher = d
	}

	var (
		mu      sync.Mutex
		results []*OrderResult
		failed  int
	)

	produced := make(chan *OrderResult, len(orders))
	finished := make(chan error, 1)
	go func() {
		var post errgroup.Group
		post.SetLimit(max(r.cfg.Workers, 1))
		for res := range produced {
			post.Go(func() error {
				nf, err := r.finish(ctx, dispatcher, runID, res)
				mu.Lock()
				failed += nf
				mu.Unlock()
				return err
			})
		}
		finished <- post.Wait()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.cfg.Workers, 1))
	for _, order := range orders {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			records, err := engine.Explain(gctx, m, order, r.cfg.ExplainK)
			if err != nil {
				return fmt.Errorf("order %s: %w", order.ID, err)
			}
			res := &OrderResult{OrderID: order.ID, Records: records, Estimate: explain.Estimate(order.ID, records)}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			produced <- res
			return nil
		})
	}
	err := g.Wait()
	close(produced)
	if perr := <-finished; err == nil {
		err = perr
	}

	sort.Slice(results, func(i, j int) bool { return results[i].OrderID < results[j].OrderID })
	return results, failed, err
}

// finish 为一个订单补充叙述并写入 Sink，返回叙述失败数。
// 写入使用脱离取消的 ctx，已算出的记录不因运行取消而丢失。
func (r *Runner) finish(ctx context.Context, dispatcher *narrative.Dispatcher, runID string, res *OrderResult) (int, error) {
	nf := 0
	if dispatcher != nil {
		nf = dispatcher.Annotate(ctx, res.Records)
	}
	sink := r.sink()
	if len(sink) == 0 {
		return nf, nil
	}
	if err := sink.Write(context.WithoutCancel(ctx), runID, res.OrderID, res.Records); err != nil {
		return nf, fmt.Errorf("order %s: persist records: %w", res.OrderID, err)
	}
	return nf, nil
}

func (r *Runner) explainOptions() []explain.Option {
	opts := []explain.Option{explain.WithFeatureEngine(r.features), explain.WithLogger(r.logger)}
	filters := append([]pipeline.Node(nil), r.filters...)
	if r.feedback != nil {
		filters = append(filters, &filter.FilterNode{Filters: []filter.Filter{r.feedback.ExcludeFilter()}})
	}
	if len(filters) > 0 {
		opts = append(opts, explain.WithFilters(filters...))
	}
	return opts
}

func (r *Runner) sink() explain.MultiSink {
	sinks := append(explain.MultiSink(nil), r.sinks...)
	if r.store != nil {
		sinks = append(sinks, &explain.StoreSink{Store: r.store, TTL: r.cfg.RecordTTL})
	}
	return sinks
}

// ExplainedPrecision 是带真实 comps 的已解释订单上 top-K precision 的均值（分母固定为 K）
func ExplainedPrecision(orders []*OrderResult, k int) float64 {
	if k <= 0 {
		return 0
	}
	var sum float64
	n := 0
	for _, o := range orders {
		labels := make([]int, 0, len(o.Records))
		known := false
		for _, rec := range o.Records {
			if rec.IsComp == nil {
				continue
			}
			known = true
			if *rec.IsComp {
				labels = append(labels, 1)
			} else {
				labels = append(labels, 0)
			}
		}
		if !known {
			continue
		}
		sum += evaluate.PrecisionAtK(labels, k)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
