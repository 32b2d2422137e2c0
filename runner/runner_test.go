package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/explain"
	"github.com/rushteam/compkit/feedback"
	"github.com/rushteam/compkit/model"
	"github.com/rushteam/compkit/narrative"
	"github.com/rushteam/compkit/store"
)

func property(id string, gla float64) *core.Property {
	return &core.Property{
		ID:            id,
		EffectiveAge:  core.Float(20),
		SubjectAge:    core.Float(25),
		GLA:           core.Float(gla),
		LotSize:       core.Float(5000),
		RoomCount:     core.Float(8),
		Bedrooms:      core.Float(4),
		FullBaths:     core.Float(2),
		HalfBaths:     core.Float(1),
		PropertyType:  "Detached",
		EffectiveDate: core.NewDate(2025, time.April, 1),
		SalePrice:     core.Float(400000 + gla),
	}
}

// testOrders: 每个订单 2 个真实 comp（GLA 差 20/40），2 个干扰项（差 300/600）
func testOrders(n int) []*core.Order {
	orders := make([]*core.Order, 0, n)
	for i := range n {
		id := fmt.Sprintf("o%02d", i)
		base := 1500 + float64(i)*10
		orders = append(orders, &core.Order{
			ID:      id,
			Subject: *property(id+"-s", base),
			Comps:   []string{id + "-c1", id + "-c2"},
			Candidates: []*core.Property{
				property(id+"-d1", base+300),
				property(id+"-c1", base-20),
				property(id+"-d2", base-600),
				property(id+"-c2", base+40),
			},
		})
	}
	return orders
}

type staticNarrator struct{}

func (staticNarrator) Name() string { return "static" }

func (staticNarrator) Narrate(_ context.Context, req *narrative.Request) (string, error) {
	return "close in size to " + req.Subject.ID, nil
}

// blockingNarrator 第一次调用时通知 started，随后阻塞到 ctx 结束
type blockingNarrator struct {
	once    sync.Once
	started chan struct{}
}

func (*blockingNarrator) Name() string { return "blocking" }

func (n *blockingNarrator) Narrate(ctx context.Context, _ *narrative.Request) (string, error) {
	n.once.Do(func() { close(n.started) })
	<-ctx.Done()
	return "", ctx.Err()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Train.Rounds = 20
	cfg.Train.LearningRate = 0.3
	cfg.Split.TestFraction = 0.34
	cfg.ExplainK = 2
	cfg.EvalK = 2
	cfg.Workers = 3
	return cfg
}

func TestRunner_Run(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	defer kv.Close()

	r := New(testConfig(), WithStore(kv), WithNarrator(staticNarrator{}))
	res, err := r.Run(ctx, testOrders(6))
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.Train.Groups, 4)
	assert.Len(t, res.Test.Groups, 2)
	require.NotNil(t, res.Report)
	assert.Equal(t, 2, res.Report.Evaluated())
	assert.InDelta(t, 1.0, res.Report.MeanPrecision, 1e-9)

	require.Len(t, res.Orders, 2)
	for _, o := range res.Orders {
		require.Len(t, o.Records, 2)
		for _, rec := range o.Records {
			require.NotNil(t, rec.IsComp)
			assert.True(t, *rec.IsComp)
			assert.Equal(t, core.NarrativeOK, rec.NarrativeStatus)
			require.NotNil(t, rec.Narrative)
			assert.InDelta(t, rec.Score-rec.Baseline, rec.ContributionSum(), 1e-6)
		}
		require.NotNil(t, o.Estimate)
		assert.Equal(t, 2, o.Estimate.Count)

		stored, err := explain.LoadRecords(ctx, kv, res.RunID, o.OrderID)
		require.NoError(t, err)
		assert.Len(t, stored, 2)
	}
	assert.InDelta(t, 1.0, res.ExplainedPrecision, 1e-9)
	assert.Equal(t, 0, res.NarrativeFailures)
}

func TestRunner_Deterministic(t *testing.T) {
	ctx := context.Background()
	a, err := New(testConfig()).Run(ctx, testOrders(6))
	require.NoError(t, err)
	b, err := New(testConfig()).Run(ctx, testOrders(6))
	require.NoError(t, err)

	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.Test.Groups, b.Test.Groups)
	assert.Equal(t, a.Report, b.Report)
	assert.Equal(t, a.Orders, b.Orders)
}

func TestRunner_FeedbackExcludesRejected(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	defer kv.Close()
	fb := feedback.NewLog(kv)
	require.NoError(t, fb.Record(ctx, feedback.Entry{OrderID: "o00", CandidateID: "o00-c1", Agree: false}))

	cfg := testConfig()
	cfg.ExplainScope = ScopeAll
	res, err := New(cfg, WithStore(kv), WithFeedback(fb)).Run(ctx, testOrders(6))
	require.NoError(t, err)
	require.Len(t, res.Orders, 6)

	first := res.Orders[0]
	require.Equal(t, "o00", first.OrderID)
	for _, rec := range first.Records {
		assert.NotEqual(t, "o00-c1", rec.CandidateID)
		assert.Equal(t, core.NarrativeSkipped, rec.NarrativeStatus)
	}
}

func TestRunner_LinearModel(t *testing.T) {
	cfg := testConfig()
	cfg.ModelKind = model.KindLinear
	res, err := New(cfg).Run(context.Background(), testOrders(6))
	require.NoError(t, err)
	assert.Equal(t, model.KindLinear, res.Model.Name())
}

func TestRunner_Errors(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig()
	cfg.ModelKind = "xgboost"
	_, err := New(cfg).Run(ctx, testOrders(4))
	assert.True(t, core.IsNotSupported(err))

	// 所有订单都没有成对信号
	orders := testOrders(3)
	for _, o := range orders {
		o.Comps = nil
	}
	_, err = New(testConfig()).Run(ctx, orders)
	assert.True(t, core.IsInsufficientData(err))

	orders = testOrders(3)
	orders[1].Candidates[0].GLA = nil
	_, err = New(testConfig()).Run(ctx, orders)
	assert.True(t, core.IsDataIntegrity(err))
}

func TestRunner_ExplainOrdersCancelled(t *testing.T) {
	m := model.NewLinearModel(core.FeatureSchema(), 0, map[string]float64{core.FeatureAbsGLADiff: -1}, nil)
	r := New(testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, _, err := r.ExplainOrders(ctx, "run", m, testOrders(3))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)

	results, _, err = r.ExplainOrders(context.Background(), "run", m, testOrders(3))
	require.NoError(t, err)
	assert.Equal(t, []string{"o00", "o01", "o02"}, []string{results[0].OrderID, results[1].OrderID, results[2].OrderID})
}

func TestRunner_ExplainOrdersCancelledDuringNarrative(t *testing.T) {
	m := model.NewLinearModel(core.FeatureSchema(), 0, map[string]float64{core.FeatureAbsGLADiff: -1}, nil)
	kv := store.NewMemoryStore()
	defer kv.Close()
	n := &blockingNarrator{started: make(chan struct{})}
	cfg := testConfig()
	cfg.Workers = 1
	r := New(cfg, WithStore(kv), WithNarrator(n))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-n.started
		cancel()
	}()

	results, failures, err := r.ExplainOrders(ctx, "run-c", m, testOrders(3))
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
	require.NotEmpty(t, results)

	// 已算出的订单都在结果中，记录已写入且叙述标记为失败
	total := 0
	for _, res := range results {
		require.Len(t, res.Records, cfg.ExplainK)
		stored, err := explain.LoadRecords(context.Background(), kv, "run-c", res.OrderID)
		require.NoError(t, err, res.OrderID)
		assert.Len(t, stored, cfg.ExplainK)
		for _, rec := range stored {
			assert.Equal(t, core.NarrativeFailed, rec.NarrativeStatus)
			assert.Nil(t, rec.Narrative)
		}
		total += len(res.Records)
	}
	assert.Equal(t, total, failures)
}

func TestExplainedPrecision(t *testing.T) {
	yes, no := true, false
	orders := []*OrderResult{
		{Records: []*core.ExplanationRecord{{IsComp: &yes}, {IsComp: &no}}},
		{Records: []*core.ExplanationRecord{{IsComp: &yes}}},
		{Records: []*core.ExplanationRecord{{}}},
	}
	assert.InDelta(t, 0.5, ExplainedPrecision(orders, 2), 1e-9)
	assert.Equal(t, 0.0, ExplainedPrecision(nil, 2))
	assert.Equal(t, 0.0, ExplainedPrecision(orders, 0))
}
