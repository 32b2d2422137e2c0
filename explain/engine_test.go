package explain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/filter"
	"github.com/rushteam/compkit/model"
)

func testProperty(id string, gla, bedrooms float64) *core.Property {
	return &core.Property{
		ID:            id,
		EffectiveAge:  core.Float(20),
		SubjectAge:    core.Float(25),
		GLA:           core.Float(gla),
		LotSize:       core.Float(5000),
		RoomCount:     core.Float(8),
		Bedrooms:      core.Float(bedrooms),
		FullBaths:     core.Float(2),
		HalfBaths:     core.Float(1),
		PropertyType:  "Detached",
		EffectiveDate: core.NewDate(2025, time.April, 1),
	}
}

// testOrder: 线性模型下排序为 c1 > c3 = c4 > c2，c3/c4 同分按 id 决定
func testOrder() *core.Order {
	c1 := testProperty("c1", 1450, 5)
	c1.SalePrice = core.Float(500000)
	c2 := testProperty("c2", 1300, 4)
	c3 := testProperty("c3", 1600, 4)
	c4 := testProperty("c4", 1400, 4)
	c4.SalePrice = core.Float(400000)
	return &core.Order{
		ID:         "o1",
		Subject:    *testProperty("s", 1500, 4),
		Comps:      []string{"c1", "c2"},
		Candidates: []*core.Property{c2, c4, c1, c3},
	}
}

// testModel: score = -0.01*abs_gla_diff + 0.2*bedrooms_diff，abs_gla_diff 背景均值 100
func testModel() *model.LinearModel {
	return model.NewLinearModel(core.FeatureSchema(), 0,
		map[string]float64{core.FeatureAbsGLADiff: -0.01, core.FeatureBedroomsDiff: 0.2},
		map[string]float64{core.FeatureAbsGLADiff: 100})
}

func recordIDs(records []*core.ExplanationRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.CandidateID
	}
	return out
}

func TestEngine_ExplainTopK(t *testing.T) {
	records, err := NewEngine().Explain(context.Background(), testModel(), testOrder(), 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"c1", "c3", "c4"}, recordIDs(records))

	for i, r := range records {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, "o1", r.OrderID)
		assert.Len(t, r.Contributions, len(core.FeatureNames()))
		assert.InDelta(t, r.Score-r.Baseline, r.ContributionSum(), 1e-9)
		assert.Equal(t, core.NarrativeSkipped, r.NarrativeStatus)
		assert.Nil(t, r.Narrative)
	}

	top := records[0]
	assert.InDelta(t, -0.7, top.Score, 1e-9)
	assert.InDelta(t, -1.0, top.Baseline, 1e-9)
	require.Len(t, top.Positive, 1)
	assert.Equal(t, core.FeatureAbsGLADiff, top.Positive[0].Feature)
	assert.InDelta(t, 0.5, top.Positive[0].Value, 1e-9)
	assert.Equal(t, 50.0, top.Positive[0].Input)
	require.Len(t, top.Negative, 1)
	assert.Equal(t, core.FeatureBedroomsDiff, top.Negative[0].Feature)
	assert.InDelta(t, -0.2, top.Negative[0].Value, 1e-9)
	assert.Equal(t, -1.0, top.Negative[0].Input)
	assert.Equal(t, core.FeatureAbsGLADiff, top.Contributions[0].Feature)
	assert.Equal(t, core.FeatureBedroomsDiff, top.Contributions[1].Feature)

	require.NotNil(t, top.IsComp)
	assert.True(t, *top.IsComp)
	require.NotNil(t, records[1].IsComp)
	assert.False(t, *records[1].IsComp)

	assert.Equal(t, "s", top.Subject.ID)
	assert.Equal(t, "Detached", top.Candidate.PropertyType)
	assert.Equal(t, 1450.0, top.Candidate.GLA)
	assert.Equal(t, 2.5, top.Candidate.BathScore)
}

func TestEngine_ExplainZeroAttributionsPartition(t *testing.T) {
	records, err := NewEngine().Explain(context.Background(), testModel(), testOrder(), 3)
	require.NoError(t, err)
	// c4: |gla_diff| == 背景均值，bedrooms 相同，贡献全为 0
	c4 := records[2]
	assert.Empty(t, c4.Positive)
	assert.Empty(t, c4.Negative)
	assert.Len(t, c4.Contributions, len(core.FeatureNames()))
}

func TestEngine_ExplainKLargerThanPool(t *testing.T) {
	records, err := NewEngine().Explain(context.Background(), testModel(), testOrder(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c3", "c4", "c2"}, recordIDs(records))
}

func TestEngine_ExplainDeterministic(t *testing.T) {
	e := NewEngine()
	a, err := e.Explain(context.Background(), testModel(), testOrder(), 3)
	require.NoError(t, err)
	b, err := e.Explain(context.Background(), testModel(), testOrder(), 3)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEngine_ExplainDuplicateCandidates(t *testing.T) {
	order := testOrder()
	order.Candidates = append(order.Candidates, testProperty("c1", 1450, 5))
	records, err := NewEngine().Explain(context.Background(), testModel(), order, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c3", "c4", "c2"}, recordIDs(records))
}

func TestEngine_ExplainWithFilters(t *testing.T) {
	f, err := filter.NewExprFilter("features.abs_gla_diff < 150.0")
	require.NoError(t, err)
	e := NewEngine(WithFilters(&filter.FilterNode{Filters: []filter.Filter{f}}))

	records, err := e.Explain(context.Background(), testModel(), testOrder(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c3", "c4"}, recordIDs(records))

	records, err = e.Explain(context.Background(), testModel(), testOrder(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c3", "c4"}, recordIDs(records))
}

func TestEngine_ExplainErrors(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()

	for _, k := range []int{0, -1} {
		_, err := e.Explain(ctx, testModel(), testOrder(), k)
		assert.True(t, core.IsInvalidArgument(err), "k=%d", k)
	}

	_, err := e.Explain(ctx, nil, testOrder(), 3)
	assert.True(t, core.IsInvalidArgument(err))

	broken := testOrder()
	broken.Candidates[1].GLA = nil
	_, err = e.Explain(ctx, testModel(), broken, 3)
	assert.True(t, core.IsDataIntegrity(err))

	stale := model.NewLinearModel(core.NewSchema([]string{"gla_diff"}), 0, nil, nil)
	_, err = e.Explain(ctx, stale, testOrder(), 3)
	assert.True(t, core.IsSchemaMismatch(err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.Explain(cancelled, testModel(), testOrder(), 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_ExplainTrainedModelSumsToScore(t *testing.T) {
	rows := []core.TrainingRow{}
	order := testOrder()
	fe := NewEngine().features
	vectors, err := fe.ComputeOrder(order)
	require.NoError(t, err)
	comps := order.CompSet()
	for _, fv := range vectors {
		_, hit := comps[fv.CandidateID]
		row := core.TrainingRow{FeatureVector: *fv}
		if hit {
			row.IsComp = 1
		}
		rows = append(rows, row)
	}
	cfg := core.DefaultTrainConfig()
	cfg.Rounds = 10
	m, err := model.Train(context.Background(), rows, []int{len(rows)}, cfg)
	require.NoError(t, err)

	records, err := NewEngine().Explain(context.Background(), m, order, 3)
	require.NoError(t, err)
	for _, r := range records {
		assert.InDelta(t, r.Score-r.Baseline, r.ContributionSum(), 1e-6)
	}
}

func TestTop(t *testing.T) {
	cs := []core.Contribution{{Feature: "a"}, {Feature: "b"}, {Feature: "c"}}
	assert.Len(t, Top(cs, 2), 2)
	assert.Len(t, Top(cs, 5), 3)
	assert.Len(t, Top(cs, -1), 3)
	assert.Empty(t, Top(cs, 0))
}
