package model

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/compkit/core"
)

func TestTrain_SeparatesWithinGroups(t *testing.T) {
	rows, sizes := separableTable()
	m, err := Train(context.Background(), rows, sizes, testConfig())
	require.NoError(t, err)
	assert.Equal(t, 30, m.NumTrees())

	start := 0
	for _, size := range sizes {
		minPos, maxNeg := math.Inf(1), math.Inf(-1)
		for i := start; i < start+size; i++ {
			s, err := m.Score(&rows[i].FeatureVector)
			require.NoError(t, err)
			if rows[i].IsComp == 1 {
				minPos = math.Min(minPos, s)
			} else {
				maxNeg = math.Max(maxNeg, s)
			}
		}
		assert.Greater(t, minPos, maxNeg, "group starting at row %d", start)
		start += size
	}
}

func TestTrain_Deterministic(t *testing.T) {
	rows, sizes := separableTable()
	cfg := testConfig()
	cfg.Subsample = 0.5

	a, err := Train(context.Background(), rows, sizes, cfg)
	require.NoError(t, err)
	b, err := Train(context.Background(), rows, sizes, cfg)
	require.NoError(t, err)
	assert.Equal(t, a.Trees(), b.Trees())

	for i := range rows {
		sa, _ := a.Score(&rows[i].FeatureVector)
		sb, _ := b.Score(&rows[i].FeatureVector)
		assert.Equal(t, sa, sb)
	}
}

func TestTrain_DegenerateGroups(t *testing.T) {
	rows, sizes := separableTable()
	rows = append(rows,
		trainingRow("C", "c1", 0, 5, 0),
		trainingRow("C", "c2", 0, 50, 0),
	)
	sizes = append(sizes, 2, 0)

	m, err := Train(context.Background(), rows, sizes, testConfig())
	require.NoError(t, err)
	assert.Positive(t, m.NumTrees())

	allSame := []core.TrainingRow{
		trainingRow("C", "c1", 0, 5, 0),
		trainingRow("C", "c2", 0, 50, 0),
		trainingRow("D", "d1", 1, 5, 0),
	}
	_, err = Train(context.Background(), allSame, []int{2, 1}, testConfig())
	assert.True(t, core.IsInsufficientData(err))

	_, err = Train(context.Background(), nil, nil, testConfig())
	assert.True(t, core.IsInsufficientData(err))
}

func TestTrain_InvalidGroups(t *testing.T) {
	rows, _ := separableTable()
	tests := []struct {
		name  string
		rows  []core.TrainingRow
		sizes []int
	}{
		{name: "sizes do not sum to rows", rows: rows, sizes: []int{4, 3}},
		{name: "group mixes orders", rows: rows, sizes: []int{3, 5}},
		{name: "negative size", rows: rows, sizes: []int{-1, 9}},
		{
			name: "order split across groups",
			rows: []core.TrainingRow{
				trainingRow("A", "a1", 1, 1, 0),
				trainingRow("B", "b1", 0, 1, 0),
				trainingRow("A", "a2", 0, 1, 0),
			},
			sizes: []int{1, 1, 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Train(context.Background(), tt.rows, tt.sizes, testConfig())
			assert.True(t, core.IsInvalidArgument(err), "got %v", err)
		})
	}
}

func TestTrain_InvalidConfig(t *testing.T) {
	rows, sizes := separableTable()
	cfg := testConfig()
	cfg.Rounds = 0
	_, err := Train(context.Background(), rows, sizes, cfg)
	assert.True(t, core.IsInvalidArgument(err))
}

func TestTrain_Cancelled(t *testing.T) {
	rows, sizes := separableTable()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Train(ctx, rows, sizes, testConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrain_EvalMetricHook(t *testing.T) {
	rows, sizes := separableTable()
	calls := 0
	_, err := Train(context.Background(), rows, sizes, testConfig(),
		WithEvalMetric(func(scores, labels []float64, groupSizes []int) float64 {
			calls++
			assert.Len(t, scores, len(rows))
			assert.Equal(t, sizes, groupSizes)
			return 1
		}))
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPairwiseGradients_StayInsideGroups(t *testing.T) {
	labels := []float64{1, 0, 0, 1, 1}
	scores := []float64{0.2, 0.4, -1, 3, 5}
	spans := []groupSpan{{start: 0, size: 3}, {start: 3, size: 2}}
	grad := make([]float64, 5)
	hess := make([]float64, 5)
	pairwiseGradients(spans, labels, scores, grad, hess)

	assert.InDelta(t, 0, grad[0]+grad[1]+grad[2], 1e-12)
	assert.Less(t, grad[0], 0.0)
	assert.Greater(t, grad[1], 0.0)
	// 第二组标签相同，没有成对信号
	assert.Equal(t, []float64{0, 0}, grad[3:])
	assert.Equal(t, []float64{0, 0}, hess[3:])
}

func TestGBRank_ScoreRejectsNilAndMismatchedSchema(t *testing.T) {
	m := NewGBRank(core.FeatureSchema(), testConfig(), nil)
	_, err := m.Score(nil)
	assert.True(t, core.IsInvalidArgument(err))

	other := NewGBRank(core.NewSchema([]string{"gla_diff"}), testConfig(), nil)
	_, err = other.Score(&core.FeatureVector{})
	assert.True(t, core.IsSchemaMismatch(err))
	_, err = other.Attribute(&core.FeatureVector{})
	assert.True(t, core.IsSchemaMismatch(err))
}
