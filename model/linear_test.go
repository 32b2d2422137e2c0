package model

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/compkit/core"
)

func TestTrainLinear(t *testing.T) {
	rows := []core.TrainingRow{
		trainingRow("A", "a1", 1, 10, 0),
		trainingRow("A", "a2", 0, 300, 0),
		trainingRow("A", "a3", 0, -250, 0),
		trainingRow("B", "b1", 1, 800, 0),
		trainingRow("B", "b2", 0, 1200, 0),
	}
	cfg := testConfig()
	cfg.Rounds = 200
	cfg.LearningRate = 0.5

	m, err := TrainLinear(context.Background(), rows, []int{3, 2}, cfg)
	require.NoError(t, err)
	assert.Negative(t, m.Weights[core.FeatureAbsGLADiff])

	score := func(i int) float64 {
		s, err := m.Score(&rows[i].FeatureVector)
		require.NoError(t, err)
		return s
	}
	assert.Greater(t, score(0), score(1))
	assert.Greater(t, score(0), score(2))
	assert.Greater(t, score(3), score(4))

	for i := range rows {
		phi, err := m.Attribute(&rows[i].FeatureVector)
		require.NoError(t, err)
		assert.InDelta(t, score(i)-m.Baseline(), sum(phi), 1e-9*math.Max(1, math.Abs(score(i))))
	}

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, m))
	loaded, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindLinear, loaded.Name())
	got, err := loaded.Score(&rows[0].FeatureVector)
	require.NoError(t, err)
	assert.InDelta(t, score(0), got, 1e-9)
}

func TestTrainLinear_Insufficient(t *testing.T) {
	rows := []core.TrainingRow{trainingRow("A", "a1", 1, 10, 0)}
	_, err := TrainLinear(context.Background(), rows, []int{1}, testConfig())
	assert.True(t, core.IsInsufficientData(err))
}
