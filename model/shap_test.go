package model

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/compkit/core"
)

const glaIndex = 8 // gla_diff 在 schema 中的下标

func TestTreeSHAP_Stump(t *testing.T) {
	require.Equal(t, core.FeatureGLADiff, core.FeatureNames()[glaIndex])
	tree := &Tree{Nodes: []TreeNode{
		{Feature: glaIndex, Threshold: 5, Left: 1, Right: 2, Cover: 4},
		{Feature: leafFeature, Value: 1, Cover: 3},
		{Feature: leafFeature, Value: -1, Cover: 1},
	}}
	m := NewGBRank(core.FeatureSchema(), testConfig(), []*Tree{tree})
	assert.InDelta(t, 0.5, m.Baseline(), 1e-12)

	phi, err := m.Attribute(&core.FeatureVector{GLADiff: 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, phi[glaIndex], 1e-12)

	phi, err = m.Attribute(&core.FeatureVector{GLADiff: 10})
	require.NoError(t, err)
	assert.InDelta(t, -1.5, phi[glaIndex], 1e-12)
	for i, v := range phi {
		if i != glaIndex {
			assert.Zero(t, v)
		}
	}
}

func TestTreeSHAP_RepeatedFeatureOnPath(t *testing.T) {
	// 根与右子树都在 gla_diff 上分裂，左子树在 bedrooms_diff 上分裂
	tree := &Tree{Nodes: []TreeNode{
		{Feature: glaIndex, Threshold: 0, Left: 1, Right: 4, Cover: 10},
		{Feature: 4, Threshold: 1, Left: 2, Right: 3, Cover: 6},
		{Feature: leafFeature, Value: 2, Cover: 2},
		{Feature: leafFeature, Value: -1, Cover: 4},
		{Feature: glaIndex, Threshold: 100, Left: 5, Right: 6, Cover: 4},
		{Feature: leafFeature, Value: 0.5, Cover: 3},
		{Feature: leafFeature, Value: -3, Cover: 1},
	}}
	m := NewGBRank(core.FeatureSchema(), testConfig(), []*Tree{tree})

	for _, fv := range []core.FeatureVector{
		{GLADiff: -5, BedroomsDiff: 0},
		{GLADiff: -5, BedroomsDiff: 4},
		{GLADiff: 50, BedroomsDiff: 0},
		{GLADiff: 500, BedroomsDiff: 2},
	} {
		score, err := m.Score(&fv)
		require.NoError(t, err)
		phi, err := m.Attribute(&fv)
		require.NoError(t, err)
		assert.InDelta(t, score-m.Baseline(), sum(phi), 1e-9, "%+v", fv)
	}
}

func TestTreeSHAP_SumsToScoreOnTrainedModel(t *testing.T) {
	rows, sizes := separableTable()
	m, err := Train(context.Background(), rows, sizes, testConfig())
	require.NoError(t, err)

	for i := range rows {
		fv := &rows[i].FeatureVector
		score, err := m.Score(fv)
		require.NoError(t, err)
		phi, err := m.Attribute(fv)
		require.NoError(t, err)
		require.Len(t, phi, len(core.FeatureNames()))
		assert.LessOrEqual(t, math.Abs(sum(phi)-(score-m.Baseline())), 1e-6*math.Max(1, math.Abs(score)))
	}
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}
