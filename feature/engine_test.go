package feature

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/compkit/core"
)

func testProperty(id string, gla float64) *core.Property {
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
	}
}

func TestEngine_ComputeDiffs(t *testing.T) {
	e := NewEngine()
	subject := testProperty("s", 1500)
	cand := testProperty("c1", 1400)
	cand.LotSize = core.Float(5200)
	cand.Bedrooms = core.Float(3)
	cand.HalfBaths = core.Float(0)

	fv, err := e.Compute("o1", subject, cand)
	require.NoError(t, err)

	assert.Equal(t, "o1", fv.OrderID)
	assert.Equal(t, "c1", fv.CandidateID)
	assert.Equal(t, 100.0, fv.GLADiff)
	assert.Equal(t, 100.0, fv.AbsGLADiff)
	assert.Equal(t, -200.0, fv.LotSizeDiff)
	assert.Equal(t, 200.0, fv.AbsLotSizeDiff)
	assert.Equal(t, 1.0, fv.BedroomsDiff)
	assert.Equal(t, 1.0, fv.HalfBathsDiff)
	// bath_score 由 full + 0.5*half 推导：2.5 - 2.0
	assert.Equal(t, 0.5, fv.BathScoreDiff)
	assert.Equal(t, 1.0, fv.SamePropertyType)
	assert.Equal(t, 0.0, fv.SoldRecently)
}

func TestEngine_AbsInvariant(t *testing.T) {
	e := NewEngine()
	subject := testProperty("s", 1500)
	for i, gla := range []float64{0, 900, 1500, 2600} {
		cand := testProperty("c", gla)
		cand.EffectiveAge = core.Float(float64(i * 7))
		cand.LotSize = core.Float(float64(i * 3000))
		fv, err := e.Compute("o1", subject, cand)
		require.NoError(t, err)

		values := fv.Values()
		// 前 9 列为有符号差值，随后 9 列为对应绝对值
		for j := 0; j < 9; j++ {
			assert.Equal(t, math.Abs(values[j]), values[j+9], core.FeatureNames()[j])
		}
		assert.Contains(t, []float64{0, 1}, fv.SamePropertyType)
		assert.Contains(t, []float64{0, 1}, fv.SoldRecently)
	}
}

func TestEngine_SoldRecentlyBoundary(t *testing.T) {
	e := NewEngine()
	subject := testProperty("s", 1500)
	tests := []struct {
		name string
		sale *core.Date
		want float64
	}{
		{name: "no sale date", sale: nil, want: 0},
		{name: "90 days before", sale: datePtr(subject.EffectiveDate.AddDate(0, 0, -90)), want: 1},
		{name: "91 days before", sale: datePtr(subject.EffectiveDate.AddDate(0, 0, -91)), want: 0},
		{name: "90 days after", sale: datePtr(subject.EffectiveDate.AddDate(0, 0, 90)), want: 1},
		{name: "91 days after", sale: datePtr(subject.EffectiveDate.AddDate(0, 0, 91)), want: 0},
		{name: "same day", sale: datePtr(subject.EffectiveDate.Time), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cand := testProperty("c", 1500)
			cand.SaleDate = tt.sale
			fv, err := e.Compute("o1", subject, cand)
			require.NoError(t, err)
			assert.Equal(t, tt.want, fv.SoldRecently)
		})
	}
}

func TestEngine_SamePropertyTypeUnknownNeverMatches(t *testing.T) {
	e := NewEngine()
	subject := testProperty("s", 1500)
	subject.PropertyType = "qwxzvbk"
	cand := testProperty("c", 1500)
	cand.PropertyType = "qwxzvbk"

	fv, err := e.Compute("o1", subject, cand)
	require.NoError(t, err)
	assert.Equal(t, 0.0, fv.SamePropertyType)

	subject.PropertyType = "semi detached"
	cand.PropertyType = "Semi-Detached"
	fv, err = e.Compute("o1", subject, cand)
	require.NoError(t, err)
	assert.Equal(t, 1.0, fv.SamePropertyType)
}

func TestEngine_MissingFieldIsDataIntegrityError(t *testing.T) {
	e := NewEngine()
	subject := testProperty("s", 1500)
	cand := testProperty("c7", 1500)
	cand.Bedrooms = nil

	_, err := e.Compute("o9", subject, cand)
	require.Error(t, err)
	assert.True(t, core.IsDataIntegrity(err))
	de := core.GetDomainError(err)
	require.NotNil(t, de)
	assert.Equal(t, "o9", de.Details["order_id"])
	assert.Equal(t, "c7", de.Details["candidate_id"])
	assert.Equal(t, FieldBedrooms, de.Details["field"])

	cand = testProperty("c8", 1500)
	cand.GLA = core.Float(-1)
	_, err = e.Compute("o9", subject, cand)
	assert.True(t, core.IsDataIntegrity(err))

	noDate := testProperty("s", 1500)
	noDate.EffectiveDate = core.Date{}
	_, err = e.Compute("o9", noDate, testProperty("c9", 1500))
	assert.True(t, core.IsDataIntegrity(err))
}

func TestEngine_ComputeIsDeterministic(t *testing.T) {
	e := NewEngine()
	subject := testProperty("s", 1500)
	cand := testProperty("c", 1234)
	cand.PropertyType = "row unit"
	a, err := e.Compute("o", subject, cand)
	require.NoError(t, err)
	b, err := e.Compute("o", subject, cand)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNode_Process(t *testing.T) {
	order := &core.Order{
		ID:         "o1",
		Subject:    *testProperty("s", 1500),
		Candidates: []*core.Property{testProperty("a", 1400), testProperty("b", 1600)},
	}
	n := &Node{Engine: NewEngine()}
	items, err := n.Process(context.Background(), core.NewOrderContext("run", order, 3), core.ItemsFromOrder(order))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 100.0, items[0].Features[core.FeatureGLADiff])
	assert.Equal(t, -100.0, items[1].Vector.GLADiff)

	order.Candidates[1].RoomCount = nil
	_, err = n.Process(context.Background(), core.NewOrderContext("run", order, 3), core.ItemsFromOrder(order))
	assert.True(t, core.IsDataIntegrity(err))
}

func datePtr(t time.Time) *core.Date {
	d := core.Date{Time: t}
	return &d
}
