package rank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/model"
)

func scoredItem(id string, absGLA float64) *core.Item {
	it := core.NewItem(id)
	it.SetVector(&core.FeatureVector{OrderID: "o1", CandidateID: id, AbsGLADiff: absGLA})
	return it
}

func TestModelNode_ScoresAndSorts(t *testing.T) {
	m := model.NewLinearModel(core.FeatureSchema(), 0,
		map[string]float64{core.FeatureAbsGLADiff: -1}, nil)
	n := &ModelNode{Model: m}
	octx := core.NewOrderContext("run", &core.Order{ID: "o1"}, 3)

	items := []*core.Item{
		scoredItem("b", 100),
		nil,
		scoredItem("c", 10),
		scoredItem("a", 100),
	}
	out, err := n.Process(context.Background(), octx, items)
	require.NoError(t, err)

	var ids []string
	for _, it := range out {
		if it != nil {
			ids = append(ids, it.ID)
		}
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
	assert.Nil(t, out[3])
	assert.Equal(t, -10.0, out[0].Score)
	assert.Equal(t, model.KindLinear, out[0].Labels["rank_model"].Value)
}

func TestModelNode_Errors(t *testing.T) {
	octx := core.NewOrderContext("run", &core.Order{ID: "o1"}, 3)

	_, err := (&ModelNode{}).Process(context.Background(), octx, nil)
	assert.True(t, core.IsInvalidArgument(err))

	m := model.NewLinearModel(core.FeatureSchema(), 0, nil, nil)
	_, err = (&ModelNode{Model: m}).Process(context.Background(), octx, []*core.Item{core.NewItem("x")})
	assert.True(t, core.IsInvalidArgument(err))

	stale := model.NewLinearModel(core.NewSchema([]string{"gla_diff"}), 0, nil, nil)
	_, err = (&ModelNode{Model: stale}).Process(context.Background(), octx, []*core.Item{scoredItem("x", 1)})
	assert.True(t, core.IsSchemaMismatch(err))
}
