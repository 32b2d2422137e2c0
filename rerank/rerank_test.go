package rerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/compkit/core"
)

func makeItems(ids ...string) []*core.Item {
	out := make([]*core.Item, len(ids))
	for i, id := range ids {
		out[i] = core.NewItem(id)
	}
	return out
}

func itemIDs(items []*core.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestTopKNode(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		nodeK int
		ctxK  int
		in    []string
		want  []string
	}{
		{name: "truncate", nodeK: 2, in: []string{"a", "b", "c"}, want: []string{"a", "b"}},
		{name: "fewer than k", nodeK: 5, in: []string{"a", "b"}, want: []string{"a", "b"}},
		{name: "k from context", ctxK: 1, in: []string{"a", "b"}, want: []string{"a"}},
		{name: "node k wins", nodeK: 2, ctxK: 1, in: []string{"a", "b", "c"}, want: []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			octx := core.NewOrderContext("run", &core.Order{ID: "o1"}, tt.ctxK)
			out, err := (&TopKNode{K: tt.nodeK}).Process(ctx, octx, makeItems(tt.in...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, itemIDs(out))
			assert.Equal(t, "1", out[0].Labels["topk"].Value)
		})
	}
}

func TestTopKNode_InvalidK(t *testing.T) {
	octx := core.NewOrderContext("run", &core.Order{ID: "o1"}, 0)
	_, err := (&TopKNode{}).Process(context.Background(), octx, makeItems("a"))
	assert.True(t, core.IsInvalidArgument(err))
}

func TestDedupe(t *testing.T) {
	in := makeItems("a", "b", "a", "c", "b")
	in = append(in, nil)
	out, err := (&Dedupe{}).Process(context.Background(), nil, in)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, itemIDs(out))
	assert.Equal(t, "true", in[2].Labels["deduped"].Value)
}
