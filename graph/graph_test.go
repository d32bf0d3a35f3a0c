package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborwatch/maritime-scene-service/tensor"
)

type passthrough struct{}

func (passthrough) Forward(in []*tensor.Tensor) (*tensor.Tensor, error) { return in[0], nil }

func TestNewValidatesWiring(t *testing.T) {
	t.Parallel()

	t.Run("accepts a well-wired graph", func(t *testing.T) {
		t.Parallel()
		g, err := New([]Node{
			{ID: "0", Source: Previous(), Kind: KindConv, Retain: true, Module: passthrough{}},
			{ID: "1", Source: Previous(), Kind: KindConv, Module: passthrough{}},
			{ID: "2", Source: Gather(RefRunning, 0), Kind: KindConcat, Module: passthrough{}},
		}, []int{8, 16, 32})
		require.NoError(t, err)
		assert.Equal(t, 3, g.Len())
		assert.Equal(t, []int{8, 16, 32}, g.Stride())
	})

	t.Run("rejects forward references", func(t *testing.T) {
		t.Parallel()
		_, err := New([]Node{
			{ID: "0", Source: FromPosition(1), Kind: KindConv, Module: passthrough{}},
			{ID: "1", Source: Previous(), Kind: KindConv, Retain: true, Module: passthrough{}},
		}, nil)
		var gerr *GraphError
		require.ErrorAs(t, err, &gerr)
		assert.Equal(t, 0, gerr.Pos)
	})

	t.Run("rejects self references", func(t *testing.T) {
		t.Parallel()
		_, err := New([]Node{
			{ID: "0", Source: Previous(), Kind: KindConv, Module: passthrough{}},
			{ID: "1", Source: FromPosition(1), Kind: KindConv, Module: passthrough{}},
		}, nil)
		var gerr *GraphError
		require.ErrorAs(t, err, &gerr)
	})

	t.Run("rejects retained but unreferenced positions", func(t *testing.T) {
		t.Parallel()
		_, err := New([]Node{
			{ID: "0", Source: Previous(), Kind: KindConv, Retain: true, Module: passthrough{}},
			{ID: "1", Source: Previous(), Kind: KindConv, Module: passthrough{}},
		}, nil)
		var gerr *GraphError
		require.ErrorAs(t, err, &gerr)
		assert.Equal(t, 0, gerr.Pos)
	})

	t.Run("rejects referenced but unretained positions", func(t *testing.T) {
		t.Parallel()
		_, err := New([]Node{
			{ID: "0", Source: Previous(), Kind: KindConv, Module: passthrough{}},
			{ID: "1", Source: FromPosition(0), Kind: KindConv, Module: passthrough{}},
		}, nil)
		var gerr *GraphError
		require.ErrorAs(t, err, &gerr)
		assert.Equal(t, 0, gerr.Pos)
	})

	t.Run("rejects a running-value entry outside a gather list", func(t *testing.T) {
		t.Parallel()
		_, err := New([]Node{
			{ID: "0", Source: Previous(), Kind: KindConv, Module: passthrough{}},
			{ID: "1", Source: Gather(RefRunning), Kind: KindConcat, Module: passthrough{}},
		}, nil)
		var gerr *GraphError
		require.ErrorAs(t, err, &gerr)
	})
}

func TestGraphImmutability(t *testing.T) {
	t.Parallel()

	nodes := []Node{
		{ID: "0", Source: Previous(), Kind: KindConv, Retain: true, Module: passthrough{}},
		{ID: "1", Source: Gather(RefRunning, 0), Kind: KindConcat, Module: passthrough{}},
	}
	g, err := New(nodes, nil)
	require.NoError(t, err)

	// Mutating the input slice after construction must not affect the graph.
	nodes[0].ID = "mutated"
	assert.Equal(t, "0", g.Node(0).ID)

	// Mutating a returned node must not affect the graph either.
	n := g.Node(1)
	n.ID = "other"
	assert.Equal(t, "1", g.Node(1).ID)

	// Refs hands out copies.
	refs := g.Node(1).Source.Refs()
	refs[0] = 99
	assert.Equal(t, []int{RefRunning, 0}, g.Node(1).Source.Refs())
}

func TestSourceAccessors(t *testing.T) {
	t.Parallel()

	assert.True(t, Previous().IsPrevious())

	pos, ok := FromPosition(4).Single()
	require.True(t, ok)
	assert.Equal(t, 4, pos)

	_, ok = Gather(RefRunning, 2).Single()
	assert.False(t, ok)
	_, ok = Previous().Single()
	assert.False(t, ok)
}
