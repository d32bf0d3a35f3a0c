package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborwatch/maritime-scene-service/graph"
	"github.com/harborwatch/maritime-scene-service/inference"
	"github.com/harborwatch/maritime-scene-service/preprocess"
	"github.com/harborwatch/maritime-scene-service/tensor"
)

// emit ignores its input values and returns a fixed tensor, standing in for a
// real compute module.
type emit struct{ out *tensor.Tensor }

func (m emit) Forward(in []*tensor.Tensor) (*tensor.Tensor, error) { return m.out, nil }

type identity struct{}

func (identity) Forward(in []*tensor.Tensor) (*tensor.Tensor, error) { return in[0], nil }

// newBackendGraph wires a minimal multi-task graph: a trunk node feeding a
// detection tail and two heads attached at position 0.
func newBackendGraph(t *testing.T) *inference.Runner {
	t.Helper()
	det := tensor.New(1, 2, 6)
	pitch := tensor.New(1, 3)
	theta := tensor.New(1, 3)
	g, err := graph.New([]graph.Node{
		{ID: "0", Source: graph.Previous(), Kind: graph.KindConv, Retain: true, Module: identity{}},
		{ID: "1", Source: graph.Previous(), Kind: graph.KindDetect, Module: emit{out: det}},
		{ID: "pitch", Source: graph.FromPosition(0), Kind: graph.KindClassify, Task: graph.HeadPitch, Module: emit{out: pitch}},
		{ID: "theta", Source: graph.FromPosition(0), Kind: graph.KindClassify, Task: graph.HeadTheta, Module: emit{out: theta}},
	}, []int{8, 16, 32})
	require.NoError(t, err)
	return inference.New(g, 0)
}

func TestGraphBackendForward(t *testing.T) {
	t.Parallel()

	t.Run("multi-task mode reports three outputs", func(t *testing.T) {
		t.Parallel()
		b := NewGraphBackend(newBackendGraph(t), inference.ModeBoth, 2, 2, 1, false)
		out, err := b.Forward(tensor.New(1, 3, 2, 2))
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, []int{1, 2, 6}, out[0].Shape())
		assert.Equal(t, []int{1, 3}, out[1].Shape())
		assert.Equal(t, []int{1, 3}, out[2].Shape())
	})

	t.Run("horizon mode reports pitch and theta only", func(t *testing.T) {
		t.Parallel()
		b := NewGraphBackend(newBackendGraph(t), inference.ModeHorizon, 2, 2, 1, false)
		out, err := b.Forward(tensor.New(1, 3, 2, 2))
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, []int{1, 3}, out[0].Shape())
	})

	t.Run("detection mode reports one output", func(t *testing.T) {
		t.Parallel()
		b := NewGraphBackend(newBackendGraph(t), inference.ModeDetection, 2, 2, 1, false)
		out, err := b.Forward(tensor.New(1, 3, 2, 2))
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, []int{1, 2, 6}, out[0].Shape())
	})

	t.Run("rejects a batch with the wrong geometry", func(t *testing.T) {
		t.Parallel()
		b := NewGraphBackend(newBackendGraph(t), inference.ModeBoth, 2, 2, 1, false)
		var ierr *preprocess.InputError
		_, err := b.Forward(tensor.New(1, 3, 4, 4))
		assert.ErrorAs(t, err, &ierr)
	})
}

func TestGraphBackendGeometry(t *testing.T) {
	t.Parallel()

	b := NewGraphBackend(newBackendGraph(t), inference.ModeBoth, 640, 640, 2, true)
	assert.Equal(t, 640, b.InputHeight())
	assert.Equal(t, 640, b.InputWidth())
	assert.Equal(t, 2, b.BatchSize())
	assert.True(t, b.FP16())
	assert.NoError(t, b.Close())
}
