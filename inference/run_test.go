package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborwatch/maritime-scene-service/graph"
	"github.com/harborwatch/maritime-scene-service/tensor"
)

// scaleOp multiplies its single input elementwise and records that it ran, so
// tests can assert exactly which positions a mode executes.
type scaleOp struct {
	factor float32
	ran    *[]string
	id     string
}

func (m scaleOp) Forward(in []*tensor.Tensor) (*tensor.Tensor, error) {
	if m.ran != nil {
		*m.ran = append(*m.ran, m.id)
	}
	src := in[0].Data()
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = v * m.factor
	}
	return tensor.FromSlice(out, in[0].Shape()...)
}

// sumOp adds all of its inputs elementwise.
type sumOp struct {
	ran *[]string
	id  string
}

func (m sumOp) Forward(in []*tensor.Tensor) (*tensor.Tensor, error) {
	if m.ran != nil {
		*m.ran = append(*m.ran, m.id)
	}
	out := make([]float32, in[0].Len())
	for _, t := range in {
		for i, v := range t.Data() {
			out[i] += v
		}
	}
	return tensor.FromSlice(out, in[0].Shape()...)
}

func scalar(v float32) *tensor.Tensor {
	t, _ := tensor.FromSlice([]float32{v}, 1)
	return t
}

// newMultiTask wires a branching graph with the head attach point at
// position 1:
//
//	0 conv    x2          running
//	1 conv    x3          retained, read by the concat and both heads
//	2 sppf    x5          running
//	3 concat  running+1   sum
//	4 detect  x1          detection output
//	5 pitch   head on 1   x10
//	6 theta   head on 1   x100
func newMultiTask(t *testing.T, ran *[]string) (*graph.Graph, int) {
	t.Helper()
	g, err := graph.New([]graph.Node{
		{ID: "0", Source: graph.Previous(), Kind: graph.KindConv, Module: scaleOp{factor: 2, ran: ran, id: "0"}},
		{ID: "1", Source: graph.Previous(), Kind: graph.KindConv, Retain: true, Module: scaleOp{factor: 3, ran: ran, id: "1"}},
		{ID: "2", Source: graph.Previous(), Kind: graph.KindSPPF, Module: scaleOp{factor: 5, ran: ran, id: "2"}},
		{ID: "3", Source: graph.Gather(graph.RefRunning, 1), Kind: graph.KindConcat, Module: sumOp{ran: ran, id: "3"}},
		{ID: "4", Source: graph.Previous(), Kind: graph.KindDetect, Module: scaleOp{factor: 1, ran: ran, id: "4"}},
		{ID: "pitch", Source: graph.FromPosition(1), Kind: graph.KindClassify, Task: graph.HeadPitch, Module: scaleOp{factor: 10, ran: ran, id: "pitch"}},
		{ID: "theta", Source: graph.FromPosition(1), Kind: graph.KindClassify, Task: graph.HeadTheta, Module: scaleOp{factor: 100, ran: ran, id: "theta"}},
	}, []int{8, 16, 32})
	require.NoError(t, err)
	return g, 1
}

func TestRunModeBoth(t *testing.T) {
	t.Parallel()

	var ran []string
	g, cutoff := newMultiTask(t, &ran)
	res, err := New(g, cutoff).Run(scalar(1), ModeBoth)
	require.NoError(t, err)

	// x -> 2x -> 6x -> 30x -> 30x+6x -> detect.
	require.NotNil(t, res.Detection)
	assert.InDelta(t, 36, res.Detection.Data()[0], 1e-6)
	require.NotNil(t, res.Pitch)
	assert.InDelta(t, 60, res.Pitch.Data()[0], 1e-6)
	require.NotNil(t, res.Theta)
	assert.InDelta(t, 600, res.Theta.Data()[0], 1e-6)
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "pitch", "theta"}, ran)
}

func TestRunModeDetection(t *testing.T) {
	t.Parallel()

	var ran []string
	g, cutoff := newMultiTask(t, &ran)
	res, err := New(g, cutoff).Run(scalar(1), ModeDetection)
	require.NoError(t, err)

	require.NotNil(t, res.Detection)
	assert.InDelta(t, 36, res.Detection.Data()[0], 1e-6)
	assert.Nil(t, res.Pitch)
	assert.Nil(t, res.Theta)
	assert.NotContains(t, ran, "pitch")
	assert.NotContains(t, ran, "theta")
}

func TestRunModeHorizon(t *testing.T) {
	t.Parallel()

	var ran []string
	g, cutoff := newMultiTask(t, &ran)
	res, err := New(g, cutoff).Run(scalar(1), ModeHorizon)
	require.NoError(t, err)

	assert.Nil(t, res.Detection)
	require.NotNil(t, res.Pitch)
	assert.InDelta(t, 60, res.Pitch.Data()[0], 1e-6)
	require.NotNil(t, res.Theta)
	assert.InDelta(t, 600, res.Theta.Data()[0], 1e-6)

	// Nothing past the cutoff runs except the heads.
	assert.Equal(t, []string{"0", "1", "pitch", "theta"}, ran)
}

func TestRunCacheIsCallScoped(t *testing.T) {
	t.Parallel()

	g, cutoff := newMultiTask(t, nil)
	r := New(g, cutoff)

	res, err := r.Run(scalar(1), ModeBoth)
	require.NoError(t, err)
	require.NotNil(t, res.Pitch)

	// A detection-only run right after a full run must not carry over head
	// outputs or cached positions.
	res, err = r.Run(scalar(2), ModeDetection)
	require.NoError(t, err)
	assert.Nil(t, res.Pitch)
	assert.Nil(t, res.Theta)
	assert.InDelta(t, 72, res.Detection.Data()[0], 1e-6)
}

func TestRunGatherOrderAndRunningEntry(t *testing.T) {
	t.Parallel()

	// The concat consumes (running, cached-1) in declared order; a sum hides
	// ordering, so use a module that subtracts the second input from the first.
	sub := moduleFunc(func(in []*tensor.Tensor) (*tensor.Tensor, error) {
		return scalar(in[0].Data()[0] - in[1].Data()[0]), nil
	})
	g, err := graph.New([]graph.Node{
		{ID: "0", Source: graph.Previous(), Kind: graph.KindConv, Retain: true, Module: scaleOp{factor: 3, id: "0"}},
		{ID: "1", Source: graph.Previous(), Kind: graph.KindConv, Module: scaleOp{factor: 5, id: "1"}},
		{ID: "2", Source: graph.Gather(graph.RefRunning, 0), Kind: graph.KindConcat, Module: sub},
	}, nil)
	require.NoError(t, err)

	res, err := New(g, 2).Run(scalar(1), ModeDetection)
	require.NoError(t, err)
	assert.InDelta(t, 12, res.Detection.Data()[0], 1e-6) // 15 - 3
}

func TestRunMissingDependency(t *testing.T) {
	t.Parallel()

	// An artifact loader may hand over a pre-validated graph; a stale wiring
	// surfaces at execution time as a graph error.
	g := graph.NewUnvalidated([]graph.Node{
		{ID: "0", Source: graph.Previous(), Kind: graph.KindConv, Module: scaleOp{factor: 2, id: "0"}},
		{ID: "1", Source: graph.FromPosition(0), Kind: graph.KindConv, Module: scaleOp{factor: 3, id: "1"}},
	}, nil)

	_, err := New(g, 1).Run(scalar(1), ModeBoth)
	var gerr *graph.GraphError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, 1, gerr.Pos)
	assert.Equal(t, 0, gerr.Ref)
}

type moduleFunc func(in []*tensor.Tensor) (*tensor.Tensor, error)

func (f moduleFunc) Forward(in []*tensor.Tensor) (*tensor.Tensor, error) { return f(in) }
