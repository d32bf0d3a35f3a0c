// Package inference executes one forward pass over a layer graph, resolving
// data dependencies through an execution-scoped output cache and routing
// classification-head outputs to their result slots.
package inference

import (
	"github.com/harborwatch/maritime-scene-service/graph"
	"github.com/harborwatch/maritime-scene-service/tensor"
)

// Mode selects which task heads a run computes.
type Mode int

const (
	// ModeBoth runs every node: the detection tail and both horizon heads.
	ModeBoth Mode = iota
	// ModeDetection skips classification-head nodes.
	ModeDetection
	// ModeHorizon skips every node past the cutoff except the heads.
	ModeHorizon
)

// Result holds the raw tensors produced by one run. Only the slots the mode
// requested are populated; the rest stay nil.
type Result struct {
	Detection *tensor.Tensor
	Pitch     *tensor.Tensor
	Theta     *tensor.Tensor
}

// Runner executes forward passes over one immutable graph. The graph is
// shared read-only; each Run allocates its own cache, so a Runner is safe for
// concurrent use as long as the node modules themselves are.
type Runner struct {
	g      *graph.Graph
	cutoff int
}

// New builds a runner. cutoff is the head attach position reported by the
// assembler; pass len-1 for a plain detection graph with no heads.
func New(g *graph.Graph, cutoff int) *Runner {
	return &Runner{g: g, cutoff: cutoff}
}

// Run performs one forward pass. The cache lives and dies inside this call;
// nothing leaks into the next one.
func (r *Runner) Run(input *tensor.Tensor, mode Mode) (Result, error) {
	var res Result
	cache := make(map[int]*tensor.Tensor)
	running := input

	for i := 0; i < r.g.Len(); i++ {
		n := r.g.Node(i)
		if mode == ModeDetection && n.Kind == graph.KindClassify {
			continue
		}
		if mode == ModeHorizon && i > r.cutoff && n.Kind != graph.KindClassify {
			continue
		}

		in, err := r.resolve(i, n, running, cache)
		if err != nil {
			return Result{}, err
		}
		out, err := n.Module.Forward(in)
		if err != nil {
			return Result{}, err
		}

		// Classification heads are terminal branches: their output goes to a
		// result slot, never into the running value or the cache.
		if n.Kind == graph.KindClassify {
			if n.Task == graph.HeadTheta {
				res.Theta = out
			} else {
				res.Pitch = out
			}
			continue
		}

		running = out
		if n.Retain {
			cache[i] = out
		}
	}

	if mode != ModeHorizon {
		res.Detection = running
	}
	return res, nil
}

func (r *Runner) resolve(pos int, n graph.Node, running *tensor.Tensor, cache map[int]*tensor.Tensor) ([]*tensor.Tensor, error) {
	if n.Source.IsPrevious() {
		return []*tensor.Tensor{running}, nil
	}
	if ref, ok := n.Source.Single(); ok {
		t, ok := cache[ref]
		if !ok {
			return nil, &graph.GraphError{Pos: pos, Ref: ref, Msg: "dependency not in execution cache"}
		}
		return []*tensor.Tensor{t}, nil
	}
	refs := n.Source.Refs()
	in := make([]*tensor.Tensor, len(refs))
	for j, ref := range refs {
		if ref == graph.RefRunning {
			in[j] = running
			continue
		}
		t, ok := cache[ref]
		if !ok {
			return nil, &graph.GraphError{Pos: pos, Ref: ref, Msg: "dependency not in execution cache"}
		}
		in[j] = t
	}
	return in, nil
}
