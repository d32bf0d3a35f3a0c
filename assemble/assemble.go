// Package assemble turns a base detection graph into a horizon-only or a
// multi-task graph by attaching classification heads at a cutoff position.
// Assembly is a pure, one-shot transformation: the base graph is never
// mutated and repeated assemblies share no node state.
package assemble

import (
	"fmt"

	"github.com/harborwatch/maritime-scene-service/graph"
)

// AutoCutoff asks Assemble to resolve the cutoff by scanning for the
// landmark pooling stage.
const AutoCutoff = -1

// Mode selects what happens to the base graph's tail.
type Mode int

const (
	// Truncate drops every node after the cutoff; only the new heads run.
	// Used when the detection task is discarded entirely.
	Truncate Mode = iota
	// Branch keeps the full base graph and appends the heads as additional
	// branches reading from the cutoff.
	Branch
)

// HeadSpec describes one classification head to attach.
type HeadSpec struct {
	ID      string
	Task    graph.HeadTask
	Classes int
	// New builds the head's compute for the inferred input channel width.
	New func(inChannels, classes int) graph.Module
}

// FindCutoff scans base for the landmark pooling stage and returns the
// position just before it.
func FindCutoff(base *graph.Graph) (int, error) {
	for i := 0; i < base.Len(); i++ {
		if base.Node(i).Kind == graph.KindSPPF {
			return i - 1, nil
		}
	}
	return 0, &graph.ConfigurationError{Msg: "no pooling-stage landmark to resolve cutoff"}
}

// InferChannels reads the input channel width of the node immediately after
// the cutoff, looking first at the module itself and then through one level
// of sub-module nesting.
func InferChannels(base *graph.Graph, cutoff int) (int, error) {
	if cutoff+1 >= base.Len() {
		return 0, &graph.ConfigurationError{Msg: fmt.Sprintf("cutoff %d has no following node to infer channels from", cutoff)}
	}
	m := base.Node(cutoff + 1).Module
	if cr, ok := m.(graph.ChannelReporter); ok {
		return cr.InChannels(), nil
	}
	if sm, ok := m.(graph.SubModuler); ok {
		if cr, ok := sm.SubModule().(graph.ChannelReporter); ok {
			return cr.InChannels(), nil
		}
	}
	return 0, &graph.ConfigurationError{Msg: fmt.Sprintf("node after cutoff %d exposes no channel width", cutoff)}
}

// Assemble builds a new graph from base with one classification head per
// spec, each sourcing the cutoff position's output. Pass AutoCutoff to
// resolve the cutoff from the landmark node. The returned cutoff is the head
// attach position, which callers need for horizon-only execution.
func Assemble(base *graph.Graph, cutoff int, mode Mode, heads []HeadSpec) (*graph.Graph, int, error) {
	if cutoff == AutoCutoff {
		var err error
		cutoff, err = FindCutoff(base)
		if err != nil {
			return nil, 0, err
		}
	}
	if cutoff < 0 || cutoff >= base.Len() {
		return nil, 0, &graph.ConfigurationError{Msg: fmt.Sprintf("cutoff %d outside graph of %d nodes", cutoff, base.Len())}
	}
	if len(heads) == 0 {
		return nil, 0, &graph.ConfigurationError{Msg: "no head specs supplied"}
	}

	ch, err := InferChannels(base, cutoff)
	if err != nil {
		return nil, 0, err
	}

	keep := base.Len()
	if mode == Truncate {
		keep = cutoff + 1
	}
	nodes := make([]graph.Node, 0, keep+len(heads))
	for i := 0; i < keep; i++ {
		nodes = append(nodes, base.Node(i))
	}
	for _, h := range heads {
		if h.New == nil {
			return nil, 0, &graph.ConfigurationError{Msg: fmt.Sprintf("head %q has no module constructor", h.ID)}
		}
		nodes = append(nodes, graph.Node{
			ID:     h.ID,
			Source: graph.FromPosition(cutoff),
			Kind:   graph.KindClassify,
			Task:   h.Task,
			Module: h.New(ch, h.Classes),
		})
	}
	recomputeRetain(nodes)

	out, err := graph.New(nodes, base.Stride())
	if err != nil {
		return nil, 0, err
	}
	return out, cutoff, nil
}

// recomputeRetain re-derives the retain flags from the surviving references.
// Truncation may have dropped the only readers of a previously retained
// position, and the cutoff gains the heads as new readers.
func recomputeRetain(nodes []graph.Node) {
	referenced := make(map[int]bool)
	for _, n := range nodes {
		for _, ref := range n.Source.Refs() {
			if ref != graph.RefRunning {
				referenced[ref] = true
			}
		}
	}
	for i := range nodes {
		nodes[i].Retain = referenced[i]
	}
}
