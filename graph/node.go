// Package graph holds the layer-graph data model consumed by the model
// assembler and the graph executor: an ordered, immutable list of computation
// nodes with explicit data-dependency wiring.
package graph

import "github.com/harborwatch/maritime-scene-service/tensor"

// Kind identifies what a node computes. The set is closed: artifact loaders
// map whatever textual type tags their format carries onto these values once,
// at load time.
type Kind int

const (
	KindConv Kind = iota
	KindBottleneck
	KindSPPF // spatial pyramid pooling stage, the head attach landmark
	KindUpsample
	KindConcat
	KindDetect
	KindClassify
)

func (k Kind) String() string {
	switch k {
	case KindConv:
		return "conv"
	case KindBottleneck:
		return "bottleneck"
	case KindSPPF:
		return "sppf"
	case KindUpsample:
		return "upsample"
	case KindConcat:
		return "concat"
	case KindDetect:
		return "detect"
	case KindClassify:
		return "classify"
	}
	return "unknown"
}

// HeadTask is the sub-tag of a KindClassify node, deciding which result slot
// its output is routed to.
type HeadTask int

const (
	HeadPitch HeadTask = iota
	HeadTheta
)

func (h HeadTask) String() string {
	if h == HeadTheta {
		return "theta"
	}
	return "pitch"
}

// RefRunning marks a gather entry that reads the current running value
// instead of a cached position.
const RefRunning = -1

// Source describes where a node reads its input from: the previous node's
// output, a single earlier position, or an ordered gather over earlier
// positions (where a RefRunning entry means the running value).
type Source struct {
	previous bool
	refs     []int
}

// Previous sources from the running value of the preceding node.
func Previous() Source { return Source{previous: true} }

// FromPosition sources from the retained output of one earlier position.
func FromPosition(pos int) Source { return Source{refs: []int{pos}} }

// Gather sources an ordered list of inputs; entries are earlier positions or
// RefRunning.
func Gather(refs ...int) Source {
	return Source{refs: append([]int(nil), refs...)}
}

// IsPrevious reports whether the node consumes the running value directly.
func (s Source) IsPrevious() bool { return s.previous }

// Single returns the back-reference position when the source is exactly one
// earlier position.
func (s Source) Single() (int, bool) {
	if s.previous || len(s.refs) != 1 {
		return 0, false
	}
	return s.refs[0], true
}

// Refs returns a copy of the gather list.
func (s Source) Refs() []int { return append([]int(nil), s.refs...) }

func (s Source) clone() Source {
	return Source{previous: s.previous, refs: append([]int(nil), s.refs...)}
}

// Module is the opaque compute capability attached to a node. Implementations
// come from the artifact loader; the executor only ever calls Forward.
type Module interface {
	Forward(inputs []*tensor.Tensor) (*tensor.Tensor, error)
}

// ChannelReporter is implemented by modules whose input channel width is
// known, e.g. convolutions. The assembler uses it to size classification
// heads.
type ChannelReporter interface {
	InChannels() int
}

// SubModuler is implemented by composite modules that expose their leading
// sub-module, letting the assembler read channel widths through one level of
// nesting.
type SubModuler interface {
	SubModule() Module
}

// Node is one computation step in a layer graph.
type Node struct {
	// ID is a stable opaque identifier, unique within a graph.
	ID string
	// Source is the node's data-dependency wiring.
	Source Source
	// Kind tags the computation; KindClassify nodes additionally carry Task.
	Kind Kind
	// Task routes a KindClassify node's output to its result slot.
	Task HeadTask
	// Retain marks outputs a later node reads from the execution cache.
	Retain bool
	// Module is the node's compute capability.
	Module Module
}

func (n Node) clone() Node {
	n.Source = n.Source.clone()
	return n
}
