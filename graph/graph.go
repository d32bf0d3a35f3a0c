package graph

// Graph is an ordered, immutable sequence of nodes. Once built it is
// read-only and safe to share across concurrent inference calls.
type Graph struct {
	nodes  []Node
	stride []int
}

// New validates the node list and builds a graph. Every back-reference must
// point strictly earlier, and the retained positions must be exactly those
// some later node references; violations return a *GraphError.
func New(nodes []Node, stride []int) (*Graph, error) {
	g := newUnchecked(nodes, stride)
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// NewUnvalidated builds a graph without the wiring check, for artifact
// loaders that have already validated the node list. Executing an invalid
// graph fails mid-run with a *GraphError instead.
func NewUnvalidated(nodes []Node, stride []int) *Graph {
	return newUnchecked(nodes, stride)
}

func newUnchecked(nodes []Node, stride []int) *Graph {
	owned := make([]Node, len(nodes))
	for i, n := range nodes {
		owned[i] = n.clone()
	}
	return &Graph{nodes: owned, stride: append([]int(nil), stride...)}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node at position i. The returned value is a copy; the
// graph itself stays immutable.
func (g *Graph) Node(i int) Node { return g.nodes[i].clone() }

// Stride returns a copy of the model's stride list.
func (g *Graph) Stride() []int { return append([]int(nil), g.stride...) }

// validate checks the wiring invariants.
func (g *Graph) validate() error {
	referenced := make(map[int]bool)
	for i, n := range g.nodes {
		for _, ref := range n.Source.refs {
			if ref == RefRunning {
				if len(n.Source.refs) < 2 {
					return &GraphError{Pos: i, Ref: ref, Msg: "running-value entry outside a gather list"}
				}
				continue
			}
			if ref < 0 || ref >= i {
				return &GraphError{Pos: i, Ref: ref, Msg: "back-reference does not point strictly earlier"}
			}
			referenced[ref] = true
		}
	}
	for i, n := range g.nodes {
		if n.Retain && !referenced[i] {
			return &GraphError{Pos: i, Ref: i, Msg: "retained but never referenced"}
		}
		if !n.Retain && referenced[i] {
			return &GraphError{Pos: i, Ref: i, Msg: "referenced but not retained"}
		}
	}
	return nil
}
