package evo

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"cellmind/internal/nn"
)

var (
	ErrNoEdges       = fmt.Errorf("%w: node has no edges", ErrNotApplicable)
	ErrEdgeExists    = fmt.Errorf("%w: edge already exists", ErrNotApplicable)
	ErrNoComputeNode = errors.New("network has no compute nodes")
)

const (
	// MinReweightRange keeps near-zero weights movable.
	MinReweightRange = 0.01
	// NewEdgeWeightRange bounds the weight of an added edge.
	NewEdgeWeightRange = 2.0
)

type MutationKind uint8

const (
	KindReweight MutationKind = iota + 1
	KindAddEdge
	KindRemoveEdge
)

func (k MutationKind) String() string {
	switch k {
	case KindReweight:
		return "reweight"
	case KindAddEdge:
		return "add_edge"
	case KindRemoveEdge:
		return "remove_edge"
	default:
		return fmt.Sprintf("mutation(%d)", uint8(k))
	}
}

// Mutation describes one proposed edit to a single compute node.
type Mutation struct {
	Kind MutationKind
	Node nn.Handle
	// Edge indexes the node's edge list for reweight and remove.
	Edge int
	// Source is the new edge's source for add.
	Source nn.Handle
	// Weight is the replacement weight for reweight, or the new edge weight.
	Weight float64
}

func (m Mutation) Apply(network *nn.Network) error {
	switch m.Kind {
	case KindReweight:
		return network.SetWeight(m.Node, m.Edge, m.Weight)
	case KindAddEdge:
		return network.AddEdge(m.Node, m.Source, m.Weight)
	case KindRemoveEdge:
		return network.RemoveEdge(m.Node, m.Edge)
	default:
		return fmt.Errorf("unknown mutation kind: %s", m.Kind)
	}
}

func (m Mutation) String() string {
	switch m.Kind {
	case KindAddEdge:
		return fmt.Sprintf("%s %s<-%s w=%.4f", m.Kind, m.Node, m.Source, m.Weight)
	case KindReweight:
		return fmt.Sprintf("%s %s[%d] w=%.4f", m.Kind, m.Node, m.Edge, m.Weight)
	default:
		return fmt.Sprintf("%s %s[%d]", m.Kind, m.Node, m.Edge)
	}
}

// pickComputeNode chooses a uniformly random compute layer and then a
// uniformly random node in it.
func pickComputeNode(rng *rand.Rand, network *nn.Network) (nn.Handle, int, error) {
	if rng == nil {
		return nn.Handle{}, 0, errors.New("random source is required")
	}
	layers := network.ComputeLayerCount()
	if layers < 1 {
		return nn.Handle{}, 0, ErrNoComputeNode
	}
	layer := 1 + rng.Intn(layers)
	handles := network.LayerHandles(layer)
	if len(handles) == 0 {
		return nn.Handle{}, 0, ErrNoComputeNode
	}
	return handles[rng.Intn(len(handles))], layer, nil
}

// Reweight nudges one edge weight by a uniform delta in [-m, m] with
// m = max(|w|/2, MinReweightRange).
type Reweight struct{}

func (Reweight) Name() string { return "reweight" }

func (Reweight) Applicable(network *nn.Network) bool {
	return network.EdgeCount() > 0
}

func (Reweight) Propose(rng *rand.Rand, network *nn.Network) (Mutation, error) {
	node, _, err := pickComputeNode(rng, network)
	if err != nil {
		return Mutation{}, err
	}
	edges := network.Edges(node)
	if len(edges) == 0 {
		return Mutation{}, ErrNoEdges
	}
	idx := rng.Intn(len(edges))
	w := edges[idx].Weight
	span := math.Max(math.Abs(w)/2, MinReweightRange)
	delta := (rng.Float64()*2 - 1) * span
	return Mutation{Kind: KindReweight, Node: node, Edge: idx, Weight: w + delta}, nil
}

// AddEdge connects a random source from the preceding layer with a weight
// uniform in [-NewEdgeWeightRange, NewEdgeWeightRange].
type AddEdge struct{}

func (AddEdge) Name() string { return "add_edge" }

func (AddEdge) Applicable(network *nn.Network) bool {
	for layer := 1; layer < network.LayerCount(); layer++ {
		full := len(network.LayerHandles(layer - 1))
		for _, h := range network.LayerHandles(layer) {
			if len(network.Edges(h)) < full {
				return true
			}
		}
	}
	return false
}

func (AddEdge) Propose(rng *rand.Rand, network *nn.Network) (Mutation, error) {
	node, layer, err := pickComputeNode(rng, network)
	if err != nil {
		return Mutation{}, err
	}
	sources := network.LayerHandles(layer - 1)
	src := sources[rng.Intn(len(sources))]
	if network.HasEdge(node, src) {
		return Mutation{}, ErrEdgeExists
	}
	weight := (rng.Float64()*2 - 1) * NewEdgeWeightRange
	return Mutation{Kind: KindAddEdge, Node: node, Source: src, Weight: weight}, nil
}

// RemoveEdge drops one random incoming edge.
type RemoveEdge struct{}

func (RemoveEdge) Name() string { return "remove_edge" }

func (RemoveEdge) Applicable(network *nn.Network) bool {
	return network.EdgeCount() > 0
}

func (RemoveEdge) Propose(rng *rand.Rand, network *nn.Network) (Mutation, error) {
	node, _, err := pickComputeNode(rng, network)
	if err != nil {
		return Mutation{}, err
	}
	edges := network.Edges(node)
	if len(edges) == 0 {
		return Mutation{}, ErrNoEdges
	}
	return Mutation{Kind: KindRemoveEdge, Node: node, Edge: rng.Intn(len(edges))}, nil
}
