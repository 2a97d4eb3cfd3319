package nn

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	ErrNodeNotFound   = errors.New("node not found")
	ErrNotComputeNode = errors.New("node is not in a compute layer")
	ErrInvalidSource  = errors.New("edge source is not in the preceding layer")
	ErrDuplicateEdge  = errors.New("edge from source already exists")
	ErrEdgeIndex      = errors.New("edge index out of range")
)

// Edge is one weighted incoming connection of a compute node.
type Edge struct {
	Source Handle
	Weight float64
}

// Network is a strictly layered feed-forward graph. Layer 0 is the input
// layer; every following layer is a compute layer and the last one is the
// output layer. Layer sizes are fixed; only edges change.
//
// A Network is not safe for concurrent use: SetInputs and Forward share
// per-network buffers. Clone it per goroutine.
type Network struct {
	cfg      Config
	activate ActivationFunc
	nodes    arena
	layers   [][]Handle
	inputs   []float64
	values   []float64
}

// New builds an edge-less network.
func New(cfg Config, shape Shape) (*Network, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	activate, err := cfg.resolve()
	if err != nil {
		return nil, err
	}

	n := &Network{cfg: cfg, activate: activate}
	for layer, height := range shape.heights() {
		handles := make([]Handle, height)
		for i := range handles {
			handles[i] = n.nodes.insert(node{layer: layer})
		}
		n.layers = append(n.layers, handles)
	}
	n.resetBuffers()
	return n, nil
}

// NewRandom builds a network and wires each possible edge with probability
// density, drawing weights uniformly from [-2, 2].
func NewRandom(rng *rand.Rand, cfg Config, shape Shape, density float64) (*Network, error) {
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	n, err := New(cfg, shape)
	if err != nil {
		return nil, err
	}
	for layer := 1; layer < len(n.layers); layer++ {
		for _, h := range n.layers[layer] {
			target := n.nodes.get(h)
			for _, src := range n.layers[layer-1] {
				if rng.Float64() >= density {
					continue
				}
				target.edges = append(target.edges, Edge{Source: src, Weight: rng.Float64()*4 - 2})
			}
		}
	}
	return n, nil
}

func (n *Network) resetBuffers() {
	n.inputs = make([]float64, len(n.layers[0]))
	n.values = make([]float64, len(n.nodes.slots))
}

func (n *Network) Config() Config { return n.cfg }

// LayerCount includes the input layer.
func (n *Network) LayerCount() int { return len(n.layers) }

func (n *Network) ComputeLayerCount() int { return len(n.layers) - 1 }

func (n *Network) InputSize() int { return len(n.layers[0]) }

func (n *Network) OutputSize() int { return len(n.layers[len(n.layers)-1]) }

// LayerHandles returns the handles of layer i in their stable order. The
// slice is owned by the network and must not be modified.
func (n *Network) LayerHandles(i int) []Handle {
	if i < 0 || i >= len(n.layers) {
		return nil
	}
	return n.layers[i]
}

// LayerOf reports which layer h lives in.
func (n *Network) LayerOf(h Handle) (int, bool) {
	nd := n.nodes.get(h)
	if nd == nil {
		return 0, false
	}
	return nd.layer, true
}

// Edges returns the incoming edges of h. The slice is owned by the network.
func (n *Network) Edges(h Handle) []Edge {
	nd := n.nodes.get(h)
	if nd == nil {
		return nil
	}
	return nd.edges
}

func (n *Network) EdgeCount() int {
	total := 0
	for _, s := range n.nodes.slots {
		if s.live {
			total += len(s.node.edges)
		}
	}
	return total
}

func (n *Network) HasEdge(h, src Handle) bool {
	for _, e := range n.Edges(h) {
		if e.Source == src {
			return true
		}
	}
	return false
}

func (n *Network) computeNode(h Handle) (*node, error) {
	nd := n.nodes.get(h)
	if nd == nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, h)
	}
	if nd.layer == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotComputeNode, h)
	}
	return nd, nil
}

// AddEdge connects src to h. src must live in the layer directly before h
// and must not already feed h.
func (n *Network) AddEdge(h, src Handle, weight float64) error {
	nd, err := n.computeNode(h)
	if err != nil {
		return err
	}
	srcNode := n.nodes.get(src)
	if srcNode == nil || srcNode.layer != nd.layer-1 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidSource, src, h)
	}
	for _, e := range nd.edges {
		if e.Source == src {
			return fmt.Errorf("%w: %s -> %s", ErrDuplicateEdge, src, h)
		}
	}
	nd.edges = append(nd.edges, Edge{Source: src, Weight: weight})
	return nil
}

func (n *Network) RemoveEdge(h Handle, idx int) error {
	nd, err := n.computeNode(h)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(nd.edges) {
		return fmt.Errorf("%w: %d of %d on %s", ErrEdgeIndex, idx, len(nd.edges), h)
	}
	nd.edges = append(nd.edges[:idx], nd.edges[idx+1:]...)
	return nil
}

func (n *Network) SetWeight(h Handle, idx int, weight float64) error {
	nd, err := n.computeNode(h)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(nd.edges) {
		return fmt.Errorf("%w: %d of %d on %s", ErrEdgeIndex, idx, len(nd.edges), h)
	}
	nd.edges[idx].Weight = weight
	return nil
}

// SetInputs stores one value per input node, in LayerHandles(0) order.
// A length mismatch means the caller was wired to a different network and
// panics.
func (n *Network) SetInputs(values []float64) {
	if len(values) != len(n.inputs) {
		panic(fmt.Sprintf("nn: got %d input values for input layer of %d", len(values), len(n.inputs)))
	}
	copy(n.inputs, values)
}

// Forward runs every compute layer and returns the output layer values in
// LayerHandles order.
func (n *Network) Forward() []float64 {
	for i, h := range n.layers[0] {
		n.values[h.Slot] = n.inputs[i]
	}
	for layer := 1; layer < len(n.layers); layer++ {
		n.computeLayer(layer)
	}
	out := n.layers[len(n.layers)-1]
	result := make([]float64, len(out))
	for i, h := range out {
		result[i] = n.values[h.Slot]
	}
	return result
}

// computeLayer folds each node's edge contributions from the previous
// layer's values. A source outside the previous layer is a dangling edge and
// panics.
func (n *Network) computeLayer(layer int) {
	combine := n.cfg.Combinator
	for _, h := range n.layers[layer] {
		nd := n.nodes.get(h)
		acc := combine.Identity()
		for _, e := range nd.edges {
			src := n.nodes.get(e.Source)
			if src == nil || src.layer != layer-1 {
				panic(fmt.Sprintf("nn: dangling edge %s -> %s in layer %d", e.Source, h, layer))
			}
			acc = combine.Combine(acc, n.activate(e.Weight*n.values[e.Source.Slot]))
		}
		n.values[h.Slot] = acc
	}
}

// Validate checks the layering invariants: every handle is live and listed
// once, and every edge source lives in the preceding layer with no duplicate
// sources per node.
func (n *Network) Validate() error {
	if len(n.layers) < 2 {
		return fmt.Errorf("network needs an input and an output layer, has %d layers", len(n.layers))
	}
	seen := make(map[Handle]struct{})
	for layer, handles := range n.layers {
		if len(handles) == 0 {
			return fmt.Errorf("layer %d is empty", layer)
		}
		for _, h := range handles {
			nd := n.nodes.get(h)
			if nd == nil || nd.layer != layer {
				return fmt.Errorf("%w: %s in layer %d", ErrNodeNotFound, h, layer)
			}
			if _, dup := seen[h]; dup {
				return fmt.Errorf("handle %s listed twice", h)
			}
			seen[h] = struct{}{}
			if layer == 0 && len(nd.edges) > 0 {
				return fmt.Errorf("input node %s has edges", h)
			}
			sources := make(map[Handle]struct{}, len(nd.edges))
			for _, e := range nd.edges {
				src := n.nodes.get(e.Source)
				if src == nil || src.layer != layer-1 {
					return fmt.Errorf("%w: %s -> %s", ErrInvalidSource, e.Source, h)
				}
				if _, dup := sources[e.Source]; dup {
					return fmt.Errorf("%w: %s -> %s", ErrDuplicateEdge, e.Source, h)
				}
				sources[e.Source] = struct{}{}
			}
		}
	}
	return nil
}

// Clone returns a deep copy with its own buffers.
func (n *Network) Clone() *Network {
	layers := make([][]Handle, len(n.layers))
	for i, handles := range n.layers {
		layers[i] = append([]Handle(nil), handles...)
	}
	clone := &Network{
		cfg:      n.cfg,
		activate: n.activate,
		nodes:    n.nodes.clone(),
		layers:   layers,
	}
	clone.resetBuffers()
	copy(clone.inputs, n.inputs)
	return clone
}
