package nn

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

const CodecVersion = 1

type wireEdge struct {
	_msgpack struct{} `msgpack:",as_array"`
	Source   uint64
	Weight   float64
}

type wireNetwork struct {
	Version int                   `msgpack:"version"`
	Config  Config                `msgpack:"config"`
	Layers  [][]uint64            `msgpack:"layers"`
	Nodes   map[uint64][]wireEdge `msgpack:"nodes"`
}

// MarshalBinary encodes the network as MessagePack. Compute nodes are stored
// in a map keyed by handle so that handles survive a round trip unchanged.
// Input values are not encoded.
func (n *Network) MarshalBinary() ([]byte, error) {
	wire := wireNetwork{
		Version: CodecVersion,
		Config:  n.cfg,
		Layers:  make([][]uint64, len(n.layers)),
		Nodes:   make(map[uint64][]wireEdge),
	}
	for layer, handles := range n.layers {
		keys := make([]uint64, len(handles))
		for i, h := range handles {
			keys[i] = h.Key()
			if layer == 0 {
				continue
			}
			edges := n.nodes.get(h).edges
			wireEdges := make([]wireEdge, len(edges))
			for j, e := range edges {
				wireEdges[j] = wireEdge{Source: e.Source.Key(), Weight: e.Weight}
			}
			wire.Nodes[h.Key()] = wireEdges
		}
		wire.Layers[layer] = keys
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&wire); err != nil {
		return nil, fmt.Errorf("encode network: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a MarshalBinary payload and validates it.
func (n *Network) UnmarshalBinary(data []byte) error {
	var wire wireNetwork
	if err := msgpack.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode network: %w", err)
	}
	if wire.Version != CodecVersion {
		return fmt.Errorf("decode network: unsupported codec version %d", wire.Version)
	}
	activate, err := wire.Config.resolve()
	if err != nil {
		return fmt.Errorf("decode network: %w", err)
	}

	decoded := Network{cfg: wire.Config, activate: activate}
	for layer, keys := range wire.Layers {
		handles := make([]Handle, len(keys))
		for i, key := range keys {
			h := HandleFromKey(key)
			nd := node{layer: layer}
			if layer > 0 {
				wireEdges, ok := wire.Nodes[key]
				if !ok {
					return fmt.Errorf("decode network: compute node %s missing from node map", h)
				}
				nd.edges = make([]Edge, len(wireEdges))
				for j, e := range wireEdges {
					nd.edges[j] = Edge{Source: HandleFromKey(e.Source), Weight: e.Weight}
				}
			}
			if err := decoded.nodes.restore(h, nd); err != nil {
				return fmt.Errorf("decode network: %w", err)
			}
			handles[i] = h
		}
		decoded.layers = append(decoded.layers, handles)
	}
	if err := decoded.Validate(); err != nil {
		return fmt.Errorf("decode network: %w", err)
	}
	decoded.resetBuffers()
	*n = decoded
	return nil
}

// Unmarshal decodes a network from MarshalBinary output.
func Unmarshal(data []byte) (*Network, error) {
	n := &Network{}
	if err := n.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return n, nil
}

// DumpEdge and DumpNode describe a network in a readable, handle-addressed
// form for inspection tools.
type DumpEdge struct {
	Source string  `json:"source"`
	Weight float64 `json:"weight"`
}

type DumpNode struct {
	Handle string     `json:"handle"`
	Edges  []DumpEdge `json:"edges,omitempty"`
}

type DumpLayer struct {
	Index int        `json:"index"`
	Kind  string     `json:"kind"`
	Nodes []DumpNode `json:"nodes"`
}

type Dump struct {
	Config Config      `json:"config"`
	Edges  int         `json:"edge_count"`
	Layers []DumpLayer `json:"layers"`
}

func (n *Network) Dump() Dump {
	out := Dump{Config: n.cfg, Edges: n.EdgeCount()}
	for i, handles := range n.layers {
		kind := "hidden"
		switch i {
		case 0:
			kind = "input"
		case len(n.layers) - 1:
			kind = "output"
		}
		layer := DumpLayer{Index: i, Kind: kind, Nodes: make([]DumpNode, 0, len(handles))}
		for _, h := range handles {
			edges := n.Edges(h)
			dn := DumpNode{Handle: h.String()}
			for _, e := range edges {
				dn.Edges = append(dn.Edges, DumpEdge{Source: e.Source.String(), Weight: e.Weight})
			}
			sort.SliceStable(dn.Edges, func(a, b int) bool { return dn.Edges[a].Source < dn.Edges[b].Source })
			layer.Nodes = append(layer.Nodes, dn)
		}
		out.Layers = append(out.Layers, layer)
	}
	return out
}
