package evo

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"testing"

	"cellmind/internal/nn"
)

func newNetwork(t *testing.T, shape nn.Shape, density float64, seed int64) *nn.Network {
	t.Helper()
	n, err := nn.NewRandom(rand.New(rand.NewSource(seed)), nn.DefaultConfig(), shape, density)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	return n
}

func TestRandomMutationSequencesKeepLayering(t *testing.T) {
	shape := nn.Shape{Inputs: 9, HiddenLayers: 2, HiddenHeight: 5, Outputs: 2}
	for seed := int64(1); seed <= 5; seed++ {
		rng := rand.New(rand.NewSource(seed))
		n := newNetwork(t, shape, 0.3, seed)
		policy := DefaultBatchPolicy()
		for step := 0; step < 300; step++ {
			if _, err := policy.ApplyBatch(rng, n); err != nil {
				t.Fatalf("seed %d step %d: apply batch: %v", seed, step, err)
			}
			if err := n.Validate(); err != nil {
				t.Fatalf("seed %d step %d: layering broken: %v", seed, step, err)
			}
		}
		n.SetInputs(make([]float64, shape.Inputs))
		if got := n.Forward(); len(got) != shape.Outputs {
			t.Fatalf("unexpected output count: %d", len(got))
		}
	}
}

func TestAddEdgeNeverDuplicates(t *testing.T) {
	shape := nn.Shape{Inputs: 2, Outputs: 2}
	n := newNetwork(t, shape, 0, 1)
	rng := rand.New(rand.NewSource(2))

	for i := 0; i < 200; i++ {
		_, err := Apply(rng, AddEdge{}, n)
		if err != nil && !errors.Is(err, ErrEdgeExists) {
			t.Fatalf("add edge: %v", err)
		}
	}
	if n.EdgeCount() != 4 {
		t.Fatalf("expected the network to saturate at 4 edges, got %d", n.EdgeCount())
	}
	if (AddEdge{}).Applicable(n) {
		t.Fatal("saturated network should not admit add edge")
	}
	if err := n.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestEdgeOperatorsOnEmptyNetworkAreNotApplicable(t *testing.T) {
	n := newNetwork(t, nn.Shape{Inputs: 3, HiddenLayers: 1, HiddenHeight: 3, Outputs: 2}, 0, 1)
	rng := rand.New(rand.NewSource(3))

	for _, op := range []Operator{Reweight{}, RemoveEdge{}} {
		for i := 0; i < 20; i++ {
			_, err := Apply(rng, op, n)
			if !errors.Is(err, ErrNotApplicable) {
				t.Fatalf("%s on empty node: expected ErrNotApplicable, got %v", op.Name(), err)
			}
			if !errors.Is(err, ErrNoEdges) {
				t.Fatalf("%s on empty node: expected ErrNoEdges, got %v", op.Name(), err)
			}
		}
		if op.(ContextualOperator).Applicable(n) {
			t.Fatalf("%s should not be applicable without edges", op.Name())
		}
	}
	if n.EdgeCount() != 0 {
		t.Fatalf("expected no edges, got %d", n.EdgeCount())
	}
}

func TestReweightStaysWithinRange(t *testing.T) {
	n, err := nn.New(nn.DefaultConfig(), nn.Shape{Inputs: 1, Outputs: 1})
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	out := n.LayerHandles(1)[0]
	if err := n.AddEdge(out, n.LayerHandles(0)[0], 0); err != nil {
		t.Fatalf("add edge: %v", err)
	}
	rng := rand.New(rand.NewSource(4))

	for i := 0; i < 100; i++ {
		before := n.Edges(out)[0].Weight
		m, err := Apply(rng, Reweight{}, n)
		if err != nil {
			t.Fatalf("reweight: %v", err)
		}
		if m.Kind != KindReweight || m.Node != out || m.Edge != 0 {
			t.Fatalf("unexpected mutation: %+v", m)
		}
		after := n.Edges(out)[0].Weight
		limit := math.Max(math.Abs(before)/2, MinReweightRange)
		if math.Abs(after-before) > limit+1e-12 {
			t.Fatalf("delta %f exceeds %f", after-before, limit)
		}
	}
}

func TestAddEdgeWeightRangeAndSourceLayer(t *testing.T) {
	n := newNetwork(t, nn.Shape{Inputs: 6, HiddenLayers: 2, HiddenHeight: 6, Outputs: 3}, 0, 1)
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 100; i++ {
		m, err := Apply(rng, AddEdge{}, n)
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		if err != nil {
			t.Fatalf("add edge: %v", err)
		}
		if math.Abs(m.Weight) > NewEdgeWeightRange {
			t.Fatalf("weight %f out of range", m.Weight)
		}
		nodeLayer, _ := n.LayerOf(m.Node)
		srcLayer, _ := n.LayerOf(m.Source)
		if srcLayer != nodeLayer-1 {
			t.Fatalf("source layer %d does not precede node layer %d", srcLayer, nodeLayer)
		}
	}
}

func TestRemoveEdgeShrinksNode(t *testing.T) {
	n := newNetwork(t, nn.Shape{Inputs: 4, Outputs: 2}, 1, 1)
	rng := rand.New(rand.NewSource(6))
	before := n.EdgeCount()
	for i := 0; i < before; i++ {
		if _, err := Apply(rng, RemoveEdge{}, n); err != nil && !errors.Is(err, ErrNotApplicable) {
			t.Fatalf("remove edge: %v", err)
		}
	}
	if n.EdgeCount() >= before {
		t.Fatalf("expected fewer edges: before=%d after=%d", before, n.EdgeCount())
	}
}

func TestMutationApplyUnknownKind(t *testing.T) {
	n := newNetwork(t, nn.Shape{Inputs: 1, Outputs: 1}, 0, 1)
	if err := (Mutation{}).Apply(n); err == nil {
		t.Fatal("expected error for zero mutation")
	}
}

func TestMutatedNetworkRoundTrip(t *testing.T) {
	n := newNetwork(t, nn.Shape{Inputs: 9, HiddenLayers: 2, HiddenHeight: 5, Outputs: 2}, 0.3, 7)
	applied, err := DefaultBatchPolicy().Mutate(rand.New(rand.NewSource(7)), n, 40)
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("expected some mutations to apply")
	}

	data, err := n.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := nn.Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	again, err := decoded.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal decoded: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Fatal("re-encoding a decoded mutated network changed its bytes")
	}
	if decoded.EdgeCount() != n.EdgeCount() {
		t.Fatalf("edge count: got=%d want=%d", decoded.EdgeCount(), n.EdgeCount())
	}
	for layer := 1; layer < n.LayerCount(); layer++ {
		for _, h := range n.LayerHandles(layer) {
			want, got := n.Edges(h), decoded.Edges(h)
			if len(got) != len(want) {
				t.Fatalf("node %s: got %d edges, want %d", h, len(got), len(want))
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("node %s edge %d: got=%+v want=%+v", h, i, got[i], want[i])
				}
			}
		}
	}

	inputs := []float64{1, 0, -1, 1, 1, 0, -1, 0, 1}
	n.SetInputs(inputs)
	decoded.SetInputs(inputs)
	a, b := n.Forward(), decoded.Forward()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("output %d differs after round trip: %f vs %f", i, a[i], b[i])
		}
	}
}
