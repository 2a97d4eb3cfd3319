package nn

import (
	"errors"
	"fmt"
)

var ErrInputArity = errors.New("input function count does not match input layer")

// InputFunc extracts one input value from an external state.
type InputFunc[S any] func(state S) float64

// Harness feeds a network from an arbitrary state type. Input functions are
// matched to input handles in registration order. Compute writes the
// network's input layer, so a harness needs exclusive use of its network.
type Harness[S any] struct {
	network *Network
	inputs  []InputFunc[S]
	values  []float64
}

func NewHarness[S any](network *Network, inputs []InputFunc[S]) (*Harness[S], error) {
	if network == nil {
		return nil, errors.New("network is required")
	}
	if len(inputs) != network.InputSize() {
		return nil, fmt.Errorf("%w: %d functions for %d inputs", ErrInputArity, len(inputs), network.InputSize())
	}
	return &Harness[S]{
		network: network,
		inputs:  append([]InputFunc[S](nil), inputs...),
		values:  make([]float64, len(inputs)),
	}, nil
}

func (h *Harness[S]) Network() *Network { return h.network }

// Compute refreshes the inputs from state and returns the output layer
// values in stable handle order.
func (h *Harness[S]) Compute(state S) []float64 {
	for i, fn := range h.inputs {
		h.values[i] = fn(state)
	}
	h.network.SetInputs(h.values)
	return h.network.Forward()
}
