package evo

import (
	"errors"
	"math/rand"

	"cellmind/internal/nn"
)

// ErrNotApplicable marks a mutation that cannot apply to the chosen node.
// Batch policies skip such attempts silently.
var ErrNotApplicable = errors.New("mutation not applicable")

// Operator proposes one elementary edit against a network without changing
// it. The returned Mutation is applied separately.
type Operator interface {
	Name() string
	Propose(rng *rand.Rand, network *nn.Network) (Mutation, error)
}

// ContextualOperator can report up front whether any node of a network
// admits the operator.
type ContextualOperator interface {
	Operator
	Applicable(network *nn.Network) bool
}

// Apply proposes and applies one edit from op.
func Apply(rng *rand.Rand, op Operator, network *nn.Network) (Mutation, error) {
	m, err := op.Propose(rng, network)
	if err != nil {
		return Mutation{}, err
	}
	if err := m.Apply(network); err != nil {
		return Mutation{}, err
	}
	return m, nil
}
