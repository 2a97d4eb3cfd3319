package evo

import (
	"errors"
	"fmt"
	"math/rand"

	"cellmind/internal/nn"
)

// Ordering is one weighted sequence of operators attempted as a batch.
type Ordering struct {
	Weight    float64
	Operators []Operator
}

// BatchPolicy picks one ordering per batch, weighted, and attempts every
// operator in it once.
type BatchPolicy struct {
	Orderings []Ordering
}

// OrderingSpec names operators from the registry.
type OrderingSpec struct {
	Weight    float64  `json:"weight" yaml:"weight"`
	Operators []string `json:"operators" yaml:"operators"`
}

// DefaultOrderings favours weight tuning 7:1:2 over growth and pruning.
func DefaultOrderings() []OrderingSpec {
	return []OrderingSpec{
		{Weight: 7, Operators: []string{"reweight", "add_edge", "remove_edge"}},
		{Weight: 1, Operators: []string{"add_edge", "reweight", "remove_edge"}},
		{Weight: 2, Operators: []string{"remove_edge", "reweight", "add_edge"}},
	}
}

func DefaultBatchPolicy() BatchPolicy {
	policy, err := NewBatchPolicy(DefaultOrderings())
	if err != nil {
		panic(fmt.Sprintf("evo: default batch policy: %v", err))
	}
	return policy
}

// NewBatchPolicy resolves each named operator against the registry.
func NewBatchPolicy(specs []OrderingSpec) (BatchPolicy, error) {
	if len(specs) == 0 {
		return BatchPolicy{}, errors.New("at least one ordering is required")
	}
	policy := BatchPolicy{Orderings: make([]Ordering, 0, len(specs))}
	for i, spec := range specs {
		if spec.Weight <= 0 {
			return BatchPolicy{}, fmt.Errorf("ordering %d: weight must be > 0", i)
		}
		if len(spec.Operators) == 0 {
			return BatchPolicy{}, fmt.Errorf("ordering %d: no operators", i)
		}
		ordering := Ordering{Weight: spec.Weight}
		for _, name := range spec.Operators {
			op, err := ResolveOperator(name, nil)
			if err != nil {
				return BatchPolicy{}, fmt.Errorf("ordering %d: %w", i, err)
			}
			ordering.Operators = append(ordering.Operators, op)
		}
		policy.Orderings = append(policy.Orderings, ordering)
	}
	return policy, nil
}

func (p BatchPolicy) choose(rng *rand.Rand) (Ordering, error) {
	total := 0.0
	for _, o := range p.Orderings {
		if o.Weight > 0 {
			total += o.Weight
		}
	}
	if total <= 0 {
		return Ordering{}, errors.New("batch policy has no positive weights")
	}
	pick := rng.Float64() * total
	acc := 0.0
	for _, o := range p.Orderings {
		if o.Weight <= 0 {
			continue
		}
		acc += o.Weight
		if pick < acc {
			return o, nil
		}
	}
	return p.Orderings[len(p.Orderings)-1], nil
}

// CheckCompatible runs the registry compatibility check of every operator in
// the policy against network. Operators that were never registered pass.
func (p BatchPolicy) CheckCompatible(network *nn.Network) error {
	seen := make(map[string]bool)
	for _, o := range p.Orderings {
		for _, op := range o.Operators {
			name := op.Name()
			if seen[name] {
				continue
			}
			seen[name] = true
			if _, err := ResolveOperator(name, network); err != nil && !errors.Is(err, ErrOperatorNotFound) {
				return err
			}
		}
	}
	return nil
}

// ApplyBatch runs one batch against network and returns the edits that
// took effect. Operators that report themselves not applicable are skipped
// without drawing from rng; any other error aborts.
func (p BatchPolicy) ApplyBatch(rng *rand.Rand, network *nn.Network) ([]Mutation, error) {
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	ordering, err := p.choose(rng)
	if err != nil {
		return nil, err
	}
	applied := make([]Mutation, 0, len(ordering.Operators))
	for _, op := range ordering.Operators {
		if c, ok := op.(ContextualOperator); ok && !c.Applicable(network) {
			continue
		}
		m, err := Apply(rng, op, network)
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		if err != nil {
			return applied, fmt.Errorf("%s: %w", op.Name(), err)
		}
		applied = append(applied, m)
	}
	return applied, nil
}

// Mutate applies batches batches to network.
func (p BatchPolicy) Mutate(rng *rand.Rand, network *nn.Network, batches int) ([]Mutation, error) {
	var applied []Mutation
	for i := 0; i < batches; i++ {
		batch, err := p.ApplyBatch(rng, network)
		applied = append(applied, batch...)
		if err != nil {
			return applied, err
		}
	}
	return applied, nil
}

// BatchCount draws max(1, base + jitter) with jitter uniform in
// [-maxJitter, maxJitter].
func BatchCount(rng *rand.Rand, base, maxJitter int) int {
	n := base
	if maxJitter > 0 {
		n += rng.Intn(2*maxJitter+1) - maxJitter
	}
	if n < 1 {
		return 1
	}
	return n
}
