package evo

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"cellmind/internal/nn"
)

var (
	ErrOperatorExists       = errors.New("operator already registered")
	ErrOperatorNotFound     = errors.New("operator not found")
	ErrOperatorIncompatible = errors.New("operator incompatible with network")
)

type CompatibilityFn func(network *nn.Network) error

type OperatorSpec struct {
	Name       string
	Operator   Operator
	Compatible CompatibilityFn
}

type registeredOperator struct {
	operator   Operator
	compatible CompatibilityFn
}

var operatorRegistry = struct {
	mu sync.RWMutex
	m  map[string]registeredOperator
}{
	m: make(map[string]registeredOperator),
}

func init() {
	registerBuiltInOperators()
}

func registerBuiltInOperators() {
	for _, op := range []Operator{Reweight{}, AddEdge{}, RemoveEdge{}} {
		if err := RegisterOperator(op.Name(), op); err != nil {
			panic(err)
		}
	}
}

func RegisterOperator(name string, op Operator) error {
	return RegisterOperatorWithSpec(OperatorSpec{Name: name, Operator: op})
}

// RegisterOperatorWithSpec registers an operator with an optional
// compatibility check run on every resolve.
func RegisterOperatorWithSpec(spec OperatorSpec) error {
	if spec.Name == "" {
		return errors.New("operator name is required")
	}
	if spec.Operator == nil {
		return errors.New("operator is required")
	}

	operatorRegistry.mu.Lock()
	defer operatorRegistry.mu.Unlock()

	if _, exists := operatorRegistry.m[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrOperatorExists, spec.Name)
	}
	operatorRegistry.m[spec.Name] = registeredOperator{operator: spec.Operator, compatible: spec.Compatible}
	return nil
}

// ResolveOperator looks up name and, when network is non-nil, runs its
// compatibility check.
func ResolveOperator(name string, network *nn.Network) (Operator, error) {
	operatorRegistry.mu.RLock()
	entry, ok := operatorRegistry.m[name]
	operatorRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, name)
	}
	if network != nil && entry.compatible != nil {
		if err := entry.compatible(network); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrOperatorIncompatible, name, err)
		}
	}
	return entry.operator, nil
}

func ListOperators() []string {
	operatorRegistry.mu.RLock()
	defer operatorRegistry.mu.RUnlock()

	names := make([]string, 0, len(operatorRegistry.m))
	for name := range operatorRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetOperatorRegistryForTests() {
	operatorRegistry.mu.Lock()
	operatorRegistry.m = make(map[string]registeredOperator)
	operatorRegistry.mu.Unlock()
	registerBuiltInOperators()
}
