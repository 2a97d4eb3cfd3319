package nn

import (
	"errors"
	"fmt"
)

var ErrUnknownCombinator = errors.New("unknown combinator")

// Combinator folds the per-edge contributions of a node into its value.
type Combinator string

const (
	CombineAdd Combinator = "add"
	CombineMul Combinator = "mul"
)

// Identity is the value of a node without edges.
func (c Combinator) Identity() float64 {
	if c == CombineMul {
		return 1
	}
	return 0
}

func (c Combinator) Combine(a, b float64) float64 {
	if c == CombineMul {
		return a * b
	}
	return a + b
}

func (c Combinator) Validate() error {
	switch c {
	case CombineAdd, CombineMul:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCombinator, string(c))
	}
}

// Config selects the two per-network functions.
type Config struct {
	Activation string     `json:"activation" yaml:"activation" ini:"activation" msgpack:"activation"`
	Combinator Combinator `json:"combinator" yaml:"combinator" ini:"combinator" msgpack:"combinator"`
}

func DefaultConfig() Config {
	return Config{Activation: ActivationTanh, Combinator: CombineAdd}
}

func (c Config) resolve() (ActivationFunc, error) {
	if err := c.Combinator.Validate(); err != nil {
		return nil, err
	}
	return GetActivation(c.Activation)
}

// Shape is the layer layout used when building a fresh network.
type Shape struct {
	Inputs       int `json:"inputs" yaml:"inputs" ini:"inputs"`
	HiddenLayers int `json:"hidden_layers" yaml:"hidden_layers" ini:"hidden_layers"`
	HiddenHeight int `json:"hidden_height" yaml:"hidden_height" ini:"hidden_height"`
	Outputs      int `json:"outputs" yaml:"outputs" ini:"outputs"`
}

func (s Shape) Validate() error {
	if s.Inputs <= 0 {
		return errors.New("input layer size must be > 0")
	}
	if s.HiddenLayers < 0 {
		return errors.New("hidden layer count must be >= 0")
	}
	if s.HiddenLayers > 0 && s.HiddenHeight <= 0 {
		return errors.New("hidden layer height must be > 0")
	}
	if s.Outputs <= 0 {
		return errors.New("output layer size must be > 0")
	}
	return nil
}

func (s Shape) heights() []int {
	out := make([]int, 0, s.HiddenLayers+2)
	out = append(out, s.Inputs)
	for i := 0; i < s.HiddenLayers; i++ {
		out = append(out, s.HiddenHeight)
	}
	return append(out, s.Outputs)
}

// Validate checks that the combinator is known and the activation is
// registered.
func (c Config) Validate() error {
	_, err := c.resolve()
	return err
}
