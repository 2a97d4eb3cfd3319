package player

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"cellmind/internal/game"
	"cellmind/internal/nn"
)

var ErrTooFewOutputs = errors.New("player network needs a score and a state output")

// Config is persisted alongside every saved network.
type Config struct {
	KernelDiameter int `json:"kernel_diameter" yaml:"kernel_diameter" ini:"kernel_diameter"`
	// UseKernelCache reuses outputs for identical kernels within one player.
	UseKernelCache bool `json:"use_kernel_cache" yaml:"use_kernel_cache" ini:"use_kernel_cache"`
	// ShuffleScan visits positions in random order, so ties no longer favour
	// the top-left of the board.
	ShuffleScan bool `json:"shuffle_scan" yaml:"shuffle_scan" ini:"shuffle_scan"`
}

func DefaultConfig() Config {
	return Config{KernelDiameter: 5, ShuffleScan: true}
}

func (c Config) Validate() error {
	return validateDiameter(c.KernelDiameter)
}

// Inputs is the input layer size a network needs to be driven by c.
func (c Config) Inputs() int { return c.KernelDiameter * c.KernelDiameter }

// Move is one applied cell change.
type Move struct {
	Pos game.Pos
	Old game.State
	New game.State
}

type output struct {
	score float64
	state float64
}

// Player scores every board position with a network and flips the best one.
// It holds exclusive use of its network and is not safe for concurrent use.
type Player struct {
	cfg     Config
	harness *nn.Harness[Kernel]
	rng     *rand.Rand
	cache   map[string]output
}

// New wraps network. rng is only consulted when cfg.ShuffleScan is set.
func New(cfg Config, network *nn.Network, rng *rand.Rand) (*Player, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if network == nil {
		return nil, errors.New("network is required")
	}
	if network.OutputSize() < 2 {
		return nil, fmt.Errorf("%w: has %d", ErrTooFewOutputs, network.OutputSize())
	}
	if cfg.ShuffleScan && rng == nil {
		return nil, errors.New("shuffled scan requires a random source")
	}
	harness, err := nn.NewHarness(network, KernelInputs(cfg.KernelDiameter))
	if err != nil {
		return nil, err
	}
	p := &Player{cfg: cfg, harness: harness, rng: rng}
	if cfg.UseKernelCache {
		p.cache = make(map[string]output)
	}
	return p, nil
}

func (p *Player) Config() Config { return p.cfg }

// PlayStep picks the highest scoring position and, if the state output
// crosses a threshold and differs from the cell, applies the change to g.
// It reports false when the network chose not to move.
func (p *Player) PlayStep(g *game.Game) (Move, bool) {
	pos, out, ok := p.best(g)
	if !ok {
		return Move{}, false
	}
	var want game.State
	switch {
	case out.state <= -0.5:
		want = game.Dead
	case out.state >= 0.5:
		want = game.Alive
	default:
		return Move{}, false
	}
	current, inBounds := g.Cell(pos)
	if !inBounds || current == want {
		return Move{}, false
	}
	g.SetCell(pos, want)
	return Move{Pos: pos, Old: current, New: want}, true
}

// best returns the first maximum score in scan order. NaN scores never win.
func (p *Player) best(g *game.Game) (game.Pos, output, bool) {
	var (
		bestPos game.Pos
		bestOut output
		found   bool
	)
	for _, pos := range p.scanOrder(g) {
		out := p.evaluate(g, pos)
		if math.IsNaN(out.score) {
			continue
		}
		if !found || out.score > bestOut.score {
			bestPos, bestOut, found = pos, out, true
		}
	}
	return bestPos, bestOut, found
}

func (p *Player) scanOrder(g *game.Game) []game.Pos {
	positions := g.Board.Positions()
	if p.cfg.ShuffleScan {
		p.rng.Shuffle(len(positions), func(i, j int) {
			positions[i], positions[j] = positions[j], positions[i]
		})
	}
	return positions
}

func (p *Player) evaluate(g *game.Game, pos game.Pos) output {
	kernel := ExtractKernel(g, pos, p.cfg.KernelDiameter)
	if p.cache != nil {
		if out, ok := p.cache[kernel.Key()]; ok {
			return out
		}
	}
	values := p.harness.Compute(kernel)
	out := output{score: values[0], state: values[1]}
	if p.cache != nil {
		p.cache[kernel.Key()] = out
	}
	return out
}
