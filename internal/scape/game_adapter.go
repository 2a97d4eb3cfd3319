package scape

import (
	"errors"
	"fmt"
	"math/rand"

	"cellmind/internal/game"
	"cellmind/internal/nn"
	"cellmind/internal/player"
)

// EpisodeConfig sets up every episode of a GameAdapter.
type EpisodeConfig struct {
	Width      int `json:"width" yaml:"width" ini:"width"`
	Height     int `json:"height" yaml:"height" ini:"height"`
	AliveCells int `json:"alive_cells" yaml:"alive_cells" ini:"alive_cells"`
	// BlockSize spawns alive cells as BlockSize x BlockSize squares.
	BlockSize int `json:"block_size" yaml:"block_size" ini:"block_size"`
	// MaxSteps bounds one episode; it ends earlier when every cell is dead.
	MaxSteps int `json:"max_steps" yaml:"max_steps" ini:"max_steps"`
	// DisableNature stops the board from ticking, so only the player
	// changes it.
	DisableNature bool `json:"disable_nature" yaml:"disable_nature" ini:"disable_nature"`
	// Evil rewards killing cells instead of raising them.
	Evil   bool   `json:"evil" yaml:"evil" ini:"evil"`
	Rule   string `json:"rule" yaml:"rule" ini:"rule"`
	Reward string `json:"reward" yaml:"reward" ini:"reward"`
}

func DefaultEpisodeConfig() EpisodeConfig {
	return EpisodeConfig{
		Width:      12,
		Height:     12,
		AliveCells: 72,
		BlockSize:  1,
		MaxSteps:   20,
		Rule:       game.DefaultRule().String(),
		Reward:     BaselineReward{}.Name(),
	}
}

func (c EpisodeConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("board size must be > 0, got %dx%d", c.Width, c.Height)
	}
	if c.AliveCells < 0 {
		return fmt.Errorf("alive cells must be >= 0, got %d", c.AliveCells)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("block size must be > 0, got %d", c.BlockSize)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max steps must be > 0, got %d", c.MaxSteps)
	}
	if _, err := c.rule(); err != nil {
		return err
	}
	if _, err := RewardByName(c.Reward); err != nil {
		return err
	}
	return nil
}

func (c EpisodeConfig) rule() (game.Rule, error) {
	if c.Rule == "" {
		return game.DefaultRule(), nil
	}
	return game.ParseRule(c.Rule)
}

// GameAdapter plays networks on random boards.
type GameAdapter struct {
	cfg    EpisodeConfig
	player player.Config
	rule   game.Rule
	reward Reward
}

func NewGameAdapter(cfg EpisodeConfig, playerCfg player.Config) (*GameAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := playerCfg.Validate(); err != nil {
		return nil, err
	}
	rule, err := cfg.rule()
	if err != nil {
		return nil, err
	}
	reward, err := RewardByName(cfg.Reward)
	if err != nil {
		return nil, err
	}
	return &GameAdapter{cfg: cfg, player: playerCfg, rule: rule, reward: reward}, nil
}

func (a *GameAdapter) Name() string { return "game" }

func (a *GameAdapter) Config() EpisodeConfig { return a.cfg }

func (a *GameAdapter) PlayerConfig() player.Config { return a.player }

func (a *GameAdapter) Reward() Reward { return a.reward }

func (a *GameAdapter) NewEpisode(rng *rand.Rand) (Episode, error) {
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	board, err := game.NewRandomBoard(rng, a.cfg.Width, a.cfg.Height, a.cfg.AliveCells, a.cfg.BlockSize)
	if err != nil {
		return nil, err
	}
	return a.NewEpisodeFromBoard(board, rng.Int63()), nil
}

// NewEpisodeFromBoard builds an episode around a fixed board. seed drives
// the player's scan shuffle so every contender sees the same order.
func (a *GameAdapter) NewEpisodeFromBoard(board *game.Board, seed int64) *GameEpisode {
	ep := &GameEpisode{
		adapter: a,
		start:   game.New(board.Clone(), a.rule),
		seed:    seed,
	}
	initial := ep.start.Count(game.Alive)
	ep.baseline = Outcome{InitialAlive: initial, FinalAlive: initial}
	if a.reward.Baseline() && !a.cfg.DisableNature {
		ep.baseline = a.simulateNature(ep.start.Clone())
	}
	return ep
}

func (a *GameAdapter) simulateNature(g *game.Game) Outcome {
	out := Outcome{InitialAlive: g.Count(game.Alive)}
	for out.Steps < a.cfg.MaxSteps {
		g.Tick()
		out.Steps++
	}
	out.FinalAlive = g.Count(game.Alive)
	return out
}

// GameEpisode is one starting board plus its precomputed baseline.
type GameEpisode struct {
	adapter  *GameAdapter
	start    *game.Game
	seed     int64
	baseline Outcome
}

func (e *GameEpisode) Board() *game.Board { return e.start.Board.Clone() }

func (e *GameEpisode) Baseline() Outcome { return e.baseline }

func (e *GameEpisode) Run(network *nn.Network) (int, error) {
	played, err := e.Play(network, nil)
	if err != nil {
		return 0, err
	}
	a := e.adapter
	return a.reward.Score(a.cfg, e.baseline, played), nil
}

// Play runs the network on a private copy of the starting board. observe,
// if set, sees the game after every step.
func (e *GameEpisode) Play(network *nn.Network, observe func(step int, g *game.Game, move player.Move, moved bool)) (Outcome, error) {
	a := e.adapter
	g := e.start.Clone()
	p, err := player.New(a.player, network, rand.New(rand.NewSource(e.seed)))
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{InitialAlive: g.Count(game.Alive)}
	for {
		out.Steps++
		move, moved := p.PlayStep(g)
		if moved {
			out.Moves++
		} else {
			out.Skipped++
		}
		if !a.cfg.DisableNature {
			g.Tick()
		}
		if observe != nil {
			observe(out.Steps, g, move, moved)
		}
		alive := g.Count(game.Alive)
		if out.Steps >= a.cfg.MaxSteps || alive == 0 {
			out.FinalAlive = alive
			return out, nil
		}
	}
}
