package scape

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownReward = errors.New("unknown reward")

// Outcome summarises one played or simulated episode.
type Outcome struct {
	InitialAlive int
	FinalAlive   int
	Steps        int
	Skipped      int
	Moves        int
}

// Reward turns outcomes into an integer fitness. When Baseline reports
// true the episode also simulates the board without a player and passes
// that outcome in as baseline.
type Reward interface {
	Name() string
	Baseline() bool
	Score(cfg EpisodeConfig, baseline, played Outcome) int
}

// delta is the alive-cell change in the rewarded direction.
func delta(cfg EpisodeConfig, o Outcome) int {
	if cfg.Evil {
		return o.InitialAlive - o.FinalAlive
	}
	return o.FinalAlive - o.InitialAlive
}

// BaselineReward scores the player against the board's own evolution and
// charges for finishing early and for idle turns.
type BaselineReward struct{}

func (BaselineReward) Name() string   { return "baseline" }
func (BaselineReward) Baseline() bool { return true }

func (BaselineReward) Score(cfg EpisodeConfig, baseline, played Outcome) int {
	reward := delta(cfg, played) - delta(cfg, baseline)
	penalty := (cfg.MaxSteps-played.Steps)/2 + played.Skipped/5
	return reward - penalty
}

// CountReward is the bare alive-cell change.
type CountReward struct{}

func (CountReward) Name() string   { return "count" }
func (CountReward) Baseline() bool { return false }

func (CountReward) Score(cfg EpisodeConfig, _, played Outcome) int {
	return delta(cfg, played)
}

var rewards = map[string]Reward{
	BaselineReward{}.Name(): BaselineReward{},
	CountReward{}.Name():    CountReward{},
}

// RewardByName resolves a reward; the empty name selects the baseline.
func RewardByName(name string) (Reward, error) {
	if name == "" {
		return BaselineReward{}, nil
	}
	r, ok := rewards[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReward, name)
	}
	return r, nil
}

func RewardNames() []string {
	names := make([]string, 0, len(rewards))
	for name := range rewards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
