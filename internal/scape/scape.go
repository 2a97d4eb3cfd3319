package scape

import (
	"math/rand"

	"cellmind/internal/nn"
)

// Adapter produces fresh episodes. Every contender of a scoring round is
// run against the same episode.
type Adapter interface {
	Name() string
	NewEpisode(rng *rand.Rand) (Episode, error)
}

// Episode is immutable once built and safe to Run from several goroutines,
// each with its own network.
type Episode interface {
	Run(network *nn.Network) (int, error)
}
