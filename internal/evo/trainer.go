package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cellmind/internal/nn"
	"cellmind/internal/scape"
)

const tracerName = "cellmind/evo"

// ScoreScale keeps one decimal of the mean round score in the integer
// aggregate.
const ScoreScale = 10

var ErrEmptyPopulation = errors.New("generation has no contenders")

type TrainerConfig struct {
	// Contenders counts the unmutated base network.
	Contenders int `json:"contenders" yaml:"contenders" ini:"contenders"`
	// Mutations is the base number of mutation batches per contender.
	Mutations       int `json:"mutations" yaml:"mutations" ini:"mutations"`
	MutationsJitter int `json:"mutations_jitter" yaml:"mutations_jitter" ini:"mutations_jitter"`
	// Iterations is the number of scoring rounds, each on a fresh episode.
	Iterations int `json:"iterations" yaml:"iterations" ini:"iterations"`
	// Workers bounds parallel scoring; 0 uses one per CPU.
	Workers int `json:"workers" yaml:"workers" ini:"workers"`
}

func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{Contenders: 8, Mutations: 3, Iterations: 50}
}

func (c TrainerConfig) Validate() error {
	if c.Contenders <= 0 {
		return fmt.Errorf("contenders must be > 0, got %d", c.Contenders)
	}
	if c.Mutations <= 0 {
		return fmt.Errorf("mutations must be > 0, got %d", c.Mutations)
	}
	if c.MutationsJitter < 0 {
		return fmt.Errorf("mutations jitter must be >= 0, got %d", c.MutationsJitter)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be > 0, got %d", c.Iterations)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	return nil
}

// Contender is one candidate network of a generation with its round scores.
type Contender struct {
	Network   *nn.Network
	Mutations []Mutation
	Scores    []int
}

// Aggregate is sum(scores) * ScoreScale / len(scores), truncated.
func (c Contender) Aggregate() int {
	if len(c.Scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range c.Scores {
		sum += s
	}
	return sum * ScoreScale / len(c.Scores)
}

// GenerationResult is the outcome of TrainGeneration. The base network is
// always the last contender.
type GenerationResult struct {
	Winner      *nn.Network
	WinnerIndex int
	Score       int
	Contenders  []Contender
}

// Original reports whether the unmutated base won.
func (r GenerationResult) Original() bool {
	return r.WinnerIndex == len(r.Contenders)-1
}

type Trainer struct {
	cfg     TrainerConfig
	policy  BatchPolicy
	adapter scape.Adapter
	rng     *rand.Rand
	logger  *slog.Logger
	tracer  trace.Tracer
}

type TrainerOption func(*Trainer)

// WithTracerProvider records generation and round spans through tp instead
// of the global provider.
func WithTracerProvider(tp trace.TracerProvider) TrainerOption {
	return func(t *Trainer) {
		if tp != nil {
			t.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewTrainer uses rng for mutations and episode seeds, so a fixed seed gives
// a reproducible run.
func NewTrainer(cfg TrainerConfig, policy BatchPolicy, adapter scape.Adapter, rng *rand.Rand, opts ...TrainerOption) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if adapter == nil {
		return nil, errors.New("adapter is required")
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	if len(policy.Orderings) == 0 {
		policy = DefaultBatchPolicy()
	}
	t := &Trainer{
		cfg:     cfg,
		policy:  policy,
		adapter: adapter,
		rng:     rng,
		logger:  slog.Default().With(slog.String("component", "evo.trainer")),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Trainer) Config() TrainerConfig { return t.cfg }

// TrainGeneration mutates Contenders-1 clones of base, scores every
// contender over Iterations shared episodes and returns the best one. Ties
// go to the later contender, so an equally good base survives.
func (t *Trainer) TrainGeneration(ctx context.Context, base *nn.Network) (GenerationResult, error) {
	if base == nil {
		return GenerationResult{}, errors.New("base network is required")
	}
	ctx, span := t.tracer.Start(ctx, "evo.TrainGeneration",
		trace.WithAttributes(
			attribute.Int("contenders", t.cfg.Contenders),
			attribute.Int("iterations", t.cfg.Iterations),
		),
	)
	defer span.End()

	if err := t.policy.CheckCompatible(base); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "incompatible policy")
		return GenerationResult{}, err
	}

	contenders, err := t.spawn(base)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mutation failed")
		return GenerationResult{}, err
	}

	for round := 0; round < t.cfg.Iterations; round++ {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			return GenerationResult{}, err
		}
		episode, err := t.adapter.NewEpisode(rand.New(rand.NewSource(t.rng.Int63())))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "episode failed")
			return GenerationResult{}, fmt.Errorf("round %d: %w", round, err)
		}
		if err := t.scoreRound(ctx, episode, contenders); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "scoring failed")
			return GenerationResult{}, fmt.Errorf("round %d: %w", round, err)
		}
	}

	result, err := selectWinner(contenders)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "selection failed")
		return GenerationResult{}, err
	}
	span.SetAttributes(
		attribute.Int("winner_index", result.WinnerIndex),
		attribute.Int("winner_score", result.Score),
		attribute.Bool("original", result.Original()),
	)
	t.logger.Debug("generation trained",
		slog.Int("winner", result.WinnerIndex),
		slog.Int("score", result.Score),
		slog.Bool("original", result.Original()),
		slog.Int("edges", result.Winner.EdgeCount()),
	)
	return result, nil
}

func (t *Trainer) spawn(base *nn.Network) ([]Contender, error) {
	contenders := make([]Contender, 0, t.cfg.Contenders)
	for i := 0; i < t.cfg.Contenders-1; i++ {
		clone := base.Clone()
		batches := BatchCount(t.rng, t.cfg.Mutations, t.cfg.MutationsJitter)
		applied, err := t.policy.Mutate(t.rng, clone, batches)
		if err != nil {
			return nil, fmt.Errorf("mutate contender %d: %w", i, err)
		}
		contenders = append(contenders, Contender{Network: clone, Mutations: applied})
	}
	contenders = append(contenders, Contender{Network: base})
	for i := range contenders {
		contenders[i].Scores = make([]int, 0, t.cfg.Iterations)
	}
	return contenders, nil
}

// scoreRound runs every contender on episode in parallel and appends each
// score once all workers are done. Each job carries its own clone, since the
// harness writes into the network's input slots.
func (t *Trainer) scoreRound(ctx context.Context, episode scape.Episode, contenders []Contender) error {
	_, span := t.tracer.Start(ctx, "evo.scoreRound",
		trace.WithAttributes(attribute.Int("contenders", len(contenders))),
	)
	defer span.End()

	type job struct {
		idx     int
		network *nn.Network
	}
	type result struct {
		idx   int
		score int
		err   error
	}

	jobs := make(chan job)
	results := make(chan result, len(contenders))

	workerCount := t.cfg.Workers
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if workerCount > len(contenders) {
		workerCount = len(contenders)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				score, err := episode.Run(j.network)
				results <- result{idx: j.idx, score: score, err: err}
			}
		}()
	}

	for i := range contenders {
		jobs <- job{idx: i, network: contenders[i].Network.Clone()}
	}
	close(jobs)

	wg.Wait()
	close(results)

	scores := make([]int, len(contenders))
	for res := range results {
		if res.err != nil {
			span.RecordError(res.err)
			span.SetStatus(codes.Error, "contender failed")
			return fmt.Errorf("contender %d: %w", res.idx, res.err)
		}
		scores[res.idx] = res.score
	}
	for i, s := range scores {
		contenders[i].Scores = append(contenders[i].Scores, s)
	}
	return nil
}

func selectWinner(contenders []Contender) (GenerationResult, error) {
	if len(contenders) == 0 {
		return GenerationResult{}, ErrEmptyPopulation
	}
	best := 0
	bestScore := contenders[0].Aggregate()
	for i := 1; i < len(contenders); i++ {
		if score := contenders[i].Aggregate(); score >= bestScore {
			best, bestScore = i, score
		}
	}
	return GenerationResult{
		Winner:      contenders[best].Network,
		WinnerIndex: best,
		Score:       bestScore,
		Contenders:  contenders,
	}, nil
}
