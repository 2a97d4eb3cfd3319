package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"cellmind/internal/evo"
	"cellmind/internal/model"
	"cellmind/internal/nn"
	"cellmind/internal/player"
	"cellmind/internal/stats"
	"cellmind/internal/storage"
)

type StopReason string

const (
	StopReasonLimit    StopReason = "generation_limit"
	StopReasonShutdown StopReason = "shutdown"
)

type DriverConfig struct {
	// SaveDir receives <run>_gen<N>.json network saves.
	SaveDir string `json:"save_dir" yaml:"save_dir" ini:"save_dir"`
	// Window is the rolling score window length.
	Window int `json:"window" yaml:"window" ini:"window"`
	// Improvement is the window average gain that forces a save.
	Improvement      float64       `json:"improvement" yaml:"improvement" ini:"improvement"`
	SaveInterval     time.Duration `json:"save_interval" yaml:"save_interval" ini:"save_interval"`
	ProgressInterval time.Duration `json:"progress_interval" yaml:"progress_interval" ini:"progress_interval"`
	// Generations stops the run after that many generations; 0 runs until
	// cancelled.
	Generations int `json:"generations" yaml:"generations" ini:"generations"`
}

func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		SaveDir:          "networks",
		Window:           50,
		Improvement:      10,
		SaveInterval:     60 * time.Second,
		ProgressInterval: time.Second,
	}
}

func (c DriverConfig) Validate() error {
	if c.SaveDir == "" {
		return errors.New("save dir is required")
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be > 0, got %d", c.Window)
	}
	if c.Improvement <= 0 {
		return fmt.Errorf("improvement must be > 0, got %f", c.Improvement)
	}
	if c.SaveInterval <= 0 || c.ProgressInterval <= 0 {
		return errors.New("save and progress intervals must be > 0")
	}
	if c.Generations < 0 {
		return fmt.Errorf("generations must be >= 0, got %d", c.Generations)
	}
	return nil
}

// Driver runs generations back to back, reporting progress and saving the
// network as it improves.
type Driver struct {
	cfg     DriverConfig
	trainer *evo.Trainer
	player  player.Config
	store   storage.Store
	out     io.Writer
	color   bool
	now     func() time.Time
	metrics *Metrics
	logger  *slog.Logger
}

type DriverOption func(*Driver)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) DriverOption {
	return func(d *Driver) { d.now = now }
}

// WithMetrics exports progress through m.
func WithMetrics(m *Metrics) DriverOption {
	return func(d *Driver) { d.metrics = m }
}

// WithColor forces ANSI colours on or off.
func WithColor(on bool) DriverOption {
	return func(d *Driver) { d.color = on }
}

func NewDriver(cfg DriverConfig, trainer *evo.Trainer, playerCfg player.Config, store storage.Store, out io.Writer, opts ...DriverOption) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if trainer == nil {
		return nil, errors.New("trainer is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if out == nil {
		out = io.Discard
	}
	d := &Driver{
		cfg:     cfg,
		trainer: trainer,
		player:  playerCfg,
		store:   store,
		out:     out,
		color:   ColorEnabled(out),
		now:     time.Now,
		logger:  slog.Default().With(slog.String("component", "platform.driver")),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

type RunResult struct {
	Network     *nn.Network
	Generations int
	Summary     stats.Summary
	LastSave    string
	Reason      StopReason
}

// Run registers run in the store and trains network until ctx is cancelled
// or the generation limit is reached. Cancellation is a normal stop: the
// latest network is saved and no error is returned.
func (d *Driver) Run(ctx context.Context, run model.RunRecord, network *nn.Network) (RunResult, error) {
	if network == nil {
		return RunResult{}, errors.New("network is required")
	}
	if run.ID == "" {
		run.ID = storage.NewID()
	}
	if run.Name == "" {
		run.Name = run.ID
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = d.now()
	}
	run.VersionedRecord = storage.CurrentVersion()
	if err := d.store.SaveRun(ctx, run); err != nil {
		return RunResult{}, fmt.Errorf("save run: %w", err)
	}

	start := d.now()
	window := stats.NewScoreWindow(d.cfg.Window)
	policy := newCheckpointPolicy(d.cfg, start)
	progress := &progressPrinter{out: d.out, color: d.color, prevTime: start}
	result := RunResult{Network: network}

	d.logger.Info("run started",
		slog.String("run", run.Name),
		slog.String("id", run.ID),
		slog.Int("edges", network.EdgeCount()),
	)

	for generation := 0; d.cfg.Generations == 0 || generation < d.cfg.Generations; generation++ {
		gen, err := d.trainer.TrainGeneration(ctx, result.Network)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return d.stop(run, result, StopReasonShutdown)
		}
		if err != nil {
			return result, fmt.Errorf("generation %d: %w", generation, err)
		}
		result.Network = gen.Winner
		result.Generations = generation + 1

		window.Push(gen.Score)
		result.Summary = window.Summary()
		now := d.now()
		c := policy.observe(result.Summary.Average, window.Ready(), now)

		mutations := len(gen.Contenders[gen.WinnerIndex].Mutations)
		record := model.GenerationRecord{
			VersionedRecord: storage.CurrentVersion(),
			RunID:           run.ID,
			Generation:      generation,
			Score:           gen.Score,
			Average:         result.Summary.Average,
			Original:        gen.Original(),
			Edges:           gen.Winner.EdgeCount(),
			Mutations:       mutations,
		}
		if err := d.store.AppendGeneration(context.WithoutCancel(ctx), record); err != nil {
			return result, fmt.Errorf("record generation %d: %w", generation, err)
		}
		d.metrics.observeGeneration(gen.Score, result.Summary.Average, record.Edges, record.Original)

		if c.notify {
			progress.print(generation, c.improved, result.Summary, now)
		}
		if c.save {
			path, err := d.checkpoint(run, generation, result.Network, result.Summary.Average, now)
			if err != nil {
				return result, err
			}
			result.LastSave = path
		}
	}
	result.Reason = StopReasonLimit
	d.logger.Info("run finished",
		slog.String("run", run.Name),
		slog.Int("generations", result.Generations),
		slog.Float64("average", result.Summary.Average),
	)
	return result, nil
}

func (d *Driver) stop(run model.RunRecord, result RunResult, reason StopReason) (RunResult, error) {
	result.Reason = reason
	if result.Generations > 0 {
		path, err := d.checkpoint(run, result.Generations-1, result.Network, result.Summary.Average, d.now())
		if err != nil {
			return result, err
		}
		result.LastSave = path
	}
	d.logger.Info("run stopped",
		slog.String("run", run.Name),
		slog.String("reason", string(reason)),
		slog.Int("generations", result.Generations),
	)
	return result, nil
}

// checkpoint writes the network save file and records it as a snapshot.
func (d *Driver) checkpoint(run model.RunRecord, generation int, network *nn.Network, avg float64, now time.Time) (string, error) {
	save := storage.NetworkSave{Player: d.player, Network: network}
	path := filepath.Join(d.cfg.SaveDir, fmt.Sprintf("%s_gen%d.json", run.Name, generation))
	if err := save.Save(path); err != nil {
		return "", fmt.Errorf("save network: %w", err)
	}
	payload, err := json.Marshal(save)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	snapshot := model.SnapshotRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              storage.NewID(),
		RunID:           run.ID,
		Generation:      generation,
		Average:         avg,
		Path:            path,
		CreatedAt:       now,
		Payload:         payload,
	}
	if err := d.store.SaveSnapshot(context.Background(), snapshot); err != nil {
		return "", fmt.Errorf("record snapshot: %w", err)
	}
	d.metrics.observeSave()

	size := int64(len(payload))
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	d.logger.Info("network saved",
		slog.String("path", path),
		slog.Int("generation", generation),
		slog.Float64("average", avg),
		slog.String("size", humanize.Bytes(uint64(size))),
	)
	return path, nil
}
