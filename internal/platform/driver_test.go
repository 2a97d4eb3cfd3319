package platform

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"cellmind/internal/evo"
	"cellmind/internal/model"
	"cellmind/internal/nn"
	"cellmind/internal/player"
	"cellmind/internal/scape"
	"cellmind/internal/storage"
)

type edgeCountEpisode struct{}

func (edgeCountEpisode) Run(n *nn.Network) (int, error) { return n.EdgeCount(), nil }

type edgeCountAdapter struct{}

func (edgeCountAdapter) Name() string { return "edges" }

func (edgeCountAdapter) NewEpisode(*rand.Rand) (scape.Episode, error) { return edgeCountEpisode{}, nil }

// stepClock advances by step on every call.
type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

func newTestDriver(t *testing.T, cfg DriverConfig, out *bytes.Buffer, opts ...DriverOption) (*Driver, storage.Store) {
	t.Helper()
	trainer, err := evo.NewTrainer(evo.TrainerConfig{Contenders: 3, Mutations: 1, Iterations: 2, Workers: 2}, evo.DefaultBatchPolicy(), edgeCountAdapter{}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	store := storage.NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	clock := &stepClock{now: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), step: 700 * time.Millisecond}
	opts = append([]DriverOption{WithClock(clock.Now), WithColor(false)}, opts...)
	d, err := NewDriver(cfg, trainer, player.Config{KernelDiameter: 3}, store, out, opts...)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	return d, store
}

func testNetwork(t *testing.T) *nn.Network {
	t.Helper()
	n, err := nn.NewRandom(rand.New(rand.NewSource(3)), nn.DefaultConfig(), nn.Shape{Inputs: 9, HiddenLayers: 1, HiddenHeight: 4, Outputs: 2}, 0.3)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	return n
}

func TestDriverRunsToGenerationLimit(t *testing.T) {
	cfg := DefaultDriverConfig()
	cfg.SaveDir = t.TempDir()
	cfg.Window = 3
	cfg.Generations = 6
	cfg.SaveInterval = 2 * time.Second
	var out bytes.Buffer
	metrics, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	d, store := newTestDriver(t, cfg, &out, WithMetrics(metrics))

	result, err := d.Run(context.Background(), model.RunRecord{Name: "demo"}, testNetwork(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Reason != StopReasonLimit || result.Generations != 6 {
		t.Fatalf("unexpected result: reason=%s generations=%d", result.Reason, result.Generations)
	}

	runs, err := store.ListRuns(context.Background())
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected one run: runs=%d err=%v", len(runs), err)
	}
	runID := runs[0].ID
	gens, ok, err := store.GetGenerations(context.Background(), runID)
	if err != nil || !ok || len(gens) != 6 {
		t.Fatalf("expected 6 generation records: n=%d ok=%t err=%v", len(gens), ok, err)
	}
	for i, g := range gens {
		if g.Generation != i {
			t.Fatalf("generation %d recorded as %d", i, g.Generation)
		}
	}

	if result.LastSave == "" {
		t.Fatal("expected at least one save with a short save interval")
	}
	if !strings.HasPrefix(result.LastSave, cfg.SaveDir) || !strings.Contains(result.LastSave, "demo_gen") {
		t.Fatalf("unexpected save path: %s", result.LastSave)
	}
	if _, err := os.Stat(result.LastSave); err != nil {
		t.Fatalf("save file missing: %v", err)
	}
	loaded, err := storage.LoadNetworkSave(result.LastSave)
	if err != nil {
		t.Fatalf("load save: %v", err)
	}
	if loaded.Player.KernelDiameter != 3 {
		t.Fatalf("unexpected player config in save: %+v", loaded.Player)
	}
	snap, ok, err := store.LatestSnapshot(context.Background(), runID)
	if err != nil || !ok {
		t.Fatalf("latest snapshot: ok=%t err=%v", ok, err)
	}
	if snap.Path != result.LastSave {
		t.Fatalf("snapshot path %s does not match last save %s", snap.Path, result.LastSave)
	}

	if !strings.Contains(out.String(), "gen/s") {
		t.Fatalf("expected progress output, got %q", out.String())
	}
	if strings.Contains(out.String(), "\x1b[") {
		t.Fatal("colour disabled but ANSI codes printed")
	}

	if got := testutil.ToFloat64(metrics.generations); got != 6 {
		t.Fatalf("generations metric: got=%f want=6", got)
	}
	if got := testutil.ToFloat64(metrics.saves); got < 1 {
		t.Fatalf("expected save metric >= 1, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.edges); got != float64(result.Network.EdgeCount()) {
		t.Fatalf("edges metric: got=%f want=%d", got, result.Network.EdgeCount())
	}
}

func TestMetricsRejectDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestDriverStopsOnCancelAndSaves(t *testing.T) {
	cfg := DefaultDriverConfig()
	cfg.SaveDir = t.TempDir()
	var out bytes.Buffer
	d, store := newTestDriver(t, cfg, &out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Cancel once a few generations have been observed.
	calls := 0
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time {
		calls++
		if calls > 4 {
			cancel()
		}
		return base.Add(time.Duration(calls) * time.Millisecond)
	}

	result, err := d.Run(ctx, model.RunRecord{ID: "fixed", Name: "cancelled"}, testNetwork(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Reason != StopReasonShutdown {
		t.Fatalf("unexpected stop reason: %s", result.Reason)
	}
	if result.Generations == 0 || result.LastSave == "" {
		t.Fatalf("expected a final save after some generations: %+v", result)
	}
	if _, ok, _ := store.LatestSnapshot(context.Background(), "fixed"); !ok {
		t.Fatal("expected a snapshot for the cancelled run")
	}
}

func TestDriverConfigValidation(t *testing.T) {
	if err := DefaultDriverConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg := DefaultDriverConfig()
	cfg.Window = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected window error")
	}
	cfg = DefaultDriverConfig()
	cfg.SaveDir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected save dir error")
	}
}

func TestColorEnabledOnlyForTerminals(t *testing.T) {
	if ColorEnabled(&bytes.Buffer{}) {
		t.Fatal("buffers are never terminals")
	}
}
