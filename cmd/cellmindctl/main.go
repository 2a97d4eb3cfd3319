package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"cellmind/internal/config"
	"cellmind/internal/evo"
	"cellmind/internal/game"
	"cellmind/internal/model"
	"cellmind/internal/platform"
	"cellmind/internal/player"
	"cellmind/internal/scape"
	"cellmind/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "config":
		return runConfig(ctx, args[1:])
	case "new":
		return runNew(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "dump":
		return runDump(ctx, args[1:])
	case "play":
		return runPlay(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "generations":
		return runGenerations(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: cellmindctl <config|new|train|dump|play|runs|generations> [flags]", msg)
}

// commonFlags are shared by every subcommand that reads the config file.
type commonFlags struct {
	fs         *flag.FlagSet
	configPath *string
	logLevel   *string
	storeKind  *string
	dbPath     *string
	seed       *int64
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		fs:         fs,
		configPath: fs.String("config", "", "config file (.yaml, .yml, .json or .ini)"),
		logLevel:   fs.String("log-level", "info", "log level: debug|info|warn|error"),
		storeKind:  fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath:     fs.String("db-path", "cellmind.db", "sqlite database path"),
		seed:       fs.Int64("seed", 1, "rng seed"),
	}
}

// setFlags lists the flags given on the command line; only those override
// values from the config file.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// load sets up logging and returns the effective config.
func (c *commonFlags) load() (*config.Config, error) {
	if err := setupLogging(*c.logLevel); err != nil {
		return nil, err
	}
	cfg := config.Default()
	if *c.configPath != "" {
		loaded, err := config.Load(*c.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	set := setFlags(c.fs)
	if set["store"] || *c.configPath == "" {
		cfg.Storage.Kind = *c.storeKind
	}
	if set["db-path"] || *c.configPath == "" {
		cfg.Storage.Path = *c.dbPath
	}
	if set["seed"] || *c.configPath == "" {
		cfg.Seed = *c.seed
	}
	return cfg, nil
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	store, err := storage.NewStore(cfg.Storage.Kind, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, err
	}
	return store, nil
}

func runConfig(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	out := fs.String("out", "cellmind.yaml", "path of the default config to write")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := config.Default().Save(*out); err != nil {
		return err
	}
	fmt.Printf("wrote config=%s\n", *out)
	return nil
}

func runNew(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("new", flag.ContinueOnError)
	common := addCommonFlags(fs)
	out := fs.String("out", "", "network save path (default <save-dir>/<date>_new.json)")
	kernel := fs.Int("kernel", 0, "kernel diameter override")
	density := fs.Float64("density", -1, "initial edge density override in [0, 1]")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *kernel > 0 {
		cfg.Player.KernelDiameter = *kernel
	}
	if *density >= 0 {
		cfg.Network.Density = *density
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	network, err := cfg.NewNetwork(rand.New(rand.NewSource(cfg.Seed)))
	if err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = filepath.Join(cfg.Driver.SaveDir, time.Now().Format("20060102")+"_new.json")
	}
	save := storage.NetworkSave{Player: cfg.Player, Network: network}
	if err := save.Save(path); err != nil {
		return err
	}
	fmt.Printf("created network=%s inputs=%d layers=%d edges=%d\n", path, network.InputSize(), network.LayerCount(), network.EdgeCount())
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	common := addCommonFlags(fs)
	name := fs.String("name", "", "run name used for save files (default today's date)")
	networkPath := fs.String("network", "", "network save to continue from (default a fresh network)")
	generations := fs.Int("gens", 0, "stop after this many generations (0 runs until interrupted)")
	contenders := fs.Int("contenders", 0, "contenders per generation override")
	iterations := fs.Int("iterations", 0, "scoring rounds per generation override")
	workers := fs.Int("workers", -1, "scoring workers override (0 uses one per CPU)")
	saveDir := fs.String("save-dir", "", "network save directory override")
	metricsAddr := fs.String("metrics-addr", "", "serve prometheus metrics on this address (empty disables)")
	traceSpans := fs.Bool("trace", false, "write generation and round spans to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *generations > 0 {
		cfg.Driver.Generations = *generations
	}
	if *contenders > 0 {
		cfg.Trainer.Contenders = *contenders
	}
	if *iterations > 0 {
		cfg.Trainer.Iterations = *iterations
	}
	if *workers >= 0 {
		cfg.Trainer.Workers = *workers
	}
	if *saveDir != "" {
		cfg.Driver.SaveDir = *saveDir
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	save := storage.NetworkSave{Player: cfg.Player}
	if *networkPath != "" {
		if save, err = storage.LoadNetworkSave(*networkPath); err != nil {
			return err
		}
		// A saved network is bound to the player config it was trained with.
		cfg.Player = save.Player
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if save.Network == nil {
		if save.Network, err = cfg.NewNetwork(rng); err != nil {
			return err
		}
	}

	policy, err := cfg.BatchPolicy()
	if err != nil {
		return err
	}
	adapter, err := scape.NewGameAdapter(cfg.Episode, cfg.Player)
	if err != nil {
		return err
	}
	var trainerOpts []evo.TrainerOption
	if *traceSpans {
		tp, stopTracing, err := startTracing(os.Stderr)
		if err != nil {
			return err
		}
		defer stopTracing()
		trainerOpts = append(trainerOpts, evo.WithTracerProvider(tp))
	}
	trainer, err := evo.NewTrainer(cfg.Trainer, policy, adapter, rng, trainerOpts...)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()
	var opts []platform.DriverOption
	if *metricsAddr != "" {
		metrics, stopMetrics, err := serveMetrics(*metricsAddr)
		if err != nil {
			return err
		}
		defer stopMetrics()
		opts = append(opts, platform.WithMetrics(metrics))
	}
	driver, err := platform.NewDriver(cfg.Driver, trainer, cfg.Player, store, os.Stdout, opts...)
	if err != nil {
		return err
	}

	settings, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	runName := *name
	if runName == "" {
		runName = time.Now().Format("20060102")
	}
	result, err := driver.Run(ctx, model.RunRecord{Name: runName, Seed: cfg.Seed, Settings: settings}, save.Network)
	if err != nil {
		return err
	}
	fmt.Printf("stopped reason=%s generations=%s average=%.2f edges=%d save=%s\n",
		result.Reason,
		humanize.Comma(int64(result.Generations)),
		result.Summary.Average,
		result.Network.EdgeCount(),
		result.LastSave,
	)
	return nil
}

// startTracing batches spans to w as JSON until the returned stop function
// flushes and shuts the provider down.
func startTracing(w io.Writer) (*sdktrace.TracerProvider, func(), error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, nil, fmt.Errorf("trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Warn("trace shutdown failed", slog.String("error", err.Error()))
		}
	}
	return tp, stop, nil
}

// serveMetrics exposes a fresh registry on addr/metrics until the returned
// stop function is called.
func serveMetrics(addr string) (*platform.Metrics, func(), error) {
	reg := prometheus.NewRegistry()
	metrics, err := platform.NewMetrics(reg)
	if err != nil {
		return nil, nil, err
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handlers.CompressHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	slog.Info("serving metrics", slog.String("addr", listener.Addr().String()))
	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return metrics, stop, nil
}

func runDump(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	networkPath := fs.String("network", "", "network save to dump")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *networkPath == "" {
		return errors.New("dump requires --network")
	}
	save, err := storage.LoadNetworkSave(*networkPath)
	if err != nil {
		return err
	}
	dump := struct {
		Player  player.Config `json:"player_config"`
		Network any           `json:"network"`
	}{Player: save.Player, Network: save.Network.Dump()}
	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return err
	}
	out := *networkPath + ".netdump.json"
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("dumped network=%s size=%s\n", out, humanize.Bytes(uint64(len(data))))
	return nil
}

func runPlay(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	common := addCommonFlags(fs)
	networkPath := fs.String("network", "", "network save to play")
	steps := fs.Int("steps", 0, "step budget override")
	quiet := fs.Bool("quiet", false, "print only the outcome, not every board")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *networkPath == "" {
		return errors.New("play requires --network")
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *steps > 0 {
		cfg.Episode.MaxSteps = *steps
	}
	save, err := storage.LoadNetworkSave(*networkPath)
	if err != nil {
		return err
	}
	adapter, err := scape.NewGameAdapter(cfg.Episode, save.Player)
	if err != nil {
		return err
	}
	episode, err := adapter.NewEpisode(rand.New(rand.NewSource(cfg.Seed)))
	if err != nil {
		return err
	}
	ge := episode.(*scape.GameEpisode)

	if !*quiet {
		fmt.Printf("step 0: alive=%d\n%s", ge.Board().Count(game.Alive), ge.Board())
	}
	outcome, err := ge.Play(save.Network, func(step int, g *game.Game, move player.Move, moved bool) {
		if *quiet {
			return
		}
		action := "skip"
		if moved {
			action = fmt.Sprintf("%s %s->%s", move.Pos, move.Old, move.New)
		}
		fmt.Printf("step %d: %s alive=%d\n%s", step, action, g.Count(game.Alive), g.Board)
	})
	if err != nil {
		return err
	}
	base := ge.Baseline()
	fmt.Printf("outcome initial=%d final=%d steps=%d moves=%d skipped=%d nature_final=%d score=%d\n",
		outcome.InitialAlive, outcome.FinalAlive, outcome.Steps, outcome.Moves, outcome.Skipped,
		base.FinalAlive, adapter.Reward().Score(cfg.Episode, base, outcome))
	return nil
}

// memoryStoreHint explains empty history when the binary was built without
// the sqlite backend.
const memoryStoreHint = "the memory store keeps nothing between invocations; rebuild with -tags sqlite and pass --store sqlite"

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	common := addCommonFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	runs, err := store.ListRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		if cfg.Storage.Kind == "memory" {
			fmt.Printf("no runs found (%s)\n", memoryStoreHint)
			return nil
		}
		fmt.Println("no runs found")
		return nil
	}
	if len(runs) > *limit {
		runs = runs[len(runs)-*limit:]
	}
	if *jsonOut {
		type runsItem struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			CreatedAtUTC string `json:"created_at_utc"`
			Seed         int64  `json:"seed"`
		}
		items := make([]runsItem, 0, len(runs))
		for _, r := range runs {
			items = append(items, runsItem{
				ID:           r.ID,
				Name:         r.Name,
				CreatedAtUTC: r.CreatedAt.UTC().Format(time.RFC3339),
				Seed:         r.Seed,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	for _, r := range runs {
		fmt.Printf("run_id=%s name=%s created=%s seed=%d\n", r.ID, r.Name, humanize.Time(r.CreatedAt), r.Seed)
	}
	return nil
}

func runGenerations(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generations", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "run id to inspect")
	limit := fs.Int("limit", 50, "show only the latest N generations")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("generations requires --run-id")
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	gens, ok, err := store.GetGenerations(ctx, *runID)
	if err != nil {
		return err
	}
	if !ok {
		if cfg.Storage.Kind == "memory" {
			return fmt.Errorf("%w: %s (%s)", storage.ErrRunNotFound, *runID, memoryStoreHint)
		}
		return fmt.Errorf("%w: %s", storage.ErrRunNotFound, *runID)
	}
	if len(gens) > *limit {
		gens = gens[len(gens)-*limit:]
	}
	for _, g := range gens {
		fmt.Printf("gen=%d score=%d average=%.2f edges=%d mutations=%d original=%t\n",
			g.Generation, g.Score, g.Average, g.Edges, g.Mutations, g.Original)
	}
	if snap, ok, err := store.LatestSnapshot(ctx, *runID); err == nil && ok {
		fmt.Printf("latest_save=%s generation=%d average=%.2f\n", snap.Path, snap.Generation, snap.Average)
	}
	return nil
}
