package config

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"cellmind/internal/evo"
	"cellmind/internal/nn"
	"cellmind/internal/platform"
	"cellmind/internal/player"
	"cellmind/internal/scape"
	"cellmind/internal/storage"
)

var ErrUnsupportedFormat = errors.New("unsupported config format")

// NetworkConfig describes the network built by the new subcommand. The input
// layer size follows from the player's kernel diameter.
type NetworkConfig struct {
	Activation   string        `json:"activation" yaml:"activation" ini:"activation"`
	Combinator   nn.Combinator `json:"combinator" yaml:"combinator" ini:"combinator"`
	HiddenLayers int           `json:"hidden_layers" yaml:"hidden_layers" ini:"hidden_layers"`
	HiddenHeight int           `json:"hidden_height" yaml:"hidden_height" ini:"hidden_height"`
	Outputs      int           `json:"outputs" yaml:"outputs" ini:"outputs"`
	// Density is the fraction of possible edges wired at creation. Zero
	// starts edge-less and leaves growth to mutation.
	Density float64 `json:"density" yaml:"density" ini:"density"`
}

type StorageConfig struct {
	Kind string `json:"kind" yaml:"kind" ini:"kind"`
	Path string `json:"path" yaml:"path" ini:"path"`
}

type Config struct {
	Seed     int64                 `json:"seed" yaml:"seed"`
	Trainer  evo.TrainerConfig     `json:"trainer" yaml:"trainer"`
	Mutation []evo.OrderingSpec    `json:"mutation" yaml:"mutation"`
	Episode  scape.EpisodeConfig   `json:"episode" yaml:"episode"`
	Player   player.Config         `json:"player" yaml:"player"`
	Network  NetworkConfig         `json:"network" yaml:"network"`
	Driver   platform.DriverConfig `json:"driver" yaml:"driver"`
	Storage  StorageConfig         `json:"storage" yaml:"storage"`
}

func Default() *Config {
	return &Config{
		Seed:     1,
		Trainer:  evo.DefaultTrainerConfig(),
		Mutation: evo.DefaultOrderings(),
		Episode:  scape.DefaultEpisodeConfig(),
		Player:   player.DefaultConfig(),
		Network: NetworkConfig{
			Activation:   nn.ActivationTanh,
			Combinator:   nn.CombineAdd,
			HiddenLayers: 3,
			HiddenHeight: 15,
			Outputs:      2,
		},
		Driver: platform.DefaultDriverConfig(),
		Storage: StorageConfig{
			Kind: storage.DefaultStoreKind(),
			Path: "cellmind.db",
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Trainer.Validate(); err != nil {
		return fmt.Errorf("trainer: %w", err)
	}
	if _, err := c.BatchPolicy(); err != nil {
		return fmt.Errorf("mutation: %w", err)
	}
	if err := c.Episode.Validate(); err != nil {
		return fmt.Errorf("episode: %w", err)
	}
	if err := c.Player.Validate(); err != nil {
		return fmt.Errorf("player: %w", err)
	}
	if err := c.NetworkFunctions().Validate(); err != nil {
		return fmt.Errorf("network: %w", err)
	}
	if err := c.Shape().Validate(); err != nil {
		return fmt.Errorf("network: %w", err)
	}
	if c.Network.Outputs < 2 {
		return fmt.Errorf("network: %w", player.ErrTooFewOutputs)
	}
	if c.Network.Density < 0 || c.Network.Density > 1 {
		return fmt.Errorf("network: density must be within [0, 1], got %f", c.Network.Density)
	}
	if err := c.Driver.Validate(); err != nil {
		return fmt.Errorf("driver: %w", err)
	}
	if c.Storage.Kind == "" {
		return errors.New("storage: kind is required")
	}
	return nil
}

func (c *Config) NetworkFunctions() nn.Config {
	return nn.Config{Activation: c.Network.Activation, Combinator: c.Network.Combinator}
}

// Shape derives the layer layout from the network section and the kernel.
func (c *Config) Shape() nn.Shape {
	return nn.Shape{
		Inputs:       c.Player.Inputs(),
		HiddenLayers: c.Network.HiddenLayers,
		HiddenHeight: c.Network.HiddenHeight,
		Outputs:      c.Network.Outputs,
	}
}

func (c *Config) BatchPolicy() (evo.BatchPolicy, error) {
	return evo.NewBatchPolicy(c.Mutation)
}

// NewNetwork builds a fresh network for the configured kernel.
func (c *Config) NewNetwork(rng *rand.Rand) (*nn.Network, error) {
	if c.Network.Density > 0 {
		return nn.NewRandom(rng, c.NetworkFunctions(), c.Shape(), c.Network.Density)
	}
	return nn.New(c.NetworkFunctions(), c.Shape())
}

// Load reads a config file, starting from Default so that omitted fields
// keep their defaults. The format follows the extension: .yaml, .yml and
// .json go through the YAML decoder, .ini uses sections named after the
// top-level fields.
func Load(path string) (*Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return loadYAML(path)
	case ".ini":
		return loadINI(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func loadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func loadINI(path string) (*Config, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%s': %w", path, err)
	}

	cfg := Default()
	if key, err := file.Section(ini.DefaultSection).GetKey("seed"); err == nil {
		if cfg.Seed, err = key.Int64(); err != nil {
			return nil, fmt.Errorf("invalid seed: %w", err)
		}
	}
	sections := []struct {
		name   string
		target any
	}{
		{"trainer", &cfg.Trainer},
		{"episode", &cfg.Episode},
		{"player", &cfg.Player},
		{"network", &cfg.Network},
		{"driver", &cfg.Driver},
		{"storage", &cfg.Storage},
	}
	for _, s := range sections {
		if !file.HasSection(s.name) {
			continue
		}
		if err := file.Section(s.name).MapTo(s.target); err != nil {
			return nil, fmt.Errorf("failed to map [%s] section: %w", s.name, err)
		}
	}
	if key, err := file.Section("mutation").GetKey("orderings"); err == nil {
		if cfg.Mutation, err = ParseOrderings(key.String()); err != nil {
			return nil, fmt.Errorf("failed to map [mutation] section: %w", err)
		}
	}
	return cfg, nil
}

// ParseOrderings reads the compact ordering form used by ini files and
// flags: "7:reweight,add_edge,remove_edge; 1:add_edge,reweight".
func ParseOrderings(s string) ([]evo.OrderingSpec, error) {
	var specs []evo.OrderingSpec
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		weight, ops, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("ordering %q: missing weight", part)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(weight), 64)
		if err != nil {
			return nil, fmt.Errorf("ordering %q: %w", part, err)
		}
		spec := evo.OrderingSpec{Weight: w}
		for _, op := range strings.Split(ops, ",") {
			if op = strings.TrimSpace(op); op != "" {
				spec.Operators = append(spec.Operators, op)
			}
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, errors.New("no orderings")
	}
	return specs, nil
}

// Save writes c as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
