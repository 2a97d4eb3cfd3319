package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cellmind/internal/storage"
)

func captureStdout(fn func() error) (string, error) {
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}

	os.Stdout = w
	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.Bytes()
	}()
	runErr := fn()
	_ = w.Close()
	os.Stdout = origStdout
	out := <-done
	_ = r.Close()
	return string(out), runErr
}

func writeSmallConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "small.yaml")
	content := `
seed: 5
trainer:
  contenders: 3
  mutations: 2
  iterations: 2
  workers: 2
episode:
  width: 6
  height: 6
  alive_cells: 12
  max_steps: 4
player:
  kernel_diameter: 3
  shuffle_scan: true
network:
  activation: tanh
  combinator: add
  hidden_layers: 1
  hidden_height: 4
  outputs: 2
  density: 0.5
driver:
  save_dir: ` + filepath.Join(dir, "networks") + `
  window: 2
  improvement: 10
  save_interval: 1ns
  progress_interval: 1s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	if err := run(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "usage") {
		t.Fatalf("expected usage error, got %v", err)
	}
	if err := run(context.Background(), []string{"evolve"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestConfigCommandWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cellmind.yaml")
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"config", "--out", path})
	})
	if err != nil {
		t.Fatalf("config command: %v", err)
	}
	if !strings.Contains(out, "wrote config=") {
		t.Fatalf("unexpected output: %q", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config at %s: %v", path, err)
	}
}

func TestNewDumpPlayAndTrain(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeSmallConfig(t, dir)
	savePath := filepath.Join(dir, "start.json")

	if _, err := captureStdout(func() error {
		return run(context.Background(), []string{"new", "--config", cfgPath, "--out", savePath, "--log-level", "warn"})
	}); err != nil {
		t.Fatalf("new command: %v", err)
	}
	save, err := storage.LoadNetworkSave(savePath)
	if err != nil {
		t.Fatalf("load new network: %v", err)
	}
	if save.Player.KernelDiameter != 3 || save.Network.InputSize() != 9 || save.Network.LayerCount() != 3 {
		t.Fatalf("unexpected network: kernel=%d inputs=%d layers=%d", save.Player.KernelDiameter, save.Network.InputSize(), save.Network.LayerCount())
	}

	if _, err := captureStdout(func() error {
		return run(context.Background(), []string{"dump", "--network", savePath})
	}); err != nil {
		t.Fatalf("dump command: %v", err)
	}
	data, err := os.ReadFile(savePath + ".netdump.json")
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	var dump struct {
		Network struct {
			Layers []struct {
				Kind string `json:"kind"`
			} `json:"layers"`
		} `json:"network"`
	}
	if err := json.Unmarshal(data, &dump); err != nil {
		t.Fatalf("decode dump: %v", err)
	}
	if len(dump.Network.Layers) != 3 || dump.Network.Layers[0].Kind != "input" || dump.Network.Layers[2].Kind != "output" {
		t.Fatalf("unexpected dump layers: %+v", dump.Network.Layers)
	}

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"play", "--config", cfgPath, "--network", savePath, "--log-level", "warn"})
	})
	if err != nil {
		t.Fatalf("play command: %v", err)
	}
	if !strings.Contains(out, "step 0: alive=12") || !strings.Contains(out, "outcome initial=12") {
		t.Fatalf("unexpected play output:\n%s", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{
			"train",
			"--config", cfgPath,
			"--network", savePath,
			"--name", "smoke",
			"--gens", "3",
			"--store", "memory",
			"--metrics-addr", "127.0.0.1:0",
			"--trace",
			"--log-level", "warn",
		})
	})
	if err != nil {
		t.Fatalf("train command: %v", err)
	}
	if !strings.Contains(out, "stopped reason=generation_limit generations=3") {
		t.Fatalf("unexpected train output:\n%s", out)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "networks", "smoke_gen*.json"))
	if err != nil || len(matches) == 0 {
		t.Fatalf("expected network saves, got %v (err=%v)", matches, err)
	}
}

func TestStartTracingWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tp, stop, err := startTracing(&buf)
	if err != nil {
		t.Fatalf("start tracing: %v", err)
	}
	_, span := tp.Tracer("cellmindctl").Start(context.Background(), "evo.TrainGeneration")
	span.End()
	stop()
	if !strings.Contains(buf.String(), `"Name":"evo.TrainGeneration"`) {
		t.Fatalf("span not exported: %q", buf.String())
	}
}

func TestServeMetricsRejectsBadAddress(t *testing.T) {
	if _, _, err := serveMetrics("not-an-address"); err == nil {
		t.Fatal("expected listen error")
	}
}

func TestDumpRequiresNetwork(t *testing.T) {
	if err := run(context.Background(), []string{"dump"}); err == nil {
		t.Fatal("expected error without --network")
	}
}

func TestRunsOnEmptyMemoryStore(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"runs", "--store", "memory", "--log-level", "error"})
	})
	if err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if !strings.Contains(out, "no runs found") || !strings.Contains(out, "-tags sqlite") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestGenerationsUnknownRun(t *testing.T) {
	err := run(context.Background(), []string{"generations", "--store", "memory", "--run-id", "missing"})
	if !errors.Is(err, storage.ErrRunNotFound) || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected run not found error, got %v", err)
	}
	if !strings.Contains(err.Error(), "-tags sqlite") {
		t.Fatalf("expected a hint about the sqlite build tag, got %v", err)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	if err := run(context.Background(), []string{"runs", "--store", "memory", "--log-level", "loud"}); err == nil {
		t.Fatal("expected invalid log level error")
	}
}
