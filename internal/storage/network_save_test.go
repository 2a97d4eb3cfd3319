package storage

import (
	"encoding/json"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"cellmind/internal/nn"
	"cellmind/internal/player"
)

func sampleSave(t *testing.T) NetworkSave {
	t.Helper()
	network, err := nn.NewRandom(rand.New(rand.NewSource(2)), nn.DefaultConfig(), nn.Shape{Inputs: 9, HiddenLayers: 1, HiddenHeight: 4, Outputs: 2}, 0.5)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	return NetworkSave{Player: player.Config{KernelDiameter: 3, UseKernelCache: true}, Network: network}
}

func TestNetworkSaveFileRoundTrip(t *testing.T) {
	save := sampleSave(t)
	path := filepath.Join(t.TempDir(), "networks", "run_gen3.json")
	if err := save.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadNetworkSave(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Player != save.Player {
		t.Fatalf("player config mismatch: got=%+v want=%+v", loaded.Player, save.Player)
	}
	want, _ := save.Network.MarshalBinary()
	got, _ := loaded.Network.MarshalBinary()
	if string(want) != string(got) {
		t.Fatal("network changed across save and load")
	}
}

func TestNetworkSaveEnvelopeShape(t *testing.T) {
	data, err := json.Marshal(sampleSave(t))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"format", "player_config", "network"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("envelope missing %q: %s", key, data)
		}
	}
	var encoded string
	if err := json.Unmarshal(raw["network"], &encoded); err != nil {
		t.Fatalf("network should be a base64 string: %v", err)
	}
}

func TestNetworkSaveRejectsMismatchedKernel(t *testing.T) {
	save := sampleSave(t)
	save.Player.KernelDiameter = 5
	if err := save.Validate(); !errors.Is(err, ErrIncompatibleSave) {
		t.Fatalf("expected ErrIncompatibleSave, got %v", err)
	}
	data, err := json.Marshal(save)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded NetworkSave
	if err := json.Unmarshal(data, &decoded); !errors.Is(err, ErrIncompatibleSave) {
		t.Fatalf("expected ErrIncompatibleSave on load, got %v", err)
	}
}

func TestLoadNetworkSaveErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadNetworkSave(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected missing file error")
	}
	path := filepath.Join(dir, "old.json")
	if err := os.WriteFile(path, []byte(`{"format":7,"player_config":{},"network":""}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadNetworkSave(path); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}
