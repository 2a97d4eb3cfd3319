package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cellmind/internal/nn"
	"cellmind/internal/player"
)

const NetworkSaveFormat = 1

var ErrIncompatibleSave = errors.New("network does not fit player config")

// NetworkSave pairs a network with the player settings it was trained
// under. The network travels as base64 encoded MessagePack inside JSON.
type NetworkSave struct {
	Player  player.Config
	Network *nn.Network
}

type networkSaveWire struct {
	Format  int           `json:"format"`
	Player  player.Config `json:"player_config"`
	Network []byte        `json:"network"`
}

func (s NetworkSave) Validate() error {
	if s.Network == nil {
		return errors.New("network save has no network")
	}
	if err := s.Player.Validate(); err != nil {
		return err
	}
	if s.Network.InputSize() != s.Player.Inputs() {
		return fmt.Errorf("%w: %d inputs for kernel diameter %d", ErrIncompatibleSave, s.Network.InputSize(), s.Player.KernelDiameter)
	}
	if s.Network.OutputSize() < 2 {
		return fmt.Errorf("%w: %v", ErrIncompatibleSave, player.ErrTooFewOutputs)
	}
	return nil
}

func (s NetworkSave) MarshalJSON() ([]byte, error) {
	if s.Network == nil {
		return nil, errors.New("network save has no network")
	}
	payload, err := s.Network.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return json.Marshal(networkSaveWire{Format: NetworkSaveFormat, Player: s.Player, Network: payload})
}

func (s *NetworkSave) UnmarshalJSON(data []byte) error {
	var wire networkSaveWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Format != NetworkSaveFormat {
		return fmt.Errorf("%w: network save format %d", ErrVersionMismatch, wire.Format)
	}
	network, err := nn.Unmarshal(wire.Network)
	if err != nil {
		return err
	}
	decoded := NetworkSave{Player: wire.Player, Network: network}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*s = decoded
	return nil
}

// Save writes the envelope to path, creating parent directories.
func (s NetworkSave) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode network save: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func LoadNetworkSave(path string) (NetworkSave, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return NetworkSave{}, err
	}
	var save NetworkSave
	if err := json.Unmarshal(data, &save); err != nil {
		return NetworkSave{}, fmt.Errorf("load %s: %w", path, err)
	}
	return save, nil
}
