package model

import (
	"encoding/json"
	"time"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord identifies one training run.
type RunRecord struct {
	VersionedRecord
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	CreatedAt time.Time       `json:"created_at"`
	Seed      int64           `json:"seed"`
	Settings  json.RawMessage `json:"settings,omitempty"`
}

// GenerationRecord is the per-generation summary appended by the driver.
type GenerationRecord struct {
	VersionedRecord
	RunID      string  `json:"run_id"`
	Generation int     `json:"generation"`
	Score      int     `json:"score"`
	Average    float64 `json:"average"`
	Original   bool    `json:"original"`
	Edges      int     `json:"edges"`
	Mutations  int     `json:"mutations"`
}

// SnapshotRecord holds a saved network envelope for a run.
type SnapshotRecord struct {
	VersionedRecord
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Generation int       `json:"generation"`
	Average    float64   `json:"average"`
	Path       string    `json:"path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Payload    []byte    `json:"payload"`
}
