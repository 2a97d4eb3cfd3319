package storage

import (
	"encoding/json"
	"errors"

	"cellmind/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion stamps new records.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeGeneration(g model.GenerationRecord) ([]byte, error) {
	return json.Marshal(g)
}

func DecodeGeneration(data []byte) (model.GenerationRecord, error) {
	var gen model.GenerationRecord
	if err := json.Unmarshal(data, &gen); err != nil {
		return model.GenerationRecord{}, err
	}
	if err := checkVersion(gen.VersionedRecord); err != nil {
		return model.GenerationRecord{}, err
	}
	return gen, nil
}

func EncodeSnapshot(s model.SnapshotRecord) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSnapshot(data []byte) (model.SnapshotRecord, error) {
	var snap model.SnapshotRecord
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.SnapshotRecord{}, err
	}
	if err := checkVersion(snap.VersionedRecord); err != nil {
		return model.SnapshotRecord{}, err
	}
	return snap, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
