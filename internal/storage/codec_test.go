package storage

import (
	"errors"
	"testing"

	"cellmind/internal/model"
)

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	run := model.RunRecord{VersionedRecord: model.VersionedRecord{SchemaVersion: 9, CodecVersion: 1}, ID: "r"}
	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}

	gen := model.GenerationRecord{RunID: "r"}
	data, err = EncodeGeneration(gen)
	if err != nil {
		t.Fatalf("encode generation: %v", err)
	}
	if _, err := DecodeGeneration(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestSnapshotCodecKeepsPayload(t *testing.T) {
	snap := model.SnapshotRecord{VersionedRecord: CurrentVersion(), ID: "s", RunID: "r", Generation: 3, Payload: []byte(`{"format":1}`)}
	data, err := EncodeSnapshot(snap)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded.Payload) != string(snap.Payload) || decoded.Generation != 3 {
		t.Fatalf("unexpected snapshot: %+v", decoded)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeSnapshot([]byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
}
