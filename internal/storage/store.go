package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"cellmind/internal/model"
)

var ErrRunNotFound = errors.New("run not found")

// Store persists training runs, their generation summaries and network
// snapshots.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	AppendGeneration(ctx context.Context, record model.GenerationRecord) error
	GetGenerations(ctx context.Context, runID string) ([]model.GenerationRecord, bool, error)
	SaveSnapshot(ctx context.Context, snapshot model.SnapshotRecord) error
	GetSnapshot(ctx context.Context, id string) (model.SnapshotRecord, bool, error)
	LatestSnapshot(ctx context.Context, runID string) (model.SnapshotRecord, bool, error)
}

// NewID returns a random identifier for runs and snapshots.
func NewID() string {
	return uuid.NewString()
}
