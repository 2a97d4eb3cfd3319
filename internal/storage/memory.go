package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"cellmind/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	generations map[string][]model.GenerationRecord
	snapshots   map[string]model.SnapshotRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.generations = make(map[string][]model.GenerationRecord)
	s.snapshots = make(map[string]model.SnapshotRecord)
	return nil
}

func (s *MemoryStore) ready() error {
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	run.Settings = append([]byte(nil), run.Settings...)
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return model.RunRecord{}, false, err
	}
	run, ok := s.runs[id]
	run.Settings = append([]byte(nil), run.Settings...)
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sortRuns(runs)
	return runs, nil
}

func (s *MemoryStore) AppendGeneration(_ context.Context, record model.GenerationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	if _, ok := s.runs[record.RunID]; !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, record.RunID)
	}
	records := s.generations[record.RunID]
	for i := range records {
		if records[i].Generation == record.Generation {
			records[i] = record
			return nil
		}
	}
	s.generations[record.RunID] = append(records, record)
	return nil
}

func (s *MemoryStore) GetGenerations(_ context.Context, runID string) ([]model.GenerationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, false, err
	}
	records, ok := s.generations[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.GenerationRecord(nil), records...), true, nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snapshot model.SnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	if _, ok := s.runs[snapshot.RunID]; !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, snapshot.RunID)
	}
	snapshot.Payload = append([]byte(nil), snapshot.Payload...)
	s.snapshots[snapshot.ID] = snapshot
	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, id string) (model.SnapshotRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return model.SnapshotRecord{}, false, err
	}
	snap, ok := s.snapshots[id]
	snap.Payload = append([]byte(nil), snap.Payload...)
	return snap, ok, nil
}

// LatestSnapshot returns the run's snapshot with the highest generation.
func (s *MemoryStore) LatestSnapshot(_ context.Context, runID string) (model.SnapshotRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return model.SnapshotRecord{}, false, err
	}
	var (
		latest model.SnapshotRecord
		found  bool
	)
	for _, snap := range s.snapshots {
		if snap.RunID != runID {
			continue
		}
		if !found || snap.Generation > latest.Generation ||
			(snap.Generation == latest.Generation && snap.CreatedAt.After(latest.CreatedAt)) {
			latest, found = snap, true
		}
	}
	latest.Payload = append([]byte(nil), latest.Payload...)
	return latest, found, nil
}

func sortRuns(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.Before(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}
