package workdata

import (
	"context"
	"sync"
	"time"

	"github.com/batchtx/transcriber/internal/apperr"
)

// FakeStore is an in-memory Store used by tests across packages that
// depend on the ASR worker's idempotent upload behavior.
type FakeStore struct {
	mu   sync.Mutex
	rows map[string]*WorkData

	// Inserts counts GetOrCreate calls that actually inserted a new
	// row, letting tests assert "at most one upload per job".
	Inserts int
}

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{rows: make(map[string]*WorkData)}
}

func (f *FakeStore) GetOrCreate(ctx context.Context, jobID, file, baseDir string) (*WorkData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if wd, ok := f.rows[jobID]; ok {
		return wd, nil
	}

	now := time.Now()
	wd := &WorkData{
		ID:       jobID,
		FileName: file,
		BaseDir:  baseDir,
		TryCount: 1,
		Created:  now,
		Updated:  now,
	}
	f.rows[jobID] = wd
	f.Inserts++
	return wd, nil
}

func (f *FakeStore) SetExternalID(ctx context.Context, jobID, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	wd, ok := f.rows[jobID]
	if !ok {
		return apperr.NotFound("work_data")
	}
	wd.ExternalID = externalID
	now := time.Now()
	wd.UploadTime = &now
	wd.Updated = now
	return nil
}

func (f *FakeStore) Get(ctx context.Context, jobID string) (*WorkData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	wd, ok := f.rows[jobID]
	if !ok {
		return nil, apperr.NotFound("work_data")
	}
	return wd, nil
}

func (f *FakeStore) RecordError(ctx context.Context, jobID, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	wd, ok := f.rows[jobID]
	if !ok {
		return apperr.NotFound("work_data")
	}
	wd.ErrorMsg = errMsg
	wd.TryCount++
	wd.Updated = time.Now()
	return nil
}
