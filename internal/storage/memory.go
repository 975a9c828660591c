// Package storage contains the in-memory video store. It mirrors the
// repository's transition semantics, including the conditional status update,
// so service and worker tests run against the same contract the database
// enforces.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dharsanguruparan/ClipScribe/internal/model"
)

// MemoryStore keeps video records in a mutex-guarded map.
type MemoryStore struct {
	mu     sync.RWMutex
	videos map[string]*model.Video
	keys   map[string]struct{}
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		videos: make(map[string]*model.Video),
		keys:   make(map[string]struct{}),
	}
}

// Create inserts a PENDING video, enforcing storage-key uniqueness.
func (m *MemoryStore) Create(_ context.Context, v *model.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[v.StorageKey]; ok {
		return model.ErrDuplicateKey
	}
	if _, ok := m.videos[v.ID]; ok {
		return model.ErrDuplicateKey
	}
	now := time.Now().UTC()
	v.Status = model.StatusPending
	v.CreatedAt = now
	v.UpdatedAt = now
	rec := *v
	m.videos[v.ID] = &rec
	m.keys[v.StorageKey] = struct{}{}
	return nil
}

// GetByIDAndOwner returns a copy of an owner's video. A record owned by
// someone else is reported exactly like a missing one.
func (m *MemoryStore) GetByIDAndOwner(_ context.Context, id, ownerID string) (*model.Video, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.videos[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, model.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// GetByID returns a copy of a video regardless of owner (worker-side read).
func (m *MemoryStore) GetByID(_ context.Context, id string) (*model.Video, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.videos[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// ListByOwner returns all of an owner's videos, newest first.
func (m *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]model.Video, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Video
	for _, rec := range m.videos {
		if rec.OwnerID == ownerID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// TransitionStatus performs the compare-and-swap transition: it succeeds only
// when the stored status equals from.
func (m *MemoryStore) TransitionStatus(_ context.Context, id string, from, to model.VideoStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.videos[id]
	if !ok {
		return model.ErrNotFound
	}
	if rec.Status != from {
		return fmt.Errorf("video is %s: %w", rec.Status, model.ErrInvalidState)
	}
	rec.Status = to
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// FinishProcessing stores the transcript and moves PROCESSING -> TRANSCRIBED.
func (m *MemoryStore) FinishProcessing(_ context.Context, id, transcript string, outputKey *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.videos[id]
	if !ok {
		return model.ErrNotFound
	}
	if rec.Status != model.StatusProcessing {
		return fmt.Errorf("video is %s: %w", rec.Status, model.ErrInvalidState)
	}
	rec.Status = model.StatusTranscribed
	rec.Transcript = transcript
	rec.OutputKey = outputKey
	rec.ErrorMessage = nil
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed records a terminal failure; terminal states are left untouched.
func (m *MemoryStore) MarkFailed(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.videos[id]
	if !ok {
		return nil
	}
	if rec.Status.Terminal() {
		return nil
	}
	rec.Status = model.StatusFailed
	rec.ErrorMessage = &reason
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes an owner's video record.
func (m *MemoryStore) Delete(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.videos[id]
	if !ok || rec.OwnerID != ownerID {
		return model.ErrNotFound
	}
	delete(m.videos, id)
	delete(m.keys, rec.StorageKey)
	return nil
}
