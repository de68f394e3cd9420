package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/MarcoPoloResearchLab/replay/internal/recording"
)

// MemoryStore keeps recordings in process memory. Values are deep-copied on the way in and out.
type MemoryStore struct {
	mu         sync.RWMutex
	order      []recording.RecordingID
	recordings map[recording.RecordingID]*recording.Recording
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recordings: make(map[recording.RecordingID]*recording.Recording)}
}

// List returns copies of every recording in creation order.
func (s *MemoryStore) List(ctx context.Context) ([]*recording.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*recording.Recording, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.recordings[id].Clone())
	}
	return result, nil
}

// Summaries returns metadata for every recording in creation order.
func (s *MemoryStore) Summaries(ctx context.Context) ([]recording.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]recording.Summary, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.recordings[id].Summarize())
	}
	return result, nil
}

// Load returns a copy of the recording.
func (s *MemoryStore) Load(ctx context.Context, id recording.RecordingID) (*recording.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.recordings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", recording.ErrNotFound, id)
	}
	return stored.Clone(), nil
}

// Save stores a copy of a valid recording.
func (s *MemoryStore) Save(ctx context.Context, rec *recording.Recording) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.recordings[rec.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRecording, rec.ID)
	}
	s.recordings[rec.ID] = rec.Clone()
	s.order = append(s.order, rec.ID)
	return nil
}

// Delete removes the recording.
func (s *MemoryStore) Delete(ctx context.Context, id recording.RecordingID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.recordings[id]; !exists {
		return fmt.Errorf("%w: %s", recording.ErrNotFound, id)
	}
	delete(s.recordings, id)
	for index, candidate := range s.order {
		if candidate == id {
			s.order = append(s.order[:index], s.order[index+1:]...)
			break
		}
	}
	return nil
}
