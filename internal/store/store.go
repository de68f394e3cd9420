// Package store persists sealed recordings.
package store

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/replay/internal/recording"
)

// ErrDuplicateRecording indicates that a recording with the same identifier was already saved.
var ErrDuplicateRecording = errors.New("store: recording already saved")

// Store is the persistence boundary for sealed recordings.
type Store interface {
	// List returns every recording in creation order.
	List(ctx context.Context) ([]*recording.Recording, error)
	// Summaries returns recording metadata in creation order without snapshot bodies or audio.
	Summaries(ctx context.Context) ([]recording.Summary, error)
	// Load returns the recording or recording.ErrNotFound.
	Load(ctx context.Context, id recording.RecordingID) (*recording.Recording, error)
	// Save persists a sealed recording exactly once.
	Save(ctx context.Context, rec *recording.Recording) error
	// Delete removes the recording or returns recording.ErrNotFound.
	Delete(ctx context.Context, id recording.RecordingID) error
}
