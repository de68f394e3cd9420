package recording

import (
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

// RecordingID represents a validated recording identifier.
type RecordingID string

// NewRecordingID validates raw input and returns a RecordingID.
func NewRecordingID(rawInput string) (RecordingID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRecordingID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidRecordingID, maxIdentifierLength)
	}
	return RecordingID(trimmed), nil
}

// String returns the underlying string identifier.
func (id RecordingID) String() string {
	return string(id)
}

// Snapshot is one captured editor state.
type Snapshot struct {
	// Timestamp is the number of milliseconds elapsed since the recording started.
	Timestamp int64
	// Content is the full editor text at that instant.
	Content string
}

// Recording is a sealed editing session.
type Recording struct {
	ID         RecordingID
	Name       string
	CreatedAt  time.Time
	Duration   int64
	Snapshots  []Snapshot
	AudioTrack []byte
	// AudioOffset is the recording time in milliseconds at which the audio track begins.
	AudioOffset int64
}

// HasAudio reports whether the recording carries an audio payload.
func (r *Recording) HasAudio() bool {
	return r != nil && len(r.AudioTrack) > 0
}

// Validate reports whether a sealed recording is well formed.
func (r *Recording) Validate() error {
	if r == nil {
		return ErrEmptyRecording
	}
	if _, err := NewRecordingID(r.ID.String()); err != nil {
		return err
	}
	if len(r.Snapshots) == 0 {
		return ErrEmptyRecording
	}
	if r.Snapshots[0].Timestamp != 0 {
		return fmt.Errorf("%w: first timestamp is %d", ErrInvalidSnapshotOrder, r.Snapshots[0].Timestamp)
	}
	for index := 1; index < len(r.Snapshots); index++ {
		if r.Snapshots[index].Timestamp <= r.Snapshots[index-1].Timestamp {
			return fmt.Errorf("%w: index %d", ErrInvalidSnapshotOrder, index)
		}
	}
	if r.Duration < r.Snapshots[len(r.Snapshots)-1].Timestamp {
		return fmt.Errorf("%w: duration %d precedes last snapshot", ErrInvalidSnapshotOrder, r.Duration)
	}
	if r.AudioOffset < 0 || r.AudioOffset > r.Duration {
		return fmt.Errorf("%w: %d not within [0, %d]", ErrInvalidAudioOffset, r.AudioOffset, r.Duration)
	}
	return nil
}

// Clone returns a deep copy so callers never share snapshot or audio backing arrays.
func (r *Recording) Clone() *Recording {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Snapshots = append([]Snapshot(nil), r.Snapshots...)
	if r.AudioTrack != nil {
		clone.AudioTrack = append([]byte(nil), r.AudioTrack...)
	}
	return &clone
}

// Summary describes a recording without its snapshot bodies or audio payload.
type Summary struct {
	ID            RecordingID
	Name          string
	CreatedAt     time.Time
	Duration      int64
	SnapshotCount int
	HasAudio      bool
}

// Summarize returns the listing view of the recording.
func (r *Recording) Summarize() Summary {
	return Summary{
		ID:            r.ID,
		Name:          r.Name,
		CreatedAt:     r.CreatedAt,
		Duration:      r.Duration,
		SnapshotCount: len(r.Snapshots),
		HasAudio:      r.HasAudio(),
	}
}
