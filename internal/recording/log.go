package recording

import (
	"fmt"
	"sort"
)

// SnapshotLog is the append-only, time-ordered buffer of an in-progress recording.
// It is not safe for concurrent use; the capture controller is its only writer.
type SnapshotLog struct {
	snapshots []Snapshot
	sealed    bool
}

// NewSnapshotLog returns a log seeded with the initial snapshot at timestamp zero.
func NewSnapshotLog(initialContent string) *SnapshotLog {
	return &SnapshotLog{
		snapshots: []Snapshot{{Timestamp: 0, Content: initialContent}},
	}
}

// Append records content at the given offset. An offset equal to the last timestamp replaces
// that snapshot's content; an earlier offset is clamped to the last timestamp.
func (l *SnapshotLog) Append(timestamp int64, content string) error {
	if l.sealed {
		return ErrLogSealed
	}
	last := &l.snapshots[len(l.snapshots)-1]
	if timestamp <= last.Timestamp {
		last.Content = content
		return nil
	}
	l.snapshots = append(l.snapshots, Snapshot{Timestamp: timestamp, Content: content})
	return nil
}

// Len returns the number of snapshots in the log.
func (l *SnapshotLog) Len() int {
	return len(l.snapshots)
}

// Last returns the most recent snapshot.
func (l *SnapshotLog) Last() Snapshot {
	return l.snapshots[len(l.snapshots)-1]
}

// Sealed reports whether the log has been transferred to a recording.
func (l *SnapshotLog) Sealed() bool {
	return l.sealed
}

// Seal freezes the log and returns its snapshots. The log rejects every further append.
func (l *SnapshotLog) Seal() ([]Snapshot, error) {
	if l.sealed {
		return nil, ErrLogSealed
	}
	l.sealed = true
	count := len(l.snapshots)
	return l.snapshots[:count:count], nil
}

// Resolve returns the snapshot at the largest index whose timestamp is not after position.
// Positions before the first snapshot resolve to the first snapshot.
func Resolve(snapshots []Snapshot, position int64) (Snapshot, error) {
	index, err := ResolveIndex(snapshots, position)
	if err != nil {
		return Snapshot{}, err
	}
	return snapshots[index], nil
}

// ResolveIndex is Resolve returning the snapshot index.
func ResolveIndex(snapshots []Snapshot, position int64) (int, error) {
	if len(snapshots) == 0 {
		return 0, fmt.Errorf("%w: resolve on empty log", ErrEmptyRecording)
	}
	next := sort.Search(len(snapshots), func(index int) bool {
		return snapshots[index].Timestamp > position
	})
	if next == 0 {
		return 0, nil
	}
	return next - 1, nil
}
