// Package clock provides the single time source that drives recording and playback.
//
// Two interchangeable backends satisfy Clock: FreeRunning mirrors wall-clock elapsed time and
// MediaAnchored mirrors the playback position reported by an audio element, bridged by the
// wall clock before the track starts and after it ends. A playback run
// selects one backend at start and keeps it until the run ends.
package clock

import "time"

// Mode identifies the backend behind a Clock.
type Mode string

const (
	// ModeFreeRunning advances with the wall clock.
	ModeFreeRunning Mode = "free-running"
	// ModeMediaAnchored follows an external media position.
	ModeMediaAnchored Mode = "media-anchored"
)

// Clock produces a non-decreasing position in milliseconds relative to a reference start.
// SeekTo is the only operation that may move the position backwards.
type Clock interface {
	Start() error
	Pause()
	SeekTo(position int64)
	Position() int64
	Running() bool
	Mode() Mode
}

// Source returns the current wall-clock time.
type Source func() time.Time

func sourceOrDefault(source Source) Source {
	if source == nil {
		return time.Now
	}
	return source
}
