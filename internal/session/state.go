package session

import (
	"time"

	"github.com/MarcoPoloResearchLab/replay/internal/capture"
	"github.com/MarcoPoloResearchLab/replay/internal/clock"
	"github.com/MarcoPoloResearchLab/replay/internal/recording"
)

// Phase is the tagged session variant.
type Phase string

const (
	// PhaseIdle means nothing is recorded or loaded.
	PhaseIdle Phase = "idle"
	// PhaseRecording means a capture session is open.
	PhaseRecording Phase = "recording"
	// PhasePlayback means a recording is loaded, playing or paused.
	PhasePlayback Phase = "playback"
)

// State is the observable session snapshot.
type State struct {
	Phase              Phase
	IsRecording        bool
	IsPlaying          bool
	HasEnded           bool
	CurrentTime        int64
	RecordingStartTime time.Time
	RecordingElapsed   int64
	SnapshotCount      int
	AudioStatus        capture.AudioStatus
	ClockMode          clock.Mode
	CurrentRecording   *recording.Summary
}

func (f *Facade) stateLocked() State {
	if f.capture.Active() {
		return State{
			Phase:              PhaseRecording,
			IsRecording:        true,
			RecordingStartTime: f.capture.StartedAt(),
			RecordingElapsed:   f.capture.Elapsed(),
			SnapshotCount:      f.capture.SnapshotCount(),
			AudioStatus:        f.capture.AudioStatus(),
			ClockMode:          clock.ModeFreeRunning,
		}
	}
	state := State{Phase: PhaseIdle, AudioStatus: capture.AudioNotRequested}
	if !f.engine.Loaded() {
		return state
	}
	summary := f.engine.Recording().Summarize()
	state.Phase = PhasePlayback
	state.IsPlaying = f.engine.Playing()
	state.HasEnded = f.engine.Ended()
	state.CurrentTime = f.engine.CurrentTime()
	state.ClockMode = f.engine.Mode()
	state.CurrentRecording = &summary
	return state
}
