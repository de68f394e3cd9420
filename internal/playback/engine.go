// Package playback reconstructs editor content from a sealed recording at the position of a
// single authoritative clock and keeps an optional audio track in lockstep.
package playback

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MarcoPoloResearchLab/replay/internal/audio"
	"github.com/MarcoPoloResearchLab/replay/internal/clock"
	"github.com/MarcoPoloResearchLab/replay/internal/editor"
	"github.com/MarcoPoloResearchLab/replay/internal/recording"
	"go.uber.org/zap"
)

var noOpLogger = zap.NewNop()

// Config describes the dependencies of an Engine.
type Config struct {
	Clock           clock.Source
	Player          audio.Player
	EnableAudioSync bool
	// ReportError receives non-fatal audio failures. It is invoked synchronously and must not
	// call back into the engine.
	ReportError func(error)
	Logger      *zap.Logger
}

// TickResult describes the outcome of one resolve-and-apply step.
type TickResult struct {
	Position int64
	Applied  bool
	Ended    bool
}

// Engine plays one loaded recording. It is not safe for concurrent use, except IsEcho.
type Engine struct {
	now             clock.Source
	player          audio.Player
	enableAudioSync bool
	reportError     func(error)
	logger          *zap.Logger

	recording  *recording.Recording
	surface    editor.Surface
	audioReady bool
	clock      clock.Clock
	position   int64
	playing    bool
	ended      bool
	resolved   string
	applied    string
	hasApplied bool
	faulted    bool
	applying   atomic.Pointer[string]
}

// NewEngine constructs an idle engine.
func NewEngine(cfg Config) *Engine {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	reportError := cfg.ReportError
	if reportError == nil {
		reportError = func(error) {}
	}
	return &Engine{
		now:             now,
		player:          cfg.Player,
		enableAudioSync: cfg.EnableAudioSync,
		reportError:     reportError,
		logger:          logger,
	}
}

// Mount attaches the editor surface. The next apply writes unconditionally.
func (e *Engine) Mount(surface editor.Surface) {
	e.surface = surface
	e.hasApplied = false
	if e.recording != nil {
		e.apply(e.position)
	}
}

// Load replaces the playback session with rec, positioned at zero and paused.
func (e *Engine) Load(rec *recording.Recording) {
	e.Unload()
	e.recording = rec
	if e.enableAudioSync && rec.HasAudio() && e.player != nil {
		if err := e.player.Load(rec.AudioTrack); err != nil {
			e.logger.Warn("audio track unusable, playing without audio",
				zap.String("recording_id", rec.ID.String()),
				zap.Error(err))
			e.reportError(fmt.Errorf("%w: %v", recording.ErrAudioDeviceUnavailable, err))
		} else {
			e.audioReady = true
		}
	}
	e.apply(0)
}

// Unload tears down the playback session and releases the player.
func (e *Engine) Unload() {
	if e.recording == nil {
		return
	}
	if e.clock != nil {
		e.clock.Pause()
	}
	if e.audioReady {
		e.player.Unload()
	}
	e.recording = nil
	e.audioReady = false
	e.clock = nil
	e.position = 0
	e.playing = false
	e.ended = false
	e.resolved = ""
	e.hasApplied = false
}

// Play starts or resumes playback. Playing after the end restarts from zero.
func (e *Engine) Play() error {
	if e.recording == nil {
		return recording.ErrNoRecordingLoaded
	}
	if e.playing {
		return nil
	}
	if e.ended || e.position >= e.recording.Duration {
		e.position = 0
		e.ended = false
	}

	e.faulted = false
	e.clock = e.selectClock()
	e.clock.SeekTo(e.position)
	if err := e.clock.Start(); err != nil {
		e.logger.Warn("media clock failed to start, falling back to wall clock",
			zap.String("recording_id", e.recording.ID.String()),
			zap.Error(err))
		e.reportError(fmt.Errorf("%w: %v", recording.ErrAudioDeviceUnavailable, err))
		e.player.Unload()
		e.audioReady = false
		e.clock = clock.NewFreeRunning(e.now)
		e.clock.SeekTo(e.position)
		if err := e.clock.Start(); err != nil {
			return err
		}
	}
	e.playing = true
	e.Tick()
	return nil
}

func (e *Engine) selectClock() clock.Clock {
	if e.audioReady {
		return clock.NewMediaAnchored(e.player, e.now, e.recording.AudioOffset)
	}
	return clock.NewFreeRunning(e.now)
}

// Tick resolves the snapshot at the clock position and applies it if it changed.
// Reaching the duration halts playback and marks the session ended.
func (e *Engine) Tick() TickResult {
	if e.recording == nil || !e.playing {
		return TickResult{Position: e.position, Ended: e.ended}
	}
	position := e.clock.Position()
	if position < 0 {
		position = 0
	}
	e.reportMediaFault()
	if position >= e.recording.Duration {
		position = e.recording.Duration
		applied := e.apply(position)
		e.clock.Pause()
		e.position = position
		e.playing = false
		e.ended = true
		return TickResult{Position: position, Applied: applied, Ended: true}
	}
	e.position = position
	return TickResult{Position: position, Applied: e.apply(position)}
}

// reportMediaFault surfaces, once per run, a media element that failed when the track was due.
func (e *Engine) reportMediaFault() {
	anchored, ok := e.clock.(*clock.MediaAnchored)
	if !ok || e.faulted || anchored.Err() == nil {
		return
	}
	e.faulted = true
	e.logger.Warn("media clock detached, continuing on wall clock",
		zap.String("recording_id", e.recording.ID.String()),
		zap.Error(anchored.Err()))
	e.reportError(fmt.Errorf("%w: %v", recording.ErrAudioDeviceUnavailable, anchored.Err()))
}

// Pause freezes playback. It reports whether anything changed.
func (e *Engine) Pause() bool {
	if e.recording == nil || !e.playing {
		return false
	}
	position := e.clock.Position()
	if position > e.recording.Duration {
		position = e.recording.Duration
	}
	e.clock.Pause()
	e.position = position
	e.playing = false
	e.apply(position)
	return true
}

// SeekTo clamps target into [0, duration], repositions clock and audio and applies the
// resolved snapshot. Play state is unchanged.
func (e *Engine) SeekTo(target int64) (int64, error) {
	if e.recording == nil {
		return 0, recording.ErrNoRecordingLoaded
	}
	if target < 0 {
		target = 0
	}
	if target > e.recording.Duration {
		target = e.recording.Duration
	}
	switch {
	case e.clock != nil:
		e.clock.SeekTo(target)
	case e.audioReady:
		e.player.SetPosition(e.mediaPosition(target))
	}
	e.position = target
	e.ended = !e.playing && target >= e.recording.Duration
	e.apply(target)
	return target, nil
}

// Stop halts playback and rewinds to zero.
func (e *Engine) Stop() {
	if e.recording == nil {
		return
	}
	if e.clock != nil {
		e.clock.Pause()
		e.clock.SeekTo(0)
	} else if e.audioReady {
		e.player.SetPosition(0)
	}
	e.playing = false
	e.ended = false
	e.position = 0
	e.apply(0)
}

func (e *Engine) apply(position int64) bool {
	snapshot, err := recording.Resolve(e.recording.Snapshots, position)
	if err != nil {
		e.logger.Error("snapshot resolution failed", zap.Int64("position", position), zap.Error(err))
		return false
	}
	e.resolved = snapshot.Content
	if e.surface == nil {
		return false
	}
	if e.hasApplied && e.applied == snapshot.Content {
		return false
	}
	content := snapshot.Content
	e.applying.Store(&content)
	e.surface.SetContent(content)
	e.applying.Store(nil)
	e.applied = snapshot.Content
	e.hasApplied = true
	return true
}

// IsEcho reports whether content is what the engine is writing to the surface at this moment.
// Safe for concurrent use.
func (e *Engine) IsEcho(content string) bool {
	applying := e.applying.Load()
	return applying != nil && *applying == content
}

// Applied returns the content most recently written to the surface.
func (e *Engine) Applied() (string, bool) {
	return e.applied, e.hasApplied
}

func (e *Engine) mediaPosition(position int64) int64 {
	position -= e.recording.AudioOffset
	if position < 0 {
		return 0
	}
	return position
}

// Recording returns the loaded recording, or nil.
func (e *Engine) Recording() *recording.Recording {
	return e.recording
}

// Loaded reports whether a recording is loaded.
func (e *Engine) Loaded() bool {
	return e.recording != nil
}

// Playing reports whether playback is advancing.
func (e *Engine) Playing() bool {
	return e.playing
}

// Ended reports whether playback reached the duration.
func (e *Engine) Ended() bool {
	return e.ended
}

// CurrentTime returns the playback position of the last tick, pause or seek.
func (e *Engine) CurrentTime() int64 {
	return e.position
}

// Content returns the content resolved at the current position.
func (e *Engine) Content() string {
	return e.resolved
}

// AudioReady reports whether playback follows the audio element.
func (e *Engine) AudioReady() bool {
	return e.audioReady
}

// Mode returns the clock mode of the current or next run.
func (e *Engine) Mode() clock.Mode {
	if e.clock != nil {
		return e.clock.Mode()
	}
	if e.audioReady {
		return clock.ModeMediaAnchored
	}
	return clock.ModeFreeRunning
}
