// Package capture turns live editor changes into a sealed recording and coordinates optional
// audio capture alongside the snapshot log.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/replay/internal/audio"
	"github.com/MarcoPoloResearchLab/replay/internal/clock"
	"github.com/MarcoPoloResearchLab/replay/internal/recording"
	"go.uber.org/zap"
)

// AudioStatus tracks the capture device independently of the snapshot log.
type AudioStatus string

const (
	// AudioNotRequested means the session records text only by choice.
	AudioNotRequested AudioStatus = "not_requested"
	// AudioPending means device acquisition is in flight.
	AudioPending AudioStatus = "pending"
	// AudioActive means chunks are being captured.
	AudioActive AudioStatus = "active"
	// AudioUnavailable means the session degraded to text-only capture.
	AudioUnavailable AudioStatus = "unavailable"
)

const (
	defaultAcquireTimeout = 10 * time.Second
	defaultNameLayout     = "2006-01-02 15:04:05"
)

var (
	errMissingIDProvider = errors.New("capture: id provider is required")
	errNoDevice          = errors.New("capture: no capture device configured")
	noOpLogger           = zap.NewNop()
)

// Config describes the dependencies of a Controller.
type Config struct {
	Clock          clock.Source
	IDProvider     recording.IDProvider
	Device         audio.Device
	AcquireTimeout time.Duration
	Logger         *zap.Logger
}

// StartOptions configures a new recording session.
type StartOptions struct {
	Name           string
	Audio          bool
	InitialContent string
}

// StopOptions configures how a session is sealed.
type StopOptions struct {
	// Name overrides the name chosen at start when non-empty.
	Name string
	// Discard seals and drops the recording instead of handing it to the store.
	Discard bool
}

// StopResult carries the sealed recording and any non-fatal audio failure.
type StopResult struct {
	Recording *recording.Recording
	Discarded bool
	AudioErr  error
}

// Controller owns one recording session at a time. It is not safe for concurrent use.
type Controller struct {
	now            clock.Source
	idProvider     recording.IDProvider
	device         audio.Device
	acquireTimeout time.Duration
	logger         *zap.Logger

	active      bool
	id          recording.RecordingID
	name        string
	createdAt   time.Time
	clock       *clock.FreeRunning
	log         *recording.SnapshotLog
	audioStatus AudioStatus
	acquisition *audio.Acquisition
	capture     audio.Capture
	audioOffset int64
}

// NewController constructs a Controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	timeout := cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = defaultAcquireTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Controller{
		now:            now,
		idProvider:     cfg.IDProvider,
		device:         cfg.Device,
		acquireTimeout: timeout,
		logger:         logger,
		audioStatus:    AudioNotRequested,
	}, nil
}

// Start opens a session and appends the initial snapshot. When audio is requested the
// returned acquisition settles asynchronously and must be passed to CompleteAcquisition.
// A nil acquisition means the session records text only.
func (c *Controller) Start(ctx context.Context, opts StartOptions) (*audio.Acquisition, error) {
	if c.active {
		return nil, recording.ErrAlreadyRecording
	}
	rawID, err := c.idProvider.NewID()
	if err != nil {
		return nil, fmt.Errorf("capture: id generation failed: %w", err)
	}
	id, err := recording.NewRecordingID(rawID)
	if err != nil {
		return nil, err
	}

	sessionClock := clock.NewFreeRunning(c.now)
	if err := sessionClock.Start(); err != nil {
		return nil, err
	}

	c.active = true
	c.id = id
	c.createdAt = time.UnixMilli(sessionClock.StartedAt().UnixMilli()).UTC()
	c.name = strings.TrimSpace(opts.Name)
	if c.name == "" {
		c.name = "Recording " + c.createdAt.Format(defaultNameLayout)
	}
	c.clock = sessionClock
	c.log = recording.NewSnapshotLog(opts.InitialContent)
	c.capture = nil
	c.acquisition = nil
	c.audioOffset = 0
	c.audioStatus = AudioNotRequested

	if !opts.Audio {
		return nil, nil
	}
	c.audioStatus = AudioPending
	if c.device == nil {
		c.acquisition = audio.Settled(audio.AcquisitionResult{Outcome: audio.OutcomeFailed, Err: errNoDevice})
	} else {
		c.acquisition = audio.Acquire(ctx, c.device, c.acquireTimeout)
	}
	return c.acquisition, nil
}

// CompleteAcquisition applies a settled acquisition. Results for a superseded session are
// released and ignored. Denial and failure degrade the session and return an error wrapping
// ErrAudioDeviceUnavailable; the recording continues.
func (c *Controller) CompleteAcquisition(acquisition *audio.Acquisition) error {
	result := acquisition.Result()
	if !c.active || acquisition != c.acquisition {
		if result.Capture != nil {
			result.Capture.Release()
		}
		return nil
	}
	c.acquisition = nil

	if result.Outcome != audio.OutcomeGranted {
		c.audioStatus = AudioUnavailable
		c.logger.Warn("audio acquisition unsuccessful",
			zap.String("recording_id", c.id.String()),
			zap.String("outcome", string(result.Outcome)),
			zap.Error(result.Err))
		return fmt.Errorf("%w: %s: %v", recording.ErrAudioDeviceUnavailable, result.Outcome, result.Err)
	}

	if err := result.Capture.Start(); err != nil {
		result.Capture.Release()
		c.audioStatus = AudioUnavailable
		c.logger.Warn("audio capture start failed", zap.String("recording_id", c.id.String()), zap.Error(err))
		return fmt.Errorf("%w: start: %v", recording.ErrAudioDeviceUnavailable, err)
	}
	c.capture = result.Capture
	c.audioOffset = c.clock.Position()
	c.audioStatus = AudioActive
	c.logger.Debug("audio capture started",
		zap.String("recording_id", c.id.String()),
		zap.Int64("audio_offset_ms", c.audioOffset))
	return nil
}

// Change appends the editor content at the current offset.
func (c *Controller) Change(content string) error {
	if !c.active {
		return recording.ErrNotRecording
	}
	return c.log.Append(c.clock.Position(), content)
}

// Stop seals the session. The capture device is released on every path.
func (c *Controller) Stop(opts StopOptions) (StopResult, error) {
	if !c.active {
		return StopResult{}, recording.ErrNotRecording
	}
	defer c.reset()

	stopAt := c.clock.Position()
	audioTrack, audioErr := c.finishAudio()

	snapshots, err := c.log.Seal()
	if err != nil {
		return StopResult{}, err
	}
	duration := snapshots[len(snapshots)-1].Timestamp
	if stopAt > duration {
		duration = stopAt
	}
	name := c.name
	if trimmed := strings.TrimSpace(opts.Name); trimmed != "" {
		name = trimmed
	}

	sealed := &recording.Recording{
		ID:         c.id,
		Name:       name,
		CreatedAt:  c.createdAt,
		Duration:   duration,
		Snapshots:  snapshots,
		AudioTrack: audioTrack,
	}
	if audioTrack != nil {
		sealed.AudioOffset = c.audioOffset
	}
	return StopResult{Recording: sealed, Discarded: opts.Discard, AudioErr: audioErr}, nil
}

// Abort drops the session without sealing, releasing any device.
func (c *Controller) Abort() {
	if !c.active {
		return
	}
	if c.capture != nil {
		_, _ = c.capture.Stop()
	}
	c.reset()
}

func (c *Controller) finishAudio() ([]byte, error) {
	if c.acquisition != nil {
		c.acquisition.Cancel()
		return nil, nil
	}
	if c.capture == nil {
		return nil, nil
	}
	payload, err := c.capture.Stop()
	if err != nil {
		c.logger.Warn("audio capture interrupted",
			zap.String("recording_id", c.id.String()),
			zap.Int("buffered_bytes", len(payload)),
			zap.Error(err))
		if !errors.Is(err, recording.ErrAudioCaptureInterrupted) {
			err = fmt.Errorf("%w: %v", recording.ErrAudioCaptureInterrupted, err)
		}
	}
	if len(payload) == 0 {
		payload = nil
	}
	return payload, err
}

func (c *Controller) reset() {
	if c.capture != nil {
		c.capture.Release()
	}
	if c.acquisition != nil {
		c.acquisition.Cancel()
	}
	c.active = false
	c.capture = nil
	c.acquisition = nil
	c.clock = nil
	c.log = nil
	c.audioOffset = 0
	c.id = ""
	c.name = ""
	c.audioStatus = AudioNotRequested
}

// Active reports whether a session is open.
func (c *Controller) Active() bool {
	return c.active
}

// RecordingID returns the identifier of the open session.
func (c *Controller) RecordingID() recording.RecordingID {
	return c.id
}

// StartedAt returns the wall-clock start of the open session.
func (c *Controller) StartedAt() time.Time {
	if !c.active {
		return time.Time{}
	}
	return c.clock.StartedAt()
}

// Elapsed returns milliseconds since the session started.
func (c *Controller) Elapsed() int64 {
	if !c.active {
		return 0
	}
	return c.clock.Position()
}

// SnapshotCount returns the number of snapshots captured so far.
func (c *Controller) SnapshotCount() int {
	if !c.active {
		return 0
	}
	return c.log.Len()
}

// AudioOffset returns the session offset at which audio capture started.
func (c *Controller) AudioOffset() int64 {
	if !c.active || c.capture == nil {
		return 0
	}
	return c.audioOffset
}

// AudioStatus returns the capture-device sub-state.
func (c *Controller) AudioStatus() AudioStatus {
	return c.audioStatus
}
