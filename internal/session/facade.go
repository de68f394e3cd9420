// Package session exposes the single entry point that owns the recording and playback state
// machine, serializing user operations, clock ticks and device callbacks.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/replay/internal/audio"
	"github.com/MarcoPoloResearchLab/replay/internal/capture"
	"github.com/MarcoPoloResearchLab/replay/internal/clock"
	"github.com/MarcoPoloResearchLab/replay/internal/editor"
	"github.com/MarcoPoloResearchLab/replay/internal/playback"
	"github.com/MarcoPoloResearchLab/replay/internal/recording"
	"github.com/MarcoPoloResearchLab/replay/internal/store"
	"go.uber.org/zap"
)

var noOpLogger = zap.NewNop()

// Options tunes playback behaviour.
type Options struct {
	// PauseOnUserInteraction pauses playback when the user edits during playback.
	PauseOnUserInteraction bool
	// EnableAudioSync anchors playback to the audio track when one is present.
	EnableAudioSync bool
	// TickInterval is the playback poll interval, clamped to clock.MaxTickInterval.
	TickInterval time.Duration
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		PauseOnUserInteraction: true,
		EnableAudioSync:        true,
		TickInterval:           clock.DefaultTickInterval,
	}
}

// Config describes the dependencies of a Facade.
type Config struct {
	Store          store.Store
	IDProvider     recording.IDProvider
	Device         audio.Device
	Player         audio.Player
	Scheduler      clock.Scheduler
	Clock          clock.Source
	AcquireTimeout time.Duration
	Options        Options
	ErrorHandler   ErrorHandler
	Observer       Observer
	Logger         *zap.Logger
}

// StartOptions configures StartRecording.
type StartOptions struct {
	Name  string
	Audio bool
}

// StopOptions configures StopRecording.
type StopOptions = capture.StopOptions

// Facade coordinates the capture controller, the playback engine and the store.
type Facade struct {
	mu           sync.Mutex
	store        store.Store
	capture      *capture.Controller
	engine       *playback.Engine
	scheduler    clock.Scheduler
	tickInterval time.Duration
	options      Options
	errorHandler ErrorHandler
	observer     Observer
	logger       *zap.Logger

	surface     editor.Surface
	generation  uint64
	cancelTicks func()
	pending     []Event

	positionSignal  chan struct{}
	unsubscribe     func()
	closed          chan struct{}
	closeOnce       sync.Once
	pumpDone        chan struct{}
	acquisitionWait sync.WaitGroup
}

// NewFacade constructs a Facade and starts its position pump.
func NewFacade(cfg Config) (*Facade, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opNew, "missing_id_provider", errMissingIDProvider)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	scheduler := cfg.Scheduler
	if scheduler == nil {
		scheduler = clock.NewTickerScheduler()
	}

	controller, err := capture.NewController(capture.Config{
		Clock:          cfg.Clock,
		IDProvider:     cfg.IDProvider,
		Device:         cfg.Device,
		AcquireTimeout: cfg.AcquireTimeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, newServiceError(opNew, "capture_init_failed", err)
	}

	facade := &Facade{
		store:          cfg.Store,
		capture:        controller,
		scheduler:      scheduler,
		tickInterval:   clock.NormalizeInterval(cfg.Options.TickInterval),
		options:        cfg.Options,
		errorHandler:   cfg.ErrorHandler,
		observer:       cfg.Observer,
		logger:         logger,
		positionSignal: make(chan struct{}, 1),
		closed:         make(chan struct{}),
		pumpDone:       make(chan struct{}),
	}
	facade.engine = playback.NewEngine(playback.Config{
		Clock:           cfg.Clock,
		Player:          cfg.Player,
		EnableAudioSync: cfg.Options.EnableAudioSync,
		ReportError: func(err error) {
			facade.reportLocked(opPlayback, err)
		},
		Logger: logger,
	})
	if cfg.Player != nil {
		facade.unsubscribe = cfg.Player.OnPositionChange(facade.signalPosition)
	}
	go facade.pumpPositions()
	return facade, nil
}

// Close stops ticking, aborts any recording without saving and releases devices.
func (f *Facade) Close() {
	f.closeOnce.Do(func() {
		close(f.closed)
		<-f.pumpDone
		if f.unsubscribe != nil {
			f.unsubscribe()
		}
		f.mu.Lock()
		f.stopTicksLocked()
		f.capture.Abort()
		f.engine.Unload()
		f.mu.Unlock()
		f.acquisitionWait.Wait()
	})
}

func (f *Facade) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// signalPosition may be invoked synchronously from inside player calls made under the lock.
func (f *Facade) signalPosition(int64) {
	select {
	case f.positionSignal <- struct{}{}:
	default:
	}
}

func (f *Facade) pumpPositions() {
	defer close(f.pumpDone)
	for {
		select {
		case <-f.closed:
			return
		case <-f.positionSignal:
			f.mu.Lock()
			if f.engine.Playing() && f.engine.Mode() == clock.ModeMediaAnchored {
				f.tickLocked()
			}
			f.unlock()
		}
	}
}

// StartRecording opens a recording session. A loaded but paused recording is unloaded first.
func (f *Facade) StartRecording(ctx context.Context, opts StartOptions) error {
	f.mu.Lock()
	defer f.unlock()
	if f.isClosed() {
		return newServiceError(opStartRecording, "closed", errClosed)
	}
	if f.capture.Active() || f.engine.Playing() {
		return newServiceError(opStartRecording, "already_recording", recording.ErrAlreadyRecording)
	}
	if f.engine.Loaded() {
		f.stopTicksLocked()
		f.engine.Unload()
	}

	initial := ""
	if f.surface != nil {
		initial = f.surface.Content()
	}
	acquisition, err := f.capture.Start(context.WithoutCancel(ctx), capture.StartOptions{
		Name:           opts.Name,
		Audio:          opts.Audio,
		InitialContent: initial,
	})
	if err != nil {
		f.logError(opStartRecording, "capture_start_failed", err)
		return wrap(opStartRecording, err, "capture_start_failed")
	}
	if acquisition != nil {
		f.acquisitionWait.Add(1)
		go f.awaitAcquisition(acquisition)
	}
	f.logger.Info("recording started",
		zap.String("recording_id", f.capture.RecordingID().String()),
		zap.Bool("audio_requested", opts.Audio))
	f.publishStateLocked()
	return nil
}

func (f *Facade) awaitAcquisition(acquisition *audio.Acquisition) {
	defer f.acquisitionWait.Done()
	<-acquisition.Done()
	f.mu.Lock()
	defer f.unlock()
	if err := f.capture.CompleteAcquisition(acquisition); err != nil {
		f.reportLocked(opAcquireAudio, err)
	}
	f.publishStateLocked()
}

// StopRecording seals the session and saves it unless discarded. The session returns to idle on
// every path. A store failure is returned together with the sealed recording.
func (f *Facade) StopRecording(ctx context.Context, opts StopOptions) (*recording.Recording, error) {
	f.mu.Lock()
	defer f.unlock()
	if !f.capture.Active() {
		return nil, newServiceError(opStopRecording, "not_recording", recording.ErrNotRecording)
	}
	result, err := f.capture.Stop(opts)
	f.publishStateLocked()
	if err != nil {
		f.logError(opStopRecording, "seal_failed", err)
		return nil, wrap(opStopRecording, err, "seal_failed")
	}
	if result.AudioErr != nil {
		f.reportLocked(opStopRecording, result.AudioErr)
	}
	sealed := result.Recording
	if result.Discarded {
		f.logger.Info("recording discarded", zap.String("recording_id", sealed.ID.String()))
		return sealed, nil
	}
	if err := f.store.Save(ctx, sealed); err != nil {
		f.logError(opStopRecording, "save_failed", err, zap.String("recording_id", sealed.ID.String()))
		serviceErr := wrap(opStopRecording, err, "save_failed")
		f.pending = append(f.pending, Event{Type: EventError, Err: serviceErr})
		return sealed, serviceErr
	}
	f.logger.Info("recording saved",
		zap.String("recording_id", sealed.ID.String()),
		zap.Int("snapshot_count", len(sealed.Snapshots)),
		zap.Int64("duration_ms", sealed.Duration),
		zap.Bool("has_audio", sealed.HasAudio()))
	return sealed, nil
}

// OnEditorMount attaches the editor surface used for initial content and playback output.
func (f *Facade) OnEditorMount(surface editor.Surface) {
	f.mu.Lock()
	defer f.unlock()
	f.surface = surface
	previous := f.engine.Content()
	f.engine.Mount(surface)
	f.publishContentIfChangedLocked(previous)
}

// OnEditorChange records a user edit while recording, or pauses playback when configured.
// Echoes of content written by playback are ignored.
func (f *Facade) OnEditorChange(content string) {
	// A surface may echo SetContent synchronously while the lock is held by the tick.
	if f.engine.IsEcho(content) {
		return
	}
	f.mu.Lock()
	defer f.unlock()
	if f.capture.Active() {
		if err := f.capture.Change(content); err != nil {
			f.reportLocked(opEditorChange, err)
		}
		return
	}
	if applied, ok := f.engine.Applied(); ok && applied == content {
		return
	}
	if f.options.PauseOnUserInteraction && f.engine.Playing() {
		f.stopTicksLocked()
		f.engine.Pause()
		f.publishStateLocked()
	}
}

// LoadRecording makes rec the playback session, positioned at zero and paused.
func (f *Facade) LoadRecording(rec *recording.Recording) error {
	f.mu.Lock()
	defer f.unlock()
	return f.loadLocked(rec)
}

// LoadRecordingByID loads a stored recording.
func (f *Facade) LoadRecordingByID(ctx context.Context, id recording.RecordingID) error {
	f.mu.Lock()
	recordingActive := f.capture.Active()
	f.mu.Unlock()
	if recordingActive {
		return newServiceError(opLoadRecording, "already_recording", recording.ErrAlreadyRecording)
	}
	rec, err := f.store.Load(ctx, id)
	if err != nil {
		return wrap(opLoadRecording, err, "store_load_failed")
	}
	f.mu.Lock()
	defer f.unlock()
	return f.loadLocked(rec)
}

func (f *Facade) loadLocked(rec *recording.Recording) error {
	if f.capture.Active() {
		return newServiceError(opLoadRecording, "already_recording", recording.ErrAlreadyRecording)
	}
	if err := rec.Validate(); err != nil {
		return wrap(opLoadRecording, err, "invalid_recording")
	}
	f.stopTicksLocked()
	previous := f.engine.Content()
	f.engine.Load(rec.Clone())
	f.publishContentIfChangedLocked(previous)
	f.publishStateLocked()
	return nil
}

// Play starts or resumes playback; after the end it restarts from zero.
func (f *Facade) Play() error {
	f.mu.Lock()
	defer f.unlock()
	if f.capture.Active() {
		return newServiceError(opPlay, "already_recording", recording.ErrAlreadyRecording)
	}
	if f.engine.Playing() {
		return nil
	}
	previous := f.engine.Content()
	if err := f.engine.Play(); err != nil {
		return wrap(opPlay, err, "play_failed")
	}
	f.publishContentIfChangedLocked(previous)
	if f.engine.Playing() {
		f.startTicksLocked()
	}
	f.publishStateLocked()
	return nil
}

// Pause freezes playback. It is a no-op unless playing.
func (f *Facade) Pause() {
	f.mu.Lock()
	defer f.unlock()
	f.stopTicksLocked()
	if f.engine.Pause() {
		f.publishStateLocked()
	}
}

// Stop halts playback and rewinds to zero.
func (f *Facade) Stop() {
	f.mu.Lock()
	defer f.unlock()
	if !f.engine.Loaded() {
		return
	}
	f.stopTicksLocked()
	previous := f.engine.Content()
	f.engine.Stop()
	f.publishContentIfChangedLocked(previous)
	f.publishStateLocked()
}

// SeekTo moves playback to the clamped position and applies the resolved snapshot immediately.
func (f *Facade) SeekTo(position int64) (int64, error) {
	f.mu.Lock()
	defer f.unlock()
	wasPlaying := f.engine.Playing()
	f.stopTicksLocked()
	previous := f.engine.Content()
	target, err := f.engine.SeekTo(position)
	if err != nil {
		return 0, wrap(opSeek, err, "seek_failed")
	}
	f.publishContentIfChangedLocked(previous)
	if wasPlaying {
		f.startTicksLocked()
	}
	f.publishStateLocked()
	return target, nil
}

// DeleteRecording removes a stored recording. Deleting the loaded recording resets playback.
func (f *Facade) DeleteRecording(ctx context.Context, id recording.RecordingID) error {
	f.mu.Lock()
	defer f.unlock()
	if f.capture.Active() && f.capture.RecordingID() == id {
		return newServiceError(opDeleteRecord, "cannot_delete_active", recording.ErrCannotDeleteActive)
	}
	if err := f.store.Delete(ctx, id); err != nil {
		return wrap(opDeleteRecord, err, "store_delete_failed")
	}
	if f.engine.Loaded() && f.engine.Recording().ID == id {
		f.stopTicksLocked()
		f.engine.Unload()
		f.publishStateLocked()
	}
	f.logger.Info("recording deleted", zap.String("recording_id", id.String()))
	return nil
}

// Recordings lists stored recording summaries in creation order.
func (f *Facade) Recordings(ctx context.Context) ([]recording.Summary, error) {
	summaries, err := f.store.Summaries(ctx)
	if err != nil {
		return nil, wrap(opListRecordings, err, "store_list_failed")
	}
	return summaries, nil
}

// Recording loads one stored recording.
func (f *Facade) Recording(ctx context.Context, id recording.RecordingID) (*recording.Recording, error) {
	rec, err := f.store.Load(ctx, id)
	if err != nil {
		return nil, wrap(opLoadRecording, err, "store_load_failed")
	}
	return rec, nil
}

// State returns the observable session snapshot.
func (f *Facade) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked()
}

// startTicksLocked polls the engine in every clock mode. Media position reports tick in
// addition, but cannot cover the wall-clock stretches before and after the track.
func (f *Facade) startTicksLocked() {
	f.generation++
	generation := f.generation
	f.cancelTicks = f.scheduler.Every(f.tickInterval, func() {
		f.scheduledTick(generation)
	})
}

func (f *Facade) stopTicksLocked() {
	f.generation++
	if f.cancelTicks != nil {
		f.cancelTicks()
		f.cancelTicks = nil
	}
}

func (f *Facade) scheduledTick(generation uint64) {
	f.mu.Lock()
	defer f.unlock()
	if generation != f.generation {
		return
	}
	f.tickLocked()
}

func (f *Facade) tickLocked() {
	result := f.engine.Tick()
	if result.Applied {
		f.pending = append(f.pending, Event{Type: EventContentApplied, Content: f.engine.Content()})
	}
	if result.Ended {
		f.stopTicksLocked()
		f.publishStateLocked()
	}
}

func (f *Facade) publishContentIfChangedLocked(previous string) {
	if f.engine.Loaded() && f.engine.Content() != previous {
		f.pending = append(f.pending, Event{Type: EventContentApplied, Content: f.engine.Content()})
	}
}

func (f *Facade) publishStateLocked() {
	f.pending = append(f.pending, Event{Type: EventStateChanged, State: f.stateLocked()})
}

func (f *Facade) reportLocked(operation string, err error) {
	f.logger.Warn("session degraded",
		zap.String("operation", operation),
		zap.String("reason", reasonFor(err, "unexpected")),
		zap.Error(err))
	f.pending = append(f.pending, Event{Type: EventError, Err: wrap(operation, err, "unexpected")})
}

// unlock releases the session lock and then delivers queued events, so handlers may call back
// into the facade.
func (f *Facade) unlock() {
	events := f.pending
	f.pending = nil
	f.mu.Unlock()
	for _, event := range events {
		if event.Type == EventError && f.errorHandler != nil {
			f.errorHandler(event.Err)
		}
		if f.observer != nil {
			f.observer(event)
		}
	}
}

func (f *Facade) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	f.logger.Error("session error", attrs...)
}
