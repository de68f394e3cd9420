package session

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/replay/internal/audio"
	"github.com/MarcoPoloResearchLab/replay/internal/capture"
	"github.com/MarcoPoloResearchLab/replay/internal/clock"
	"github.com/MarcoPoloResearchLab/replay/internal/clock/clocktest"
	"github.com/MarcoPoloResearchLab/replay/internal/editor"
	"github.com/MarcoPoloResearchLab/replay/internal/recording"
	"github.com/MarcoPoloResearchLab/replay/internal/store"
)

type sequenceIDProvider struct {
	mu   sync.Mutex
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return "rec-" + string(rune('a'+p.next-1)), nil
}

type failingSaveStore struct {
	*store.MemoryStore
	err error
}

func (s failingSaveStore) Save(context.Context, *recording.Recording) error {
	return s.err
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
	errs   []error
}

func (r *eventRecorder) observe(event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *eventRecorder) handle(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *eventRecorder) reported() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *eventRecorder) contents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var contents []string
	for _, event := range r.events {
		if event.Type == EventContentApplied {
			contents = append(contents, event.Content)
		}
	}
	return contents
}

type testHarness struct {
	facade    *Facade
	source    *clocktest.ManualSource
	scheduler *clocktest.ManualScheduler
	store     *store.MemoryStore
	device    *audio.RemoteDevice
	player    *audio.RemotePlayer
	buffer    *editor.Buffer
	recorder  *eventRecorder
}

type harnessOption func(*Config)

func newHarness(t *testing.T, options ...harnessOption) *testHarness {
	t.Helper()
	harness := &testHarness{
		source:    clocktest.NewManualSource(time.UnixMilli(1700000000000)),
		scheduler: clocktest.NewManualScheduler(),
		store:     store.NewMemoryStore(),
		device:    audio.NewRemoteDevice(true),
		player:    audio.NewRemotePlayer(),
		buffer:    editor.NewBuffer(""),
		recorder:  &eventRecorder{},
	}
	cfg := Config{
		Store:        harness.store,
		IDProvider:   &sequenceIDProvider{},
		Device:       harness.device,
		Player:       harness.player,
		Scheduler:    harness.scheduler,
		Clock:        harness.source.Now,
		Options:      DefaultOptions(),
		ErrorHandler: harness.recorder.handle,
		Observer:     harness.recorder.observe,
	}
	for _, option := range options {
		option(&cfg)
	}
	facade, err := NewFacade(cfg)
	if err != nil {
		t.Fatalf("failed to construct facade: %v", err)
	}
	t.Cleanup(facade.Close)
	harness.facade = facade
	harness.buffer.OnUserChange(facade.OnEditorChange)
	facade.OnEditorMount(harness.buffer)
	return harness
}

func (h *testHarness) recordScenario(t *testing.T) *recording.Recording {
	t.Helper()
	if err := h.facade.StartRecording(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	h.source.Advance(500 * time.Millisecond)
	h.buffer.Edit("a")
	h.source.Advance(700 * time.Millisecond)
	h.buffer.Edit("ab")
	h.source.Advance(300 * time.Millisecond)
	sealed, err := h.facade.StopRecording(context.Background(), StopOptions{})
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	return sealed
}

func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}

func requireCode(t *testing.T, err error, code string, sentinel error) {
	t.Helper()
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected ServiceError, got %T %v", err, err)
	}
	if serviceErr.Code() != code {
		t.Fatalf("expected code %s, got %s", code, serviceErr.Code())
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected %v, got %v", sentinel, err)
	}
}

func TestFacadeRecordsAndSavesTextSession(t *testing.T) {
	harness := newHarness(t)
	sealed := harness.recordScenario(t)

	if sealed.Duration != 1500 || len(sealed.Snapshots) != 3 {
		t.Fatalf("unexpected recording duration=%d snapshots=%d", sealed.Duration, len(sealed.Snapshots))
	}
	expected := []recording.Snapshot{{Timestamp: 0, Content: ""}, {Timestamp: 500, Content: "a"}, {Timestamp: 1200, Content: "ab"}}
	for index, snapshot := range expected {
		if sealed.Snapshots[index] != snapshot {
			t.Fatalf("snapshot %d: expected %+v, got %+v", index, snapshot, sealed.Snapshots[index])
		}
	}
	stored, err := harness.store.Load(context.Background(), sealed.ID)
	if err != nil {
		t.Fatalf("expected recording to be saved: %v", err)
	}
	if stored.Name != sealed.Name {
		t.Fatalf("expected stored name %q, got %q", sealed.Name, stored.Name)
	}
	if state := harness.facade.State(); state.Phase != PhaseIdle || state.IsRecording {
		t.Fatalf("expected idle state after stop, got %+v", state)
	}
}

func TestFacadeDiscardSkipsStore(t *testing.T) {
	harness := newHarness(t)
	if err := harness.facade.StartRecording(context.Background(), StartOptions{Name: "draft"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	sealed, err := harness.facade.StopRecording(context.Background(), StopOptions{Discard: true})
	if err != nil || sealed == nil {
		t.Fatalf("discard failed: %v", err)
	}
	summaries, err := harness.facade.Recordings(context.Background())
	if err != nil || len(summaries) != 0 {
		t.Fatalf("expected no stored recordings, got %d %v", len(summaries), err)
	}
}

func TestFacadeEnforcesMutualExclusion(t *testing.T) {
	harness := newHarness(t)
	ctx := context.Background()
	sealed := harness.recordScenario(t)

	if err := harness.facade.StartRecording(ctx, StartOptions{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	requireCode(t, harness.facade.StartRecording(ctx, StartOptions{}), "session.start_recording.already_recording", recording.ErrAlreadyRecording)
	requireCode(t, harness.facade.LoadRecording(sealed), "session.load_recording.already_recording", recording.ErrAlreadyRecording)
	requireCode(t, harness.facade.Play(), "session.play.already_recording", recording.ErrAlreadyRecording)
	if _, err := harness.facade.StopRecording(ctx, StopOptions{Discard: true}); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	_, err := harness.facade.StopRecording(ctx, StopOptions{})
	requireCode(t, err, "session.stop_recording.not_recording", recording.ErrNotRecording)

	if err := harness.facade.LoadRecording(sealed); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := harness.facade.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	requireCode(t, harness.facade.StartRecording(ctx, StartOptions{}), "session.start_recording.already_recording", recording.ErrAlreadyRecording)

	harness.facade.Pause()
	if err := harness.facade.StartRecording(ctx, StartOptions{}); err != nil {
		t.Fatalf("expected start to tear down paused playback: %v", err)
	}
	state := harness.facade.State()
	if state.Phase != PhaseRecording || state.CurrentRecording != nil {
		t.Fatalf("expected recording phase without loaded recording, got %+v", state)
	}
}

func TestFacadePlaybackTicksUntilEndAndRestarts(t *testing.T) {
	harness := newHarness(t)
	sealed := harness.recordScenario(t)
	if err := harness.facade.LoadRecording(sealed); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := harness.facade.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	if harness.scheduler.Active() != 1 {
		t.Fatalf("expected one scheduled ticker, got %d", harness.scheduler.Active())
	}

	harness.source.Advance(600 * time.Millisecond)
	harness.scheduler.Fire()
	if harness.buffer.Content() != "a" {
		t.Fatalf("expected %q, got %q", "a", harness.buffer.Content())
	}
	harness.source.Advance(5 * time.Second)
	harness.scheduler.Fire()
	state := harness.facade.State()
	if state.IsPlaying || !state.HasEnded || state.CurrentTime != 1500 {
		t.Fatalf("expected ended state at duration, got %+v", state)
	}
	if harness.scheduler.Active() != 0 {
		t.Fatalf("expected ticker to be cancelled at the end")
	}
	if harness.buffer.Content() != "ab" {
		t.Fatalf("expected final content, got %q", harness.buffer.Content())
	}

	if err := harness.facade.Play(); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	state = harness.facade.State()
	if !state.IsPlaying || state.HasEnded || state.CurrentTime != 0 || harness.buffer.Content() != "" {
		t.Fatalf("expected restart from zero, got %+v content=%q", state, harness.buffer.Content())
	}

	contents := harness.recorder.contents()
	if len(contents) == 0 {
		t.Fatalf("expected content-applied events")
	}
	for index := 1; index < len(contents); index++ {
		if contents[index] == contents[index-1] {
			t.Fatalf("expected no duplicate consecutive content events, got %v", contents)
		}
	}
}

type leakyScheduler struct {
	mu        sync.Mutex
	callbacks []func()
}

func (s *leakyScheduler) Every(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	s.callbacks = append(s.callbacks, fn)
	s.mu.Unlock()
	return func() {}
}

func (s *leakyScheduler) fireAll() {
	s.mu.Lock()
	callbacks := append([]func(){}, s.callbacks...)
	s.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

func TestFacadeDiscardsTicksFromCancelledRun(t *testing.T) {
	scheduler := &leakyScheduler{}
	harness := newHarness(t, func(cfg *Config) {
		cfg.Scheduler = scheduler
	})
	sealed := harness.recordScenario(t)
	if err := harness.facade.LoadRecording(sealed); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := harness.facade.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	harness.source.Advance(300 * time.Millisecond)
	harness.facade.Pause()

	harness.source.Advance(time.Second)
	scheduler.fireAll()
	state := harness.facade.State()
	if state.CurrentTime != 300 || harness.buffer.Content() != "" {
		t.Fatalf("expected stale tick to be discarded, got time=%d content=%q", state.CurrentTime, harness.buffer.Content())
	}
}

func TestFacadeSeekAppliesResolvedSnapshot(t *testing.T) {
	harness := newHarness(t)
	sealed := harness.recordScenario(t)
	if err := harness.facade.LoadRecording(sealed); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	position, err := harness.facade.SeekTo(900)
	if err != nil || position != 900 {
		t.Fatalf("seek failed: %d %v", position, err)
	}
	if harness.buffer.Content() != "a" || harness.facade.State().IsPlaying {
		t.Fatalf("expected paused content %q, got %q", "a", harness.buffer.Content())
	}

	for target := int64(0); target <= sealed.Duration; target += 100 {
		if _, err := harness.facade.SeekTo(target); err != nil {
			t.Fatalf("seek %d failed: %v", target, err)
		}
		expected, err := recording.Resolve(sealed.Snapshots, target)
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if harness.buffer.Content() != expected.Content {
			t.Fatalf("position %d: expected %q, got %q", target, expected.Content, harness.buffer.Content())
		}
	}

	harness.facade.Stop()
	if state := harness.facade.State(); state.CurrentTime != 0 || harness.buffer.Content() != "" {
		t.Fatalf("expected stop to rewind, got %+v", state)
	}
}

func TestFacadePausesOnUserInteraction(t *testing.T) {
	harness := newHarness(t)
	sealed := harness.recordScenario(t)
	if err := harness.facade.LoadRecording(sealed); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := harness.facade.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	harness.source.Advance(600 * time.Millisecond)
	harness.scheduler.Fire()
	harness.buffer.Edit("user typing")

	state := harness.facade.State()
	if state.IsPlaying {
		t.Fatalf("expected user edit to pause playback")
	}
	if state.CurrentTime != 600 {
		t.Fatalf("expected pause at 600, got %d", state.CurrentTime)
	}
}

func TestFacadeKeepsPlayingWhenUserInteractionPauseDisabled(t *testing.T) {
	harness := newHarness(t, func(cfg *Config) {
		cfg.Options.PauseOnUserInteraction = false
	})
	sealed := harness.recordScenario(t)
	if err := harness.facade.LoadRecording(sealed); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := harness.facade.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	harness.buffer.Edit("user typing")
	if !harness.facade.State().IsPlaying {
		t.Fatalf("expected playback to continue")
	}
}

func TestFacadePlayAndPauseAreIdempotent(t *testing.T) {
	harness := newHarness(t)
	sealed := harness.recordScenario(t)
	if err := harness.facade.LoadRecording(sealed); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := harness.facade.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	harness.source.Advance(200 * time.Millisecond)
	harness.scheduler.Fire()

	before := harness.facade.State()
	events := harness.recorder.count()
	if err := harness.facade.Play(); err != nil {
		t.Fatalf("second play failed: %v", err)
	}
	after := harness.facade.State()
	if harness.recorder.count() != events {
		t.Fatalf("expected no events from play while playing, got %d new", harness.recorder.count()-events)
	}
	if after.CurrentTime != before.CurrentTime || !after.IsPlaying || after.HasEnded {
		t.Fatalf("expected unchanged state, before=%+v after=%+v", before, after)
	}
	if harness.scheduler.Active() != 1 {
		t.Fatalf("expected the original ticker only, got %d", harness.scheduler.Active())
	}

	harness.facade.Pause()
	paused := harness.facade.State()
	events = harness.recorder.count()
	harness.facade.Pause()
	if harness.recorder.count() != events {
		t.Fatalf("expected no events from pause while paused, got %d new", harness.recorder.count()-events)
	}
	again := harness.facade.State()
	if again.CurrentTime != paused.CurrentTime || again.IsPlaying || again.Phase != paused.Phase {
		t.Fatalf("expected unchanged paused state, first=%+v second=%+v", paused, again)
	}
	if harness.scheduler.Active() != 0 {
		t.Fatalf("expected no ticker while paused")
	}
}

type gateSurface struct {
	mu      sync.Mutex
	content string
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (s *gateSurface) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

func (s *gateSurface) SetContent(content string) {
	s.mu.Lock()
	s.content = content
	armed := s.armed
	s.armed = false
	s.mu.Unlock()
	if armed {
		close(s.entered)
		<-s.release
	}
}

func (s *gateSurface) arm() {
	s.mu.Lock()
	s.armed = true
	s.mu.Unlock()
}

func TestFacadeKeepsUserEditArrivingDuringApply(t *testing.T) {
	harness := newHarness(t)
	sealed := harness.recordScenario(t)
	surface := &gateSurface{entered: make(chan struct{}), release: make(chan struct{})}
	harness.facade.OnEditorMount(surface)
	if err := harness.facade.LoadRecording(sealed); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := harness.facade.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	surface.arm()

	tickDone := make(chan struct{})
	go func() {
		harness.source.Advance(600 * time.Millisecond)
		harness.scheduler.Fire()
		close(tickDone)
	}()
	select {
	case <-surface.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("expected tick to write the surface")
	}

	editDone := make(chan struct{})
	go func() {
		harness.facade.OnEditorChange("user typing")
		close(editDone)
	}()
	select {
	case <-editDone:
		t.Fatal("expected the user edit to wait for the tick instead of being dropped")
	case <-time.After(50 * time.Millisecond):
	}
	close(surface.release)
	for _, done := range []chan struct{}{tickDone, editDone} {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("deadlock between tick and user edit")
		}
	}
	if harness.facade.State().IsPlaying {
		t.Fatalf("expected the user edit to pause playback")
	}
}

type echoSurface struct {
	mu       sync.Mutex
	content  string
	onChange func(string)
}

func (s *echoSurface) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

func (s *echoSurface) SetContent(content string) {
	s.mu.Lock()
	s.content = content
	listener := s.onChange
	s.mu.Unlock()
	if listener != nil {
		listener(content)
	}
}

func TestFacadeIgnoresEchoesOfAppliedContent(t *testing.T) {
	harness := newHarness(t)
	sealed := harness.recordScenario(t)
	surface := &echoSurface{onChange: harness.facade.OnEditorChange}
	harness.facade.OnEditorMount(surface)
	if err := harness.facade.LoadRecording(sealed); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := harness.facade.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		harness.source.Advance(600 * time.Millisecond)
		harness.scheduler.Fire()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick deadlocked on synchronous editor echo")
	}
	if surface.Content() != "a" || !harness.facade.State().IsPlaying {
		t.Fatalf("expected echo to be ignored, content=%q playing=%v", surface.Content(), harness.facade.State().IsPlaying)
	}
}

func TestFacadeDeleteRules(t *testing.T) {
	harness := newHarness(t)
	ctx := context.Background()
	sealed := harness.recordScenario(t)

	if err := harness.facade.LoadRecording(sealed); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := harness.facade.DeleteRecording(ctx, sealed.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if state := harness.facade.State(); state.Phase != PhaseIdle || state.CurrentRecording != nil {
		t.Fatalf("expected deleting the loaded recording to reset playback, got %+v", state)
	}
	requireCode(t, harness.facade.LoadRecordingByID(ctx, sealed.ID), "session.load_recording.not_found", recording.ErrNotFound)
	requireCode(t, harness.facade.DeleteRecording(ctx, sealed.ID), "session.delete_recording.not_found", recording.ErrNotFound)

	if err := harness.facade.StartRecording(ctx, StartOptions{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	activeID := harness.facade.capture.RecordingID()
	requireCode(t, harness.facade.DeleteRecording(ctx, activeID), "session.delete_recording.cannot_delete_active", recording.ErrCannotDeleteActive)
}

func TestFacadeDegradesWhenAudioDenied(t *testing.T) {
	harness := newHarness(t, func(cfg *Config) {
		cfg.Device = audio.NewRemoteDevice(false)
	})
	ctx := context.Background()
	if err := harness.facade.StartRecording(ctx, StartOptions{Audio: true}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, "audio degradation report", func() bool {
		return len(harness.recorder.reported()) > 0
	})
	if status := harness.facade.State().AudioStatus; status != capture.AudioUnavailable {
		t.Fatalf("expected unavailable audio status, got %s", status)
	}
	errs := harness.recorder.reported()
	if len(errs) != 1 || !errors.Is(errs[0], recording.ErrAudioDeviceUnavailable) {
		t.Fatalf("expected one ErrAudioDeviceUnavailable report, got %v", errs)
	}

	harness.source.Advance(500 * time.Millisecond)
	harness.buffer.Edit("a")
	sealed, err := harness.facade.StopRecording(ctx, StopOptions{})
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if sealed.HasAudio() || len(sealed.Snapshots) != 2 {
		t.Fatalf("expected text-only recording, got audio=%v snapshots=%d", sealed.HasAudio(), len(sealed.Snapshots))
	}
}

func TestFacadeRecordsAudioAndPlaysAnchoredToPlayer(t *testing.T) {
	harness := newHarness(t)
	ctx := context.Background()
	if err := harness.facade.StartRecording(ctx, StartOptions{Audio: true}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, "active audio capture", func() bool {
		return harness.facade.State().AudioStatus == capture.AudioActive
	})
	if err := harness.device.Push(0, []byte{1, 2}); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if err := harness.device.Push(1, []byte{3}); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	harness.source.Advance(500 * time.Millisecond)
	harness.buffer.Edit("a")
	harness.source.Advance(1000 * time.Millisecond)
	sealed, err := harness.facade.StopRecording(ctx, StopOptions{Name: "with audio"})
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if !bytes.Equal(sealed.AudioTrack, []byte{1, 2, 3}) {
		t.Fatalf("unexpected audio track %v", sealed.AudioTrack)
	}
	if harness.device.Active() {
		t.Fatalf("expected capture device to be released")
	}

	if err := harness.facade.LoadRecordingByID(ctx, sealed.ID); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := harness.facade.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	if state := harness.facade.State(); state.ClockMode != clock.ModeMediaAnchored {
		t.Fatalf("expected media-anchored playback, got %s", state.ClockMode)
	}
	if harness.scheduler.Active() != 1 {
		t.Fatalf("expected one poll ticker in media-anchored mode, got %d", harness.scheduler.Active())
	}

	harness.player.ReportPosition(700)
	waitFor(t, "media-driven tick", func() bool {
		return harness.buffer.Content() == "a"
	})
	harness.player.ReportPosition(1600)
	waitFor(t, "end of playback", func() bool {
		return harness.facade.State().HasEnded
	})
}

func TestFacadeFinishesPlaybackAfterAudioTrackEnds(t *testing.T) {
	harness := newHarness(t)
	rec := &recording.Recording{
		ID:        "rec-audio-short",
		Name:      "short audio",
		CreatedAt: time.UnixMilli(1700000000000).UTC(),
		Duration:  1500,
		Snapshots: []recording.Snapshot{
			{Timestamp: 0, Content: ""},
			{Timestamp: 500, Content: "a"},
			{Timestamp: 1200, Content: "ab"},
		},
		AudioTrack: []byte{1, 2, 3},
	}
	if err := harness.facade.LoadRecording(rec); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := harness.facade.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	harness.player.ReportPosition(1100)
	harness.player.ReportEnded(-1)
	harness.scheduler.Fire()
	if state := harness.facade.State(); !state.IsPlaying || state.HasEnded {
		t.Fatalf("expected playback to continue past the audio track, got %+v", state)
	}

	harness.source.Advance(500 * time.Millisecond)
	harness.scheduler.Fire()
	waitFor(t, "end of playback after the track", func() bool {
		return harness.facade.State().HasEnded
	})
	if harness.buffer.Content() != "ab" {
		t.Fatalf("expected final snapshot applied, got %q", harness.buffer.Content())
	}
	if harness.scheduler.Active() != 0 {
		t.Fatalf("expected ticker cancelled at the end")
	}

	if err := harness.facade.Play(); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	state := harness.facade.State()
	if state.CurrentTime != 0 || state.HasEnded || !harness.player.Playing() {
		t.Fatalf("expected restart from zero with audio, got %+v", state)
	}
}

func TestFacadeReportsSaveFailureAndReturnsToIdle(t *testing.T) {
	saveErr := errors.New("disk full")
	harness := newHarness(t, func(cfg *Config) {
		cfg.Store = failingSaveStore{MemoryStore: store.NewMemoryStore(), err: saveErr}
	})
	ctx := context.Background()
	if err := harness.facade.StartRecording(ctx, StartOptions{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	sealed, err := harness.facade.StopRecording(ctx, StopOptions{})
	if sealed == nil {
		t.Fatalf("expected sealed recording to be returned")
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "session.stop_recording.save_failed" || !errors.Is(err, saveErr) {
		t.Fatalf("expected save_failed service error, got %v", err)
	}
	if harness.facade.State().IsRecording {
		t.Fatalf("expected idle state after failed save")
	}
	if errs := harness.recorder.reported(); len(errs) != 1 {
		t.Fatalf("expected error handler to receive the save failure, got %v", errs)
	}
}

func TestNewFacadeValidatesConfig(t *testing.T) {
	if _, err := NewFacade(Config{IDProvider: &sequenceIDProvider{}}); err == nil {
		t.Fatalf("expected missing store error")
	}
	if _, err := NewFacade(Config{Store: store.NewMemoryStore()}); err == nil {
		t.Fatalf("expected missing id provider error")
	}
}
