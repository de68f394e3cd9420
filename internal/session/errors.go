package session

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/replay/internal/recording"
	"github.com/MarcoPoloResearchLab/replay/internal/store"
)

var (
	errMissingStore      = errors.New("session: recording store is required")
	errMissingIDProvider = errors.New("session: id provider is required")
	errClosed            = errors.New("session: closed")
)

// ServiceError carries a stable machine-readable code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the "session.<operation>.<reason>" identifier.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opNew            = "session.new"
	opStartRecording = "session.start_recording"
	opStopRecording  = "session.stop_recording"
	opAcquireAudio   = "session.acquire_audio"
	opEditorChange   = "session.editor_change"
	opPlay           = "session.play"
	opSeek           = "session.seek"
	opLoadRecording  = "session.load_recording"
	opDeleteRecord   = "session.delete_recording"
	opListRecordings = "session.list_recordings"
	opPlayback       = "session.playback"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

var sentinelReasons = []struct {
	sentinel error
	reason   string
}{
	{recording.ErrAlreadyRecording, "already_recording"},
	{recording.ErrNotRecording, "not_recording"},
	{recording.ErrNoRecordingLoaded, "no_recording_loaded"},
	{recording.ErrNotFound, "not_found"},
	{recording.ErrCannotDeleteActive, "cannot_delete_active"},
	{recording.ErrAudioDeviceUnavailable, "audio_device_unavailable"},
	{recording.ErrAudioCaptureInterrupted, "audio_capture_interrupted"},
	{recording.ErrEmptyRecording, "empty_recording"},
	{recording.ErrInvalidSnapshotOrder, "invalid_recording"},
	{recording.ErrInvalidAudioOffset, "invalid_recording"},
	{recording.ErrInvalidRecordingID, "invalid_recording_id"},
	{recording.ErrLogSealed, "log_sealed"},
	{store.ErrDuplicateRecording, "duplicate_recording"},
	{errClosed, "closed"},
}

func reasonFor(err error, fallback string) string {
	for _, candidate := range sentinelReasons {
		if errors.Is(err, candidate.sentinel) {
			return candidate.reason
		}
	}
	return fallback
}

func wrap(operation string, err error, fallback string) error {
	return newServiceError(operation, reasonFor(err, fallback), err)
}
