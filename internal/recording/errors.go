package recording

import "errors"

var (
	// ErrAlreadyRecording indicates that a recording or playback session is already active.
	ErrAlreadyRecording = errors.New("recording: already recording")
	// ErrNotRecording indicates that no recording session is active.
	ErrNotRecording = errors.New("recording: not recording")
	// ErrNoRecordingLoaded indicates that playback was requested without a loaded recording.
	ErrNoRecordingLoaded = errors.New("recording: no recording loaded")
	// ErrNotFound indicates that the store holds no recording with the requested id.
	ErrNotFound = errors.New("recording: not found")
	// ErrCannotDeleteActive indicates an attempt to delete the in-progress recording.
	ErrCannotDeleteActive = errors.New("recording: cannot delete active recording")
	// ErrAudioDeviceUnavailable indicates that audio capture or playback could not be acquired.
	// It is non-fatal: recording continues without audio and playback falls back to the wall clock.
	ErrAudioDeviceUnavailable = errors.New("recording: audio device unavailable")
	// ErrAudioCaptureInterrupted indicates that the capture device was lost or dropped data mid-capture.
	ErrAudioCaptureInterrupted = errors.New("recording: audio capture interrupted")
	// ErrEmptyRecording indicates a recording without snapshots.
	ErrEmptyRecording = errors.New("recording: recording has no snapshots")
	// ErrInvalidSnapshotOrder indicates that snapshot timestamps are not strictly increasing from zero.
	ErrInvalidSnapshotOrder = errors.New("recording: snapshots out of order")
	// ErrInvalidAudioOffset indicates an audio track starting outside the recording.
	ErrInvalidAudioOffset = errors.New("recording: audio offset outside recording")
	// ErrLogSealed indicates a mutation of a snapshot log after it was sealed.
	ErrLogSealed = errors.New("recording: snapshot log sealed")
	// ErrInvalidRecordingID indicates that a recording identifier is empty or exceeds storage bounds.
	ErrInvalidRecordingID = errors.New("recording: invalid recording id")
)
