// Package audio defines the capture and playback device contracts consumed by the recorder,
// the asynchronous acquisition future, and an HTTP-fed remote device pair.
package audio

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/replay/internal/clock"
)

var (
	// ErrPermissionDenied indicates that the user or platform refused device access.
	ErrPermissionDenied = errors.New("audio: permission denied")
	// ErrNoActiveCapture indicates chunk delivery without an acquired capture.
	ErrNoActiveCapture = errors.New("audio: no active capture")
	// ErrCaptureReleased indicates use of a capture after release.
	ErrCaptureReleased = errors.New("audio: capture released")
	// ErrInvalidPayload indicates an audio track the player cannot load.
	ErrInvalidPayload = errors.New("audio: invalid payload")
)

// Device acquires capture handles. Acquire may block until the user grants access.
type Device interface {
	Acquire(ctx context.Context) (Capture, error)
}

// Capture is an acquired recording device.
type Capture interface {
	// Start begins chunk delivery.
	Start() error
	// Stop ends delivery and returns the buffered payload in arrival order. A non-nil error
	// accompanies a partial payload when the device was lost or chunks went missing.
	Stop() ([]byte, error)
	// Release frees the device. It is safe to call more than once.
	Release()
}

// Player is the playback element used for media-anchored playback.
type Player interface {
	clock.Media
	// Load prepares the payload for playback.
	Load(payload []byte) error
	// Unload releases the loaded payload and stops playback.
	Unload()
	// OnPositionChange registers a listener for position updates reported by the element.
	OnPositionChange(listener func(position int64)) (unsubscribe func())
}

// Outcome classifies a completed acquisition.
type Outcome string

const (
	// OutcomeGranted means a capture handle is available.
	OutcomeGranted Outcome = "granted"
	// OutcomeDenied means access was refused.
	OutcomeDenied Outcome = "denied"
	// OutcomeFailed means acquisition errored or timed out.
	OutcomeFailed Outcome = "failed"
)

// AcquisitionResult is the settled value of an Acquisition.
type AcquisitionResult struct {
	Outcome Outcome
	Capture Capture
	Err     error
}

// Acquisition is the pending result of an asynchronous device request.
type Acquisition struct {
	done   chan struct{}
	result AcquisitionResult
	cancel context.CancelFunc
}

// Acquire starts a device request on its own goroutine. A positive timeout bounds the request.
func Acquire(ctx context.Context, device Device, timeout time.Duration) *Acquisition {
	var (
		requestCtx context.Context
		cancel     context.CancelFunc
	)
	if timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		requestCtx, cancel = context.WithCancel(ctx)
	}
	acquisition := &Acquisition{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(acquisition.done)
		defer cancel()
		capture, err := device.Acquire(requestCtx)
		acquisition.result = classify(capture, err)
	}()
	return acquisition
}

func classify(capture Capture, err error) AcquisitionResult {
	switch {
	case err == nil && capture != nil:
		return AcquisitionResult{Outcome: OutcomeGranted, Capture: capture}
	case errors.Is(err, ErrPermissionDenied):
		return AcquisitionResult{Outcome: OutcomeDenied, Err: err}
	case err == nil:
		return AcquisitionResult{Outcome: OutcomeFailed, Err: ErrNoActiveCapture}
	default:
		if capture != nil {
			capture.Release()
		}
		return AcquisitionResult{Outcome: OutcomeFailed, Err: err}
	}
}

// Settled returns an acquisition that has already completed with result.
func Settled(result AcquisitionResult) *Acquisition {
	acquisition := &Acquisition{done: make(chan struct{}), result: result, cancel: func() {}}
	close(acquisition.done)
	return acquisition
}

// Done is closed once the acquisition settles.
func (a *Acquisition) Done() <-chan struct{} {
	return a.done
}

// Result blocks until the acquisition settles and returns its value.
func (a *Acquisition) Result() AcquisitionResult {
	<-a.done
	return a.result
}

// Cancel abandons the request. A capture granted afterwards is still reported by Result
// and must be released by the caller.
func (a *Acquisition) Cancel() {
	a.cancel()
}
