package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/MarcoPoloResearchLab/replay/internal/recording"
)

// RemoteDevice is a capture device whose chunks are pushed by a remote client, typically a
// browser streaming microphone data over HTTP.
type RemoteDevice struct {
	mu      sync.Mutex
	enabled bool
	active  *RemoteCapture
}

// NewRemoteDevice constructs a device. A disabled device denies every acquisition.
func NewRemoteDevice(enabled bool) *RemoteDevice {
	return &RemoteDevice{enabled: enabled}
}

// Acquire returns a new capture handle, replacing any previous one.
func (d *RemoteDevice) Acquire(ctx context.Context) (Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled {
		return nil, ErrPermissionDenied
	}
	if d.active != nil {
		d.active.releaseLocked()
	}
	capture := &RemoteCapture{device: d, buffer: NewChunkBuffer()}
	d.active = capture
	return capture, nil
}

// Push delivers a chunk to the active capture.
func (d *RemoteDevice) Push(sequence uint64, data []byte) error {
	d.mu.Lock()
	capture := d.active
	d.mu.Unlock()
	if capture == nil {
		return ErrNoActiveCapture
	}
	return capture.push(sequence, data)
}

// Interrupt marks the active capture as lost. Buffered chunks are kept.
func (d *RemoteDevice) Interrupt() {
	d.mu.Lock()
	capture := d.active
	d.mu.Unlock()
	if capture != nil {
		capture.interrupt()
	}
}

// Active reports whether a capture handle is currently held.
func (d *RemoteDevice) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active != nil
}

// RemoteCapture buffers chunks pushed through its RemoteDevice.
type RemoteCapture struct {
	device      *RemoteDevice
	mu          sync.Mutex
	buffer      *ChunkBuffer
	started     bool
	stopped     bool
	interrupted bool
	released    bool
}

// Start opens the capture for chunk delivery.
func (c *RemoteCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrCaptureReleased
	}
	c.started = true
	return nil
}

// Stop closes delivery and returns the buffered payload.
func (c *RemoteCapture) Stop() ([]byte, error) {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil, ErrCaptureReleased
	}
	c.stopped = true
	interrupted := c.interrupted
	c.mu.Unlock()

	payload, err := c.buffer.Payload()
	if interrupted {
		return payload, fmt.Errorf("%w: device lost after %d bytes", recording.ErrAudioCaptureInterrupted, len(payload))
	}
	return payload, err
}

// Release detaches the capture from its device.
func (c *RemoteCapture) Release() {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	c.releaseLocked()
}

func (c *RemoteCapture) releaseLocked() {
	c.mu.Lock()
	c.released = true
	c.mu.Unlock()
	if c.device.active == c {
		c.device.active = nil
	}
}

func (c *RemoteCapture) push(sequence uint64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrCaptureReleased
	}
	if !c.started || c.stopped || c.interrupted {
		return ErrNoActiveCapture
	}
	c.buffer.Append(sequence, data)
	return nil
}

func (c *RemoteCapture) interrupt() {
	c.mu.Lock()
	c.interrupted = true
	c.mu.Unlock()
}

// RemotePlayer is a playback element whose position is reported by a remote client.
type RemotePlayer struct {
	mu        sync.Mutex
	payload   []byte
	position  int64
	playing   bool
	ended     bool
	nextID    int64
	listeners map[int64]func(int64)
}

// NewRemotePlayer constructs an empty player.
func NewRemotePlayer() *RemotePlayer {
	return &RemotePlayer{listeners: make(map[int64]func(int64))}
}

// Load stores the payload for the remote element to fetch.
func (p *RemotePlayer) Load(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty audio track", ErrInvalidPayload)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payload = append([]byte(nil), payload...)
	p.position = 0
	p.playing = false
	p.ended = false
	return nil
}

// Unload drops the payload and stops playback.
func (p *RemotePlayer) Unload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payload = nil
	p.position = 0
	p.playing = false
	p.ended = false
}

// Loaded reports whether a payload is loaded.
func (p *RemotePlayer) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.payload != nil
}

// Play marks the element as playing.
func (p *RemotePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.payload == nil {
		return fmt.Errorf("%w: nothing loaded", ErrInvalidPayload)
	}
	p.playing = true
	p.ended = false
	return nil
}

// Pause marks the element as paused.
func (p *RemotePlayer) Pause() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

// Playing reports whether the element is playing.
func (p *RemotePlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// SetPosition repositions the element and clears the ended state. Listeners are not notified.
func (p *RemotePlayer) SetPosition(position int64) {
	p.mu.Lock()
	p.position = position
	p.ended = false
	p.mu.Unlock()
}

// Ended reports whether the remote element played through its track.
func (p *RemotePlayer) Ended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ended
}

// Position returns the last reported position.
func (p *RemotePlayer) Position() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// ReportPosition records a position update from the remote element and notifies listeners.
// Reports are ignored while paused.
func (p *RemotePlayer) ReportPosition(position int64) bool {
	p.mu.Lock()
	if !p.playing || position < 0 {
		p.mu.Unlock()
		return false
	}
	p.position = position
	listeners := p.listenersLocked()
	p.mu.Unlock()
	for _, listener := range listeners {
		listener(position)
	}
	return true
}

// ReportEnded records that the remote element reached the end of its track at position.
// A negative position keeps the last reported one. Reports are ignored while paused.
func (p *RemotePlayer) ReportEnded(position int64) bool {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return false
	}
	if position >= p.position {
		p.position = position
	}
	p.playing = false
	p.ended = true
	position = p.position
	listeners := p.listenersLocked()
	p.mu.Unlock()
	for _, listener := range listeners {
		listener(position)
	}
	return true
}

func (p *RemotePlayer) listenersLocked() []func(int64) {
	listeners := make([]func(int64), 0, len(p.listeners))
	for _, listener := range p.listeners {
		listeners = append(listeners, listener)
	}
	return listeners
}

// OnPositionChange registers a listener for reported positions.
func (p *RemotePlayer) OnPositionChange(listener func(int64)) func() {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.listeners[id] = listener
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Payload returns a copy of the loaded payload.
func (p *RemotePlayer) Payload() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.payload...)
}
