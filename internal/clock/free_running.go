package clock

import "time"

// FreeRunning is a wall-clock backed Clock.
type FreeRunning struct {
	now       Source
	offset    int64
	startedAt time.Time
	running   bool
	last      int64
}

// NewFreeRunning constructs a paused clock positioned at zero.
func NewFreeRunning(now Source) *FreeRunning {
	return &FreeRunning{now: sourceOrDefault(now)}
}

// Start resumes the clock from its current position.
func (c *FreeRunning) Start() error {
	if c.running {
		return nil
	}
	c.startedAt = c.now()
	c.running = true
	return nil
}

// Pause freezes the clock at its current position.
func (c *FreeRunning) Pause() {
	if !c.running {
		return
	}
	c.offset = c.Position()
	c.running = false
}

// SeekTo repositions the clock without changing its running state.
func (c *FreeRunning) SeekTo(position int64) {
	c.offset = position
	c.last = position
	if c.running {
		c.startedAt = c.now()
	}
}

// Position returns milliseconds elapsed since the reference start.
func (c *FreeRunning) Position() int64 {
	position := c.offset
	if c.running {
		position += c.now().Sub(c.startedAt).Milliseconds()
	}
	if position < c.last {
		position = c.last
	}
	c.last = position
	return position
}

// Running reports whether the clock is advancing.
func (c *FreeRunning) Running() bool {
	return c.running
}

// Mode returns ModeFreeRunning.
func (c *FreeRunning) Mode() Mode {
	return ModeFreeRunning
}

// StartedAt returns the wall-clock instant of the most recent Start or running Seek.
func (c *FreeRunning) StartedAt() time.Time {
	return c.startedAt
}
