package clock

// Media is the playback element whose position is authoritative while audio plays.
type Media interface {
	Play() error
	Pause()
	SetPosition(position int64)
	Position() int64
	// Ended reports whether the element played through to the end of its track.
	Ended() bool
}

type mediaPhase int

const (
	phaseLeadIn mediaPhase = iota
	phaseMedia
	phaseTail
)

// MediaAnchored follows a Media element whose track begins offset milliseconds into the
// recording. Positions before the offset and after the track ends advance with the wall clock.
type MediaAnchored struct {
	media   Media
	offset  int64
	wall    *FreeRunning
	phase   mediaPhase
	running bool
	last    int64
	err     error
}

// NewMediaAnchored constructs a paused clock at position zero bound to the media element.
func NewMediaAnchored(media Media, now Source, offset int64) *MediaAnchored {
	if offset < 0 {
		offset = 0
	}
	c := &MediaAnchored{
		media:  media,
		offset: offset,
		wall:   NewFreeRunning(now),
	}
	c.place(0)
	return c
}

// Start resumes from the current position. Only a media start failure is returned.
func (c *MediaAnchored) Start() error {
	if c.running {
		return nil
	}
	if c.phase == phaseMedia {
		if err := c.media.Play(); err != nil {
			return err
		}
	} else {
		_ = c.wall.Start()
	}
	c.running = true
	return nil
}

// Pause freezes the clock at its current position.
func (c *MediaAnchored) Pause() {
	if !c.running {
		return
	}
	position := c.Position()
	c.halt()
	c.last = position
}

// SeekTo repositions the clock and media element, keeping the running state.
func (c *MediaAnchored) SeekTo(position int64) {
	if position < 0 {
		position = 0
	}
	wasRunning := c.running
	c.halt()
	c.place(position)
	c.last = position
	if wasRunning {
		if err := c.Start(); err != nil {
			c.detach(err, position)
		}
	}
}

// Position returns the recording position, never below the last observed value.
func (c *MediaAnchored) Position() int64 {
	var position int64
	switch c.phase {
	case phaseLeadIn:
		position = c.wall.Position()
		if c.running && position >= c.offset {
			c.media.SetPosition(position - c.offset)
			if err := c.media.Play(); err != nil {
				c.detach(err, position)
			} else {
				c.wall.Pause()
				c.phase = phaseMedia
			}
		}
	case phaseMedia:
		position = c.media.Position() + c.offset
		if c.media.Ended() {
			if position < c.last {
				position = c.last
			}
			c.phase = phaseTail
			c.wall.SeekTo(position)
			if c.running {
				_ = c.wall.Start()
			}
		}
	case phaseTail:
		position = c.wall.Position()
	}
	if position < c.last {
		return c.last
	}
	c.last = position
	return position
}

// Running reports whether the clock is advancing.
func (c *MediaAnchored) Running() bool {
	return c.running
}

// Mode returns ModeMediaAnchored.
func (c *MediaAnchored) Mode() Mode {
	return ModeMediaAnchored
}

// Offset returns the recording position at which the media track begins.
func (c *MediaAnchored) Offset() int64 {
	return c.offset
}

// Err returns the media failure that detached the clock from its element, if any.
func (c *MediaAnchored) Err() error {
	return c.err
}

func (c *MediaAnchored) halt() {
	if c.phase == phaseMedia {
		c.media.Pause()
	}
	c.wall.Pause()
	c.running = false
}

// place positions media and wall clock for a stopped clock at position.
func (c *MediaAnchored) place(position int64) {
	if position < c.offset {
		c.phase = phaseLeadIn
		c.media.SetPosition(0)
		c.wall.SeekTo(position)
		return
	}
	c.phase = phaseMedia
	c.media.SetPosition(position - c.offset)
	c.wall.SeekTo(position)
}

// detach keeps the clock running on the wall clock after the element fails to play.
func (c *MediaAnchored) detach(err error, position int64) {
	c.err = err
	c.phase = phaseTail
	c.wall.SeekTo(position)
	_ = c.wall.Start()
	c.running = true
}
