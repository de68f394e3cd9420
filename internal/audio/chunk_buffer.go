package audio

import (
	"fmt"
	"sync"

	"github.com/MarcoPoloResearchLab/replay/internal/recording"
)

// Gap describes a discontinuity in chunk sequence numbers.
type Gap struct {
	Expected uint64
	Received uint64
}

// ChunkBuffer accumulates capture chunks in arrival order and records sequence discontinuities.
type ChunkBuffer struct {
	mu       sync.Mutex
	chunks   [][]byte
	size     int
	expected uint64
	gaps     []Gap
}

// NewChunkBuffer returns an empty buffer expecting sequence zero first.
func NewChunkBuffer() *ChunkBuffer {
	return &ChunkBuffer{}
}

// Append copies data into the buffer. A sequence other than the expected one is recorded as a gap.
func (b *ChunkBuffer) Append(sequence uint64, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sequence != b.expected {
		b.gaps = append(b.gaps, Gap{Expected: b.expected, Received: sequence})
	}
	b.expected = sequence + 1
	if len(data) == 0 {
		return
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	b.chunks = append(b.chunks, copied)
	b.size += len(copied)
}

// Gaps returns the recorded discontinuities.
func (b *ChunkBuffer) Gaps() []Gap {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Gap(nil), b.gaps...)
}

// Len returns the number of buffered bytes.
func (b *ChunkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Payload concatenates chunks in arrival order. The error reports any recorded gap; the
// payload is returned either way. An empty buffer yields a nil payload.
func (b *ChunkBuffer) Payload() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var payload []byte
	if b.size > 0 {
		payload = make([]byte, 0, b.size)
		for _, chunk := range b.chunks {
			payload = append(payload, chunk...)
		}
	}
	if len(b.gaps) > 0 {
		first := b.gaps[0]
		return payload, fmt.Errorf("%w: %d chunk discontinuities, first expected %d got %d", recording.ErrAudioCaptureInterrupted, len(b.gaps), first.Expected, first.Received)
	}
	return payload, nil
}
