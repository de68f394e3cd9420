// Package editor defines the editing surface contract and a server-side text buffer that
// implements it for remote editors.
package editor

import "sync"

// Surface is a mounted editor handle.
type Surface interface {
	// Content returns the full editor text.
	Content() string
	// SetContent replaces the full editor text. Implementations may emit a change
	// notification synchronously.
	SetContent(content string)
}

// ChangeListener receives the full content after every change.
type ChangeListener func(content string)

// Buffer is an in-memory Surface shared by a remote editor and the playback engine.
// Programmatic writes through SetContent are silent; user edits arrive through Edit and
// notify the registered change listener.
type Buffer struct {
	mu           sync.RWMutex
	content      string
	revision     int64
	onUserChange ChangeListener
}

// NewBuffer constructs a buffer holding initial content.
func NewBuffer(initial string) *Buffer {
	return &Buffer{content: initial}
}

// Content returns the buffer text.
func (b *Buffer) Content() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.content
}

// Revision returns a counter incremented on every write.
func (b *Buffer) Revision() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.revision
}

// SetContent applies a programmatic write.
func (b *Buffer) SetContent(content string) {
	b.mu.Lock()
	b.content = content
	b.revision++
	b.mu.Unlock()
}

// Edit applies a user-originated write and notifies the user change listener.
func (b *Buffer) Edit(content string) {
	b.mu.Lock()
	b.content = content
	b.revision++
	listener := b.onUserChange
	b.mu.Unlock()
	if listener != nil {
		listener(content)
	}
}

// OnUserChange registers the listener for user edits.
func (b *Buffer) OnUserChange(listener ChangeListener) {
	b.mu.Lock()
	b.onUserChange = listener
	b.mu.Unlock()
}
