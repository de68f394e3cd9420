package session

// EventType names a published session event.
type EventType string

const (
	// EventContentApplied is published whenever playback writes new content to the editor.
	EventContentApplied EventType = "content-applied"
	// EventStateChanged is published after every state transition.
	EventStateChanged EventType = "state-changed"
	// EventError carries a non-fatal failure.
	EventError EventType = "session-error"
)

// Event is one published session event. Events are delivered after the session lock is released.
type Event struct {
	Type    EventType
	State   State
	Content string
	Err     error
}

// Observer receives session events in publication order per operation.
type Observer func(Event)

// ErrorHandler receives non-fatal failures such as audio degradation or store errors after stop.
type ErrorHandler func(error)
