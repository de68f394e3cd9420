package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/replay/internal/session"
)

const (
	RealtimeEventContentApplied = string(session.EventContentApplied)
	RealtimeEventStateChanged   = string(session.EventStateChanged)
	RealtimeEventSessionError   = string(session.EventError)
	realtimeEventHeartbeat      = "heartbeat"
	realtimeSourceBackend       = "replay-backend"
)

type RealtimeMessage struct {
	EventType string
	Payload   any
	Timestamp time.Time
}

// RealtimeDispatcher fans session events out to stream subscribers. Slow subscribers drop messages.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  64,
		clock:       time.Now,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.mu.Lock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subscribers, subscriber.id)
			d.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = d.clock().UTC()
	}
	d.mu.RLock()
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount returns the number of open streams.
func (d *RealtimeDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

// Observe adapts session events into realtime messages. It never blocks.
func (d *RealtimeDispatcher) Observe(event session.Event) {
	switch event.Type {
	case session.EventContentApplied:
		d.Publish(RealtimeMessage{EventType: RealtimeEventContentApplied, Payload: contentPayload{Content: event.Content}})
	case session.EventStateChanged:
		d.Publish(RealtimeMessage{EventType: RealtimeEventStateChanged, Payload: newStatePayload(event.State)})
	case session.EventError:
		d.Publish(RealtimeMessage{EventType: RealtimeEventSessionError, Payload: newErrorPayload(event.Err)})
	}
}
