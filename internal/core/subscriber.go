package core

import "sync/atomic"

// Subscriber receives the events of one session. Its channel is owned and closed by the Hub.
type Subscriber struct {
	ID      string
	UserID  string
	Session int64
	events  chan *Event
	evicted atomic.Bool
}

// NewSubscriber constructs a subscriber with a buffered event channel.
func NewSubscriber(id, userID string, session int64, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 16
	}
	return &Subscriber{
		ID:      id,
		UserID:  userID,
		Session: session,
		events:  make(chan *Event, buffer),
	}
}

// Events is closed when the subscriber is unregistered, evicted for falling behind,
// or the hub stops.
func (s *Subscriber) Events() <-chan *Event {
	return s.events
}

// Evicted reports whether Events was closed because the subscriber fell behind.
func (s *Subscriber) Evicted() bool {
	return s.evicted.Load()
}
