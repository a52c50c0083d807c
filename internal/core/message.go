package core

import "time"

// Message is a persisted chat message as fanned out to subscribers.
type Message struct {
	ID        int64
	SessionID int64
	SenderID  string
	Text      string
	CreatedAt time.Time
}
