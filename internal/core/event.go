package core

// EventKind is a notification the core emits to subscribers.
type EventKind int

const (
	// EventMessage notifies subscribers about a message appended to their session.
	EventMessage EventKind = iota
	// EventError notifies a subscriber about a domain error.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to subscribers to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Session int64
	Message Message
	Error   *CoreError
}
