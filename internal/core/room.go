package core

// Room groups the subscribers of one chat session.
type Room struct {
	Session     int64
	subscribers map[*Subscriber]struct{}
}

// NewRoom constructs a room with no subscribers.
func NewRoom(session int64) *Room {
	return &Room{
		Session:     session,
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// Add inserts a subscriber into the room. Returns true if newly added.
func (r *Room) Add(s *Subscriber) bool {
	if _, exists := r.subscribers[s]; exists {
		return false
	}
	r.subscribers[s] = struct{}{}
	return true
}

// Remove deletes a subscriber from the room. Returns true if removed.
func (r *Room) Remove(s *Subscriber) bool {
	if _, exists := r.subscribers[s]; !exists {
		return false
	}
	delete(r.subscribers, s)
	return true
}

// Broadcast offers an event to every subscriber without blocking and returns the
// subscribers whose buffer was full.
func (r *Room) Broadcast(event *Event) []*Subscriber {
	var slow []*Subscriber
	for s := range r.subscribers {
		select {
		case s.events <- event:
		default:
			slow = append(slow, s)
		}
	}
	return slow
}

// Len returns the number of subscribers.
func (r *Room) Len() int {
	return len(r.subscribers)
}

// Empty returns true if no subscribers are in the room.
func (r *Room) Empty() bool {
	return len(r.subscribers) == 0
}
