package core

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Fanout relays published messages to every hub instance, including the publisher's.
type Fanout interface {
	// Publish sends msg to all instances.
	Publish(ctx context.Context, msg Message) error

	// Subscribe calls deliver for every relayed message until ctx is done.
	Subscribe(ctx context.Context, deliver func(Message)) error
}

type registration struct {
	sub *Subscriber
	ack chan struct{}
}

// Hub fans appended messages out to the subscribers of their session.
// All room state is owned by the Run goroutine.
type Hub struct {
	log    *zerolog.Logger
	fanout Fanout

	register   chan registration
	unregister chan *Subscriber
	deliver    chan Message
	done       chan struct{}

	rooms       map[int64]*Room
	roomCount   atomic.Int64
	subscribers atomic.Int64
	fanoutDown  atomic.Bool
}

// NewHub creates a hub. fanout may be nil for a single instance.
func NewHub(logger *zerolog.Logger, fanout Fanout) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		log:        logger,
		fanout:     fanout,
		register:   make(chan registration),
		unregister: make(chan *Subscriber),
		deliver:    make(chan Message, 64),
		done:       make(chan struct{}),
		rooms:      make(map[int64]*Room),
	}
}

// Run processes registrations and deliveries until ctx is done, then closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	if h.fanout != nil {
		go func() {
			err := h.fanout.Subscribe(ctx, h.Deliver)
			if ctx.Err() != nil {
				return
			}
			h.fanoutDown.Store(true)
			h.log.Error().Err(err).Msg("fanout subscription ended, delivering locally")
		}()
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return
		case r := <-h.register:
			h.handleRegister(r.sub)
			close(r.ack)
		case s := <-h.unregister:
			h.remove(s, false)
		case msg := <-h.deliver:
			h.broadcast(msg)
		}
	}
}

// Register adds sub to its session's room. When Register returns nil, every message
// delivered afterwards reaches sub.
func (h *Hub) Register(ctx context.Context, sub *Subscriber) error {
	r := registration{sub: sub, ack: make(chan struct{})}
	select {
	case h.register <- r:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-r.ack
	return nil
}

// Unregister removes sub and closes its channel. Unknown or evicted subscribers are ignored.
func (h *Hub) Unregister(sub *Subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// Publish fans msg out to all instances. Without a relaying fanout, or when the fanout
// fails, msg is also delivered to local subscribers directly.
func (h *Hub) Publish(ctx context.Context, msg Message) {
	if h.fanout != nil {
		err := h.fanout.Publish(ctx, msg)
		if err == nil && h.FanoutActive() {
			return
		}
		if err != nil {
			h.log.Warn().Err(err).Int64("session_id", msg.SessionID).Int64("message_id", msg.ID).
				Msg("fanout publish failed, delivering locally")
		}
	}
	h.Deliver(msg)
}

// FanoutActive reports whether messages published through the fanout come back to this hub.
func (h *Hub) FanoutActive() bool {
	return h.fanout != nil && !h.fanoutDown.Load()
}

// Deliver hands msg to local subscribers of its session.
func (h *Hub) Deliver(msg Message) {
	select {
	case h.deliver <- msg:
	case <-h.done:
	}
}

// Stats returns the number of active rooms and subscribers.
func (h *Hub) Stats() (rooms, subscribers int) {
	return int(h.roomCount.Load()), int(h.subscribers.Load())
}

func (h *Hub) handleRegister(sub *Subscriber) {
	room, ok := h.rooms[sub.Session]
	if !ok {
		room = NewRoom(sub.Session)
		h.rooms[sub.Session] = room
		h.roomCount.Add(1)
	}
	if room.Add(sub) {
		h.subscribers.Add(1)
		h.log.Debug().Str("subscriber", sub.ID).Str("user_id", sub.UserID).
			Int64("session_id", sub.Session).Msg("subscriber registered")
	}
}

func (h *Hub) broadcast(msg Message) {
	room, ok := h.rooms[msg.SessionID]
	if !ok {
		return
	}
	ev := &Event{Kind: EventMessage, Session: msg.SessionID, Message: msg}
	for _, slow := range room.Broadcast(ev) {
		h.log.Warn().Str("subscriber", slow.ID).Int64("session_id", slow.Session).
			Msg("evicting slow subscriber")
		h.remove(slow, true)
	}
}

// remove closes sub if it is still registered.
func (h *Hub) remove(sub *Subscriber, evicted bool) {
	room, ok := h.rooms[sub.Session]
	if !ok || !room.Remove(sub) {
		return
	}
	h.subscribers.Add(-1)
	if evicted {
		sub.evicted.Store(true)
	}
	close(sub.events)

	if room.Empty() {
		delete(h.rooms, sub.Session)
		h.roomCount.Add(-1)
	}
}

func (h *Hub) closeAll() {
	for id, room := range h.rooms {
		for sub := range room.subscribers {
			close(sub.events)
		}
		delete(h.rooms, id)
	}
	h.roomCount.Store(0)
	h.subscribers.Store(0)
}
