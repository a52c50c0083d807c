package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed while waiting for %v", kind)
			}
			if ev != nil && ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected event kind %v not received", kind)
			return nil
		}
	}
}

func mustClose(t *testing.T, ch <-chan *Event) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("expected channel to be closed")
		}
	}
}

func mustRegister(t *testing.T, h *Hub, s *Subscriber) {
	t.Helper()

	if err := h.Register(context.Background(), s); err != nil {
		t.Fatalf("register %s: %v", s.ID, err)
	}
}

// memoryFanout relays published messages to every subscribed hub, like a broker channel.
type memoryFanout struct {
	mu       sync.Mutex
	handlers []func(Message)
	fail     bool
}

func newMemoryFanout() *memoryFanout {
	return &memoryFanout{}
}

func (f *memoryFanout) Publish(_ context.Context, msg Message) error {
	f.mu.Lock()
	if f.fail {
		f.mu.Unlock()
		return errors.New("broker unavailable")
	}
	handlers := append([]func(Message){}, f.handlers...)
	f.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (f *memoryFanout) Subscribe(ctx context.Context, deliver func(Message)) error {
	f.mu.Lock()
	f.handlers = append(f.handlers, deliver)
	f.mu.Unlock()

	<-ctx.Done()
	return ctx.Err()
}
