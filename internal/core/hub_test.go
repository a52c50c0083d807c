package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHubDeliversToSessionSubscribers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := NewHub(nil, nil)
	go hub.Run(ctx)

	buyer := NewSubscriber("s1", "buyer", 1, 8)
	seller := NewSubscriber("s2", "seller", 1, 8)
	other := NewSubscriber("s3", "someone", 2, 8)
	mustRegister(t, hub, buyer)
	mustRegister(t, hub, seller)
	mustRegister(t, hub, other)

	hub.Publish(ctx, Message{ID: 7, SessionID: 1, SenderID: "buyer", Text: "halo"})

	for _, s := range []*Subscriber{buyer, seller} {
		ev := mustEvent(t, s.Events(), EventMessage)
		if ev.Session != 1 || ev.Message.ID != 7 || ev.Message.Text != "halo" {
			t.Fatalf("unexpected event for %s: %+v", s.ID, ev)
		}
	}

	select {
	case ev := <-other.Events():
		t.Fatalf("subscriber of another session got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	if rooms, subs := hub.Stats(); rooms != 2 || subs != 3 {
		t.Fatalf("expected 2 rooms and 3 subscribers, got %d/%d", rooms, subs)
	}
}

func TestHubUnregisterClosesChannel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := NewHub(nil, nil)
	go hub.Run(ctx)

	s := NewSubscriber("s1", "buyer", 1, 8)
	mustRegister(t, hub, s)

	hub.Unregister(s)
	mustClose(t, s.Events())
	if s.Evicted() {
		t.Fatalf("unregistered subscriber must not be marked evicted")
	}

	// Second unregister is a no-op.
	hub.Unregister(s)

	if rooms, subs := hub.Stats(); rooms != 0 || subs != 0 {
		t.Fatalf("expected empty hub, got %d/%d", rooms, subs)
	}
}

func TestHubEvictsSlowSubscriber(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := NewHub(nil, nil)
	go hub.Run(ctx)

	slow := NewSubscriber("slow", "buyer", 1, 1)
	fast := NewSubscriber("fast", "seller", 1, 8)
	mustRegister(t, hub, slow)
	mustRegister(t, hub, fast)

	hub.Publish(ctx, Message{ID: 1, SessionID: 1, Text: "one"})
	hub.Publish(ctx, Message{ID: 2, SessionID: 1, Text: "two"})

	mustEvent(t, fast.Events(), EventMessage)
	mustEvent(t, fast.Events(), EventMessage)

	// The buffered event is still readable, then the channel is closed.
	ev := mustEvent(t, slow.Events(), EventMessage)
	if ev.Message.ID != 1 {
		t.Fatalf("expected first message, got %d", ev.Message.ID)
	}
	mustClose(t, slow.Events())
	if !slow.Evicted() {
		t.Fatalf("expected slow subscriber to be marked evicted")
	}

	// Unregister after eviction must not double close.
	hub.Unregister(slow)
}

func TestHubStopClosesSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	hub := NewHub(nil, nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	s := NewSubscriber("s1", "buyer", 1, 8)
	mustRegister(t, hub, s)

	cancel()
	<-stopped
	mustClose(t, s.Events())

	if err := hub.Register(context.Background(), NewSubscriber("s2", "x", 1, 8)); !errors.Is(err, ErrHubStopped) {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
	hub.Unregister(s)
	hub.Deliver(Message{SessionID: 1})
}

func TestHubRelaysThroughFanout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	fanout := newMemoryFanout()
	a := NewHub(nil, fanout)
	b := NewHub(nil, fanout)
	go a.Run(ctx)
	go b.Run(ctx)

	onA := NewSubscriber("a", "buyer", 1, 8)
	onB := NewSubscriber("b", "seller", 1, 8)
	mustRegister(t, a, onA)
	mustRegister(t, b, onB)

	// Wait until both hubs subscribed to the fanout.
	deadline := time.Now().Add(2 * time.Second)
	for {
		fanout.mu.Lock()
		n := len(fanout.handlers)
		fanout.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("hubs did not subscribe to fanout")
		}
		time.Sleep(5 * time.Millisecond)
	}

	a.Publish(ctx, Message{ID: 1, SessionID: 1, Text: "cross instance"})

	if ev := mustEvent(t, onA.Events(), EventMessage); ev.Message.ID != 1 {
		t.Fatalf("publisher instance: unexpected %+v", ev)
	}
	if ev := mustEvent(t, onB.Events(), EventMessage); ev.Message.ID != 1 {
		t.Fatalf("remote instance: unexpected %+v", ev)
	}
}

func TestHubFallsBackToLocalDelivery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	fanout := newMemoryFanout()
	fanout.fail = true
	hub := NewHub(nil, fanout)
	go hub.Run(ctx)

	s := NewSubscriber("s1", "buyer", 1, 8)
	mustRegister(t, hub, s)

	hub.Publish(ctx, Message{ID: 3, SessionID: 1})
	if ev := mustEvent(t, s.Events(), EventMessage); ev.Message.ID != 3 {
		t.Fatalf("unexpected %+v", ev)
	}
}

func TestHubDeliversLocallyWhenFanoutSubscriptionFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	healthy := newMemoryFanout()
	remote := NewHub(nil, healthy)
	go remote.Run(ctx)

	// broken shares healthy's handlers but cannot subscribe itself.
	broken := &brokenSubscribeFanout{memoryFanout: healthy}
	hub := NewHub(nil, broken)
	go hub.Run(ctx)

	local := NewSubscriber("local", "buyer", 1, 8)
	onRemote := NewSubscriber("remote", "seller", 1, 8)
	mustRegister(t, hub, local)
	mustRegister(t, remote, onRemote)

	deadline := time.Now().Add(2 * time.Second)
	for hub.FanoutActive() || !remote.FanoutActive() {
		if time.Now().After(deadline) {
			t.Fatalf("fanout state did not settle")
		}
		time.Sleep(5 * time.Millisecond)
	}
	for {
		healthy.mu.Lock()
		n := len(healthy.handlers)
		healthy.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("remote hub did not subscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(ctx, Message{ID: 5, SessionID: 1, Text: "still here"})

	if ev := mustEvent(t, local.Events(), EventMessage); ev.Message.ID != 5 {
		t.Fatalf("local subscriber: unexpected %+v", ev)
	}
	if ev := mustEvent(t, onRemote.Events(), EventMessage); ev.Message.ID != 5 {
		t.Fatalf("remote subscriber: unexpected %+v", ev)
	}
	select {
	case ev := <-local.Events():
		t.Fatalf("message delivered twice: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

type brokenSubscribeFanout struct {
	*memoryFanout
}

func (f *brokenSubscribeFanout) Subscribe(context.Context, func(Message)) error {
	return errors.New("subscribe rejected")
}
