package chatsync

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(id int64, offset time.Duration) Message {
	return Message{
		ID:        id,
		SessionID: 1,
		SenderID:  "u1",
		Text:      fmt.Sprintf("message %d", id),
		Timestamp: baseTime.Add(offset),
	}
}

type fakeDirectory struct {
	sessions map[int64]*Session
	err      error
}

func (f *fakeDirectory) GetSession(_ context.Context, sessionID int64) (*Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeDirectory) FindOrCreateSession(_ context.Context, listingID int64, buyerID, sellerID string) (*Session, error) {
	for _, s := range f.sessions {
		if s.ListingID == listingID && s.BuyerID == buyerID {
			cp := *s
			return &cp, nil
		}
	}
	s := &Session{ID: int64(len(f.sessions) + 1), ListingID: listingID, BuyerID: buyerID, SellerID: sellerID}
	f.sessions[s.ID] = s
	cp := *s
	return &cp, nil
}

type fakeProfiles struct {
	profiles map[string]*Profile
	err      error
}

func (f *fakeProfiles) GetProfile(_ context.Context, userID string) (*Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

// fakeSubscription forwards pushed messages until it is closed or dropped.
type fakeSubscription struct {
	in   chan Message
	out  chan Message
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	err error
}

func newFakeSubscription() *fakeSubscription {
	s := &fakeSubscription{
		in:   make(chan Message),
		out:  make(chan Message),
		done: make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *fakeSubscription) pump() {
	defer close(s.out)
	for {
		select {
		case m := <-s.in:
			select {
			case s.out <- m:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *fakeSubscription) push(m Message) bool {
	select {
	case s.in <- m:
		return true
	case <-s.done:
		return false
	}
}

func (s *fakeSubscription) drop(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
}

func (s *fakeSubscription) Messages() <-chan Message { return s.out }

func (s *fakeSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

type fakeStream struct {
	mu           sync.Mutex
	history      []Message
	historyErr   error
	historyCalls int
	subscribeErr error
	subs         []*fakeSubscription
	appendErr    error
	appendCalls  int
	nextID       int64
	autoDeliver  bool
}

func (f *fakeStream) FetchHistory(_ context.Context, _ int64) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return slices.Clone(f.history), nil
}

func (f *fakeStream) Subscribe(_ context.Context, _ int64) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	sub := newFakeSubscription()
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeStream) Append(_ context.Context, sessionID int64, senderID, text string) (*Message, error) {
	f.mu.Lock()
	f.appendCalls++
	if f.appendErr != nil {
		f.mu.Unlock()
		return nil, f.appendErr
	}
	f.nextID++
	m := Message{
		ID:        f.nextID,
		SessionID: sessionID,
		SenderID:  senderID,
		Text:      text,
		Timestamp: baseTime.Add(time.Duration(f.nextID) * time.Second),
	}
	f.history = append(f.history, m)
	var sub *fakeSubscription
	if f.autoDeliver && len(f.subs) > 0 {
		sub = f.subs[len(f.subs)-1]
	}
	f.mu.Unlock()

	if sub != nil {
		go sub.push(m)
	}
	return &m, nil
}

func (f *fakeStream) latest() *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

func (f *fakeStream) counts() (appends, histories, subs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appendCalls, f.historyCalls, len(f.subs)
}

type fixture struct {
	dir      *fakeDirectory
	profiles *fakeProfiles
	stream   *fakeStream
}

func newFixture() *fixture {
	return &fixture{
		dir: &fakeDirectory{sessions: map[int64]*Session{
			1: {ID: 1, ListingID: 10, BuyerID: "u1", SellerID: "u2", ListingName: "Sepeda lipat"},
		}},
		profiles: &fakeProfiles{profiles: map[string]*Profile{
			"u1": {ID: "u1", Name: "Buyer"},
			"u2": {ID: "u2", Name: "Seller"},
		}},
		stream: &fakeStream{},
	}
}

func (f *fixture) caps() Capabilities {
	return Capabilities{Sessions: f.dir, Profiles: f.profiles, Stream: f.stream}
}

// startLive starts a controller for session 1 as user u1 and closes it on cleanup.
func startLive(t *testing.T, f *fixture) *Controller {
	t.Helper()

	c := New(1, "u1", f.caps())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func ids(msgs []Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func assertConsistent(t *testing.T, msgs []Message) {
	t.Helper()

	seen := make(map[int64]bool, len(msgs))
	for i, m := range msgs {
		if seen[m.ID] {
			t.Fatalf("duplicate id %d in %v", m.ID, ids(msgs))
		}
		seen[m.ID] = true
		if i > 0 && msgs[i-1].Timestamp.After(m.Timestamp) {
			t.Fatalf("sequence not sorted at %d: %v", i, ids(msgs))
		}
	}
}
