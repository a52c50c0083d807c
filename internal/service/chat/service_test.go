package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/store"
	"github.com/vovakirdan/marketchat/internal/store/sqlite"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []core.Message
}

func (p *recordingPublisher) Publish(_ context.Context, msg core.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func (p *recordingPublisher) published() []core.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.Message(nil), p.msgs...)
}

type fixture struct {
	svc     *Service
	store   *sqlite.SQLiteStore
	hub     *recordingPublisher
	listing *store.Listing
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	for _, id := range []string{"seller", "buyer", "stranger"} {
		if err := st.CreateProfile(ctx, &store.Profile{ID: id, Name: id, Email: id + "@example.com", PasswordHash: "x"}); err != nil {
			t.Fatalf("create profile: %v", err)
		}
	}
	listing := &store.Listing{SellerID: "seller", Name: "Kamera analog", Price: 750000, CategoryPrimary: "Elektronik"}
	if err := st.CreateListing(ctx, listing); err != nil {
		t.Fatalf("create listing: %v", err)
	}

	hub := &recordingPublisher{}
	return &fixture{svc: New(st, hub, opts), store: st, hub: hub, listing: listing}
}

func TestFindOrCreateSession(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name      string
		buyer     string
		listingID int64
		seller    string
		wantErr   error
	}{
		{"missing listing", "buyer", 999, "seller", ErrListingNotFound},
		{"wrong seller", "buyer", f.listing.ID, "stranger", ErrSellerMismatch},
		{"seller chats with self", "seller", f.listing.ID, "seller", ErrCannotChatSelf},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.FindOrCreateSession(ctx, tt.buyer, tt.listingID, tt.seller); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	first, err := f.svc.FindOrCreateSession(ctx, "buyer", f.listing.ID, "seller")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	again, err := f.svc.FindOrCreateSession(ctx, "buyer", f.listing.ID, "seller")
	if err != nil {
		t.Fatalf("resolve session: %v", err)
	}
	if first.ID != again.ID {
		t.Fatalf("expected the same session, got %d and %d", first.ID, again.ID)
	}
	if first.ListingName != "Kamera analog" || first.BuyerID != "buyer" || first.SellerID != "seller" {
		t.Fatalf("unexpected session %+v", first)
	}
}

func TestSessionAccessIsLimitedToParticipants(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	session, err := f.svc.FindOrCreateSession(ctx, "buyer", f.listing.ID, "seller")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	for _, user := range []string{"buyer", "seller"} {
		if _, err := f.svc.GetSession(ctx, user, session.ID); err != nil {
			t.Fatalf("%s: %v", user, err)
		}
	}
	if _, err := f.svc.GetSession(ctx, "stranger", session.ID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	if _, err := f.svc.GetSession(ctx, "buyer", session.ID+100); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := f.svc.History(ctx, "stranger", session.ID, 0, nil); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant from history, got %v", err)
	}
	if _, err := f.svc.Append(ctx, "stranger", session.ID, "hi"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant from append, got %v", err)
	}

	sellerSessions, err := f.svc.ListSessions(ctx, "seller")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sellerSessions) != 1 || sellerSessions[0].ID != session.ID {
		t.Fatalf("unexpected sessions %+v", sellerSessions)
	}
	strangerSessions, err := f.svc.ListSessions(ctx, "stranger")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(strangerSessions) != 0 {
		t.Fatalf("stranger should have no sessions, got %d", len(strangerSessions))
	}
}

func TestAppendValidatesAndPublishes(t *testing.T) {
	f := newFixture(t, Options{MaxMessageLength: 5})
	ctx := context.Background()

	session, err := f.svc.FindOrCreateSession(ctx, "buyer", f.listing.ID, "seller")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := f.svc.Append(ctx, "buyer", session.ID, "  \t "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := f.svc.Append(ctx, "buyer", session.ID, "panjang"); !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("expected ErrMessageTooLong, got %v", err)
	}
	// Length counts characters, not bytes.
	if _, err := f.svc.Append(ctx, "buyer", session.ID, "ñññññ"); err != nil {
		t.Fatalf("five characters should fit: %v", err)
	}

	msg, err := f.svc.Append(ctx, "seller", session.ID, "  ok  ")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.ID == 0 || msg.Text != "ok" || msg.SenderID != "seller" || msg.CreatedAt.IsZero() {
		t.Fatalf("unexpected message %+v", msg)
	}

	published := f.hub.published()
	if len(published) != 2 {
		t.Fatalf("expected 2 published messages, got %d", len(published))
	}
	if published[1].ID != msg.ID || published[1].SessionID != session.ID {
		t.Fatalf("unexpected published message %+v", published[1])
	}

	updated, err := f.svc.GetSession(ctx, "buyer", session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if updated.LastMessage == nil || *updated.LastMessage != "ok" {
		t.Fatalf("expected last message to be updated, got %+v", updated.LastMessage)
	}
}

func TestHistoryAndReplay(t *testing.T) {
	f := newFixture(t, Options{HistoryLimit: 3})
	ctx := context.Background()

	session, err := f.svc.FindOrCreateSession(ctx, "buyer", f.listing.ID, "seller")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	var texts []string
	for i := range 7 {
		text := strings.Repeat("x", i+1)
		texts = append(texts, text)
		if _, err := f.svc.Append(ctx, "buyer", session.ID, text); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	page, err := f.svc.History(ctx, "seller", session.ID, 100, nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page) != 3 || page[2].Text != texts[6] || page[0].Text != texts[4] {
		t.Fatalf("expected the newest 3 messages ascending, got %d", len(page))
	}

	all, err := f.svc.Replay(ctx, session.ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(all) != len(texts) {
		t.Fatalf("expected %d messages, got %d", len(texts), len(all))
	}
	for i, m := range all {
		if m.Text != texts[i] {
			t.Fatalf("message %d out of order: %q", i, m.Text)
		}
	}
}
