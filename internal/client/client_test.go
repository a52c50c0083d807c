package client

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/auth"
	"github.com/vovakirdan/marketchat/internal/chatsync"
	"github.com/vovakirdan/marketchat/internal/config"
	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/media"
	"github.com/vovakirdan/marketchat/internal/proto"
	"github.com/vovakirdan/marketchat/internal/service/chat"
	"github.com/vovakirdan/marketchat/internal/service/listings"
	"github.com/vovakirdan/marketchat/internal/service/profiles"
	"github.com/vovakirdan/marketchat/internal/service/wishlist"
	"github.com/vovakirdan/marketchat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/marketchat/internal/transport/http"
)

type testServer struct {
	url      string
	auth     *auth.Service
	listings *listings.Service
	stopHub  context.CancelFunc
}

func newTestServer(t *testing.T, historyLimit int) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.LogLevel = "disabled"
	cfg.Media.Dir = t.TempDir()
	cfg.Chat.RateLimitPerSecond = 0

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("client-test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}, nil)
	storage, err := media.NewLocalStorage(cfg.Media.Dir)
	if err != nil {
		t.Fatalf("media storage: %v", err)
	}
	uploader := media.NewUploader(storage, media.Options{URLPrefix: cfg.Media.URLPrefix, MaxBytes: cfg.Media.MaxBytes})

	hub := core.NewHub(&logger, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	listingSvc := listings.New(st, uploader, &logger)
	router, stop := transporthttp.NewRouter(transporthttp.Services{
		Hub:      hub,
		Auth:     authService,
		Chat:     chat.New(st, hub, chat.Options{HistoryLimit: historyLimit}),
		Listings: listingSvc,
		Profiles: profiles.New(st, authService, uploader, &logger),
		Wishlist: wishlist.New(st),
	}, cfg, &logger)
	t.Cleanup(stop)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &testServer{url: ts.URL, auth: authService, listings: listingSvc, stopHub: cancel}
}

// user signs up name and returns a client acting as that user.
func (s *testServer) user(t *testing.T, name string) (*Client, string) {
	t.Helper()

	token, err := s.auth.SignUp(context.Background(), name, name+"@example.com", "password123")
	if err != nil {
		t.Fatalf("signup %s: %v", name, err)
	}
	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	c, err := New(s.url, token)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, claims.UserID
}

func (s *testServer) listing(t *testing.T, sellerID string) int64 {
	t.Helper()

	l, err := s.listings.Create(context.Background(), sellerID, listings.Input{
		Name:              "Kamera analog",
		Price:             750000,
		CategoryPrimary:   "Elektronik",
		CategorySecondary: "Kamera",
		Province:          "Jawa Barat",
		City:              "Bandung",
		Latitude:          -6.91,
		Longitude:         107.61,
		ContactChat:       true,
	})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return l.ID
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClientResolvesSessionAndProfile(t *testing.T) {
	srv := newTestServer(t, 0)
	ctx := context.Background()
	_, sellerID := srv.user(t, "seller")
	buyer, buyerID := srv.user(t, "buyer")
	listingID := srv.listing(t, sellerID)

	session, err := buyer.FindOrCreateSession(ctx, listingID, buyerID, sellerID)
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if session.ListingID != listingID || session.BuyerID != buyerID || session.SellerID != sellerID || session.ListingName != "Kamera analog" {
		t.Fatalf("unexpected session %+v", session)
	}

	again, err := buyer.FindOrCreateSession(ctx, listingID, buyerID, sellerID)
	if err != nil || again.ID != session.ID {
		t.Fatalf("expected the same session, got %+v (%v)", again, err)
	}
	got, err := buyer.GetSession(ctx, session.ID)
	if err != nil || got.ID != session.ID {
		t.Fatalf("get session: %+v (%v)", got, err)
	}

	profile, err := buyer.GetProfile(ctx, sellerID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.ID != sellerID || profile.Name != "seller" {
		t.Fatalf("unexpected profile %+v", profile)
	}

	if _, err := buyer.GetSession(ctx, 999); !errors.Is(err, chatsync.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing session, got %v", err)
	}
	if _, err := buyer.GetProfile(ctx, "nobody"); !errors.Is(err, chatsync.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing profile, got %v", err)
	}
	if _, err := buyer.Subscribe(ctx, 999); !errors.Is(err, chatsync.ErrNotFound) {
		t.Fatalf("expected ErrNotFound when subscribing to a missing session, got %v", err)
	}

	stranger, _ := srv.user(t, "stranger")
	var apiErr *APIError
	if _, err := stranger.GetSession(ctx, session.ID); !errors.As(err, &apiErr) || apiErr.Code != core.ErrCodeNotParticipant {
		t.Fatalf("expected not_participant api error, got %v", err)
	}
}

func TestFetchHistoryReadsEveryPage(t *testing.T) {
	srv := newTestServer(t, 3)
	ctx := context.Background()
	_, sellerID := srv.user(t, "seller")
	buyer, buyerID := srv.user(t, "buyer")
	session, err := buyer.FindOrCreateSession(ctx, srv.listing(t, sellerID), buyerID, sellerID)
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}

	for i := range 7 {
		if _, err := buyer.Append(ctx, session.ID, buyerID, fmt.Sprintf("pesan %d", i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	history, err := buyer.FetchHistory(ctx, session.ID)
	if err != nil {
		t.Fatalf("fetch history: %v", err)
	}
	if len(history) != 7 {
		t.Fatalf("expected 7 messages, got %d", len(history))
	}
	seen := map[int64]bool{}
	for _, m := range history {
		if seen[m.ID] {
			t.Fatalf("message %d returned twice", m.ID)
		}
		seen[m.ID] = true
		if m.SessionID != session.ID || m.SenderID != buyerID || m.Timestamp.IsZero() {
			t.Fatalf("unexpected message %+v", m)
		}
	}
}

func TestControllersSyncOverTheWire(t *testing.T) {
	srv := newTestServer(t, 0)
	ctx := context.Background()
	seller, sellerID := srv.user(t, "seller")
	buyer, buyerID := srv.user(t, "buyer")
	session, err := buyer.FindOrCreateSession(ctx, srv.listing(t, sellerID), buyerID, sellerID)
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if _, err := buyer.Append(ctx, session.ID, buyerID, "masih ada?"); err != nil {
		t.Fatalf("append: %v", err)
	}

	start := func(c *Client, userID string) *chatsync.Controller {
		ctrl := chatsync.New(session.ID, userID, chatsync.Capabilities{Sessions: c, Profiles: c, Stream: c})
		if err := ctrl.Start(ctx); err != nil {
			t.Fatalf("start controller for %s: %v", userID, err)
		}
		t.Cleanup(func() { _ = ctrl.Close() })
		return ctrl
	}
	buyerCtrl := start(buyer, buyerID)
	sellerCtrl := start(seller, sellerID)

	if p, err := buyerCtrl.Counterpart(); err != nil || p.ID != sellerID {
		t.Fatalf("unexpected counterpart %+v (%v)", p, err)
	}

	for _, ctrl := range []*chatsync.Controller{buyerCtrl, sellerCtrl} {
		waitFor(t, "history", func() bool { return len(ctrl.Messages()) == 1 })
	}

	if err := sellerCtrl.Send(ctx, "  masih, silakan  "); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := buyerCtrl.Send(ctx, "   "); err != nil {
		t.Fatalf("blank send should be a no-op: %v", err)
	}

	for _, ctrl := range []*chatsync.Controller{buyerCtrl, sellerCtrl} {
		waitFor(t, "live message", func() bool { return len(ctrl.Messages()) == 2 })
		msgs := ctrl.Messages()
		if msgs[0].Text != "masih ada?" || msgs[1].Text != "masih, silakan" || msgs[1].SenderID != sellerID {
			t.Fatalf("unexpected sequence %+v", msgs)
		}
	}

	srv.stopHub()
	waitFor(t, "disconnect", func() bool { return buyerCtrl.State() == chatsync.StateDisconnected })
	if err := buyerCtrl.Err(); !errors.Is(err, chatsync.ErrSubscription) {
		t.Fatalf("expected subscription error, got %v", err)
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	srv := newTestServer(t, 0)
	ctx := context.Background()
	_, sellerID := srv.user(t, "seller")
	buyer, buyerID := srv.user(t, "buyer")
	session, err := buyer.FindOrCreateSession(ctx, srv.listing(t, sellerID), buyerID, sellerID)
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}

	sub, err := buyer.Subscribe(ctx, session.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	for range 2 {
		if err := sub.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	if _, ok := <-sub.Messages(); ok {
		t.Fatalf("messages channel should be closed")
	}
	if err := sub.Err(); err != nil {
		t.Fatalf("expected nil error after close, got %v", err)
	}
}

func TestRecordMappingRejectsMalformed(t *testing.T) {
	ts := "2026-01-02T03:04:05.123456789Z"
	tests := []struct {
		name string
		rec  proto.MessageRecord
		ok   bool
	}{
		{"valid", proto.MessageRecord{ID: 1, SessionID: 2, SenderID: "u", Text: "hi", Timestamp: ts}, true},
		{"missing id", proto.MessageRecord{SessionID: 2, SenderID: "u", Timestamp: ts}, false},
		{"missing session", proto.MessageRecord{ID: 1, SenderID: "u", Timestamp: ts}, false},
		{"missing sender", proto.MessageRecord{ID: 1, SessionID: 2, Timestamp: ts}, false},
		{"bad timestamp", proto.MessageRecord{ID: 1, SessionID: 2, SenderID: "u", Timestamp: "yesterday"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := toMessage(tt.rec)
			if tt.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if m.Timestamp.Nanosecond() != 123456789 {
					t.Fatalf("timestamp lost precision: %v", m.Timestamp)
				}
				return
			}
			if !errors.Is(err, ErrMalformedRecord) {
				t.Fatalf("expected ErrMalformedRecord, got %v", err)
			}
		})
	}

	if _, err := toSession(proto.SessionRecord{ID: 1, ListingID: 1, BuyerID: "b"}); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("session without seller should be rejected, got %v", err)
	}
	bad := "nope"
	if _, err := toSession(proto.SessionRecord{ID: 1, ListingID: 1, BuyerID: "b", SellerID: "s", LastMessageTimestamp: &bad}); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("session with bad timestamp should be rejected, got %v", err)
	}
	if _, err := toProfile(proto.ProfileRecord{Name: "x"}); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("profile without id should be rejected, got %v", err)
	}
}
