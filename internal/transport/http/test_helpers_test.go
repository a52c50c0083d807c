package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/auth"
	"github.com/vovakirdan/marketchat/internal/config"
	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/media"
	"github.com/vovakirdan/marketchat/internal/proto"
	"github.com/vovakirdan/marketchat/internal/service/chat"
	"github.com/vovakirdan/marketchat/internal/service/listings"
	"github.com/vovakirdan/marketchat/internal/service/profiles"
	"github.com/vovakirdan/marketchat/internal/service/wishlist"
	"github.com/vovakirdan/marketchat/internal/store/sqlite"
)

const (
	testSecret   = "test-secret"
	testIssuer   = "test"
	testAudience = "test"
)

type testEnv struct {
	ts      *httptest.Server
	hub     *core.Hub
	auth    *auth.Service
	store   *sqlite.SQLiteStore
	stopHub context.CancelFunc
}

// newTestEnv starts a full server on an in-memory store. mutate may adjust the config.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.LogLevel = "disabled"
	cfg.Media.Dir = t.TempDir()
	cfg.Chat.RateLimitPerSecond = 0
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(testSecret),
		Issuer:   testIssuer,
		Audience: testAudience,
		TTL:      time.Hour,
	}, cfg.Auth.AdminEmails)

	storage, err := media.NewLocalStorage(cfg.Media.Dir)
	if err != nil {
		t.Fatalf("media storage: %v", err)
	}
	uploader := media.NewUploader(storage, media.Options{
		MaxBytes:    cfg.Media.MaxBytes,
		MaxWidth:    cfg.Media.MaxWidth,
		MaxHeight:   cfg.Media.MaxHeight,
		MaxPixels:   cfg.Media.MaxPixels,
		JPEGQuality: cfg.Media.JPEGQuality,
		URLPrefix:   cfg.Media.URLPrefix,
	})

	hub := core.NewHub(&logger, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	router, stop := NewRouter(Services{
		Hub:  hub,
		Auth: authService,
		Chat: chat.New(st, hub, chat.Options{
			MaxMessageLength: cfg.Chat.MaxMessageLength,
			HistoryLimit:     cfg.Chat.HistoryLimit,
		}),
		Listings: listings.New(st, uploader, &logger),
		Profiles: profiles.New(st, authService, uploader, &logger),
		Wishlist: wishlist.New(st),
	}, cfg, &logger)
	t.Cleanup(stop)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, auth: authService, store: st, stopHub: cancel}
}

// signUp creates an account and returns its token and user ID.
func (e *testEnv) signUp(t *testing.T, name string) (string, string) {
	t.Helper()

	token, err := e.auth.SignUp(context.Background(), name, name+"@example.com", "password123")
	if err != nil {
		t.Fatalf("sign up %s: %v", name, err)
	}
	claims, err := e.auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	return token, claims.UserID
}

func (e *testEnv) send(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// do sends a JSON request and decodes a successful JSON response into out when out is non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()

	resp := e.send(t, method, path, token, body)
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

// doError sends a request that is expected to fail with wantStatus and returns the error code.
func (e *testEnv) doError(t *testing.T, method, path, token string, body any, wantStatus int) string {
	t.Helper()

	resp := e.send(t, method, path, token, body)
	if resp.StatusCode != wantStatus {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, wantStatus, resp.StatusCode, raw)
	}
	var errResp proto.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return errResp.Code
}

func sampleListing() ListingRequest {
	return ListingRequest{
		Name:        "Sepeda lipat",
		Description: "Jarang dipakai",
		Price:       1500000,
		Category:    proto.Category{Primary: "Hobi", Secondary: "Sepeda"},
		Location:    proto.Location{Province: "DKI Jakarta", City: "Jakarta Selatan", Latitude: -6.26, Longitude: 106.81},
		Contact:     proto.Contact{Chat: true},
	}
}

// createListing publishes sampleListing as the owner of token.
func (e *testEnv) createListing(t *testing.T, token string) proto.ListingRecord {
	t.Helper()

	var rec proto.ListingRecord
	if status := e.do(t, http.MethodPost, "/api/listings", token, sampleListing(), &rec); status != http.StatusCreated {
		t.Fatalf("create listing: status %d", status)
	}
	return rec
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
