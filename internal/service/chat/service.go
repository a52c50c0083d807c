package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/store"
)

// Common errors for chat operations.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrListingNotFound = errors.New("listing not found")
	ErrNotParticipant  = errors.New("not a participant in this session")
	ErrSellerMismatch  = errors.New("seller does not own this listing")
	ErrCannotChatSelf  = errors.New("cannot start a chat about your own listing")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrMessageTooLong  = errors.New("message is too long")
)

// Publisher receives every appended message for realtime delivery.
type Publisher interface {
	Publish(ctx context.Context, msg core.Message)
}

// Options bounds messages and history pages.
type Options struct {
	MaxMessageLength int
	HistoryLimit     int
}

// Service provides chat session and message business logic.
type Service struct {
	store store.Store
	hub   Publisher
	opts  Options
}

// New creates a chat Service. hub may be nil when nothing streams messages.
func New(st store.Store, hub Publisher, opts Options) *Service {
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 2000
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 500
	}
	return &Service{store: st, hub: hub, opts: opts}
}

// FindOrCreateSession returns the caller's session about a listing, creating it when absent.
// The caller is the buyer.
func (s *Service) FindOrCreateSession(ctx context.Context, buyerID string, listingID int64, sellerID string) (*store.ChatSession, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("get listing: %w", err)
	}
	if listing.SellerID != sellerID {
		return nil, ErrSellerMismatch
	}
	if buyerID == sellerID {
		return nil, ErrCannotChatSelf
	}

	session, err := s.store.FindOrCreateSession(ctx, listingID, buyerID, sellerID)
	if err != nil {
		return nil, fmt.Errorf("find or create session: %w", err)
	}
	return session, nil
}

// GetSession returns a session the user participates in.
func (s *Service) GetSession(ctx context.Context, userID string, sessionID int64) (*store.ChatSession, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if !IsParticipant(session, userID) {
		return nil, ErrNotParticipant
	}
	return session, nil
}

// ListSessions lists the user's sessions, most recent activity first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]*store.ChatSession, error) {
	sessions, err := s.store.ListSessionsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// History returns one page of messages in chronological order.
// A non-positive or oversized limit is clamped to the configured history limit.
func (s *Service) History(ctx context.Context, userID string, sessionID int64, limit int, beforeID *int64) ([]*store.ChatMessage, error) {
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.opts.HistoryLimit {
		limit = s.opts.HistoryLimit
	}
	messages, err := s.store.ListMessages(ctx, sessionID, limit, beforeID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// Replay returns every message of the session in chronological order.
// Access is not checked; callers resolve the session first.
func (s *Service) Replay(ctx context.Context, sessionID int64) ([]*store.ChatMessage, error) {
	var pages [][]*store.ChatMessage
	var before *int64
	for {
		page, err := s.store.ListMessages(ctx, sessionID, s.opts.HistoryLimit, before)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		if len(page) == 0 {
			break
		}
		pages = append(pages, page)
		if len(page) < s.opts.HistoryLimit {
			break
		}
		oldest := page[0].ID
		before = &oldest
	}

	var all []*store.ChatMessage
	for i := len(pages) - 1; i >= 0; i-- {
		all = append(all, pages[i]...)
	}
	return all, nil
}

// Append stores a message from userID and publishes it to open streams.
func (s *Service) Append(ctx context.Context, userID string, sessionID int64, text string) (*store.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > s.opts.MaxMessageLength {
		return nil, ErrMessageTooLong
	}
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	msg := &store.ChatMessage{SessionID: sessionID, SenderID: userID, Text: text}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("append message: %w", err)
	}

	if s.hub != nil {
		s.hub.Publish(ctx, ToCore(msg))
	}
	return msg, nil
}

// IsParticipant reports whether userID is the buyer or the seller of session.
func IsParticipant(session *store.ChatSession, userID string) bool {
	return userID != "" && (session.BuyerID == userID || session.SellerID == userID)
}

// ToCore converts a stored message to its realtime form.
func ToCore(msg *store.ChatMessage) core.Message {
	return core.Message{
		ID:        msg.ID,
		SessionID: msg.SessionID,
		SenderID:  msg.SenderID,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
	}
}
