package chatsync

import (
	"context"
	"time"
)

// Session is a conversation about one listing between its buyer and seller.
type Session struct {
	ID              int64
	ListingID       int64
	BuyerID         string
	SellerID        string
	ListingName     string
	ListingImageURL string
	LastMessage     string
	LastMessageAt   *time.Time
}

// Counterpart returns the participant that is not userID.
// The second result is false when userID is not a participant at all.
func (s *Session) Counterpart(userID string) (string, bool) {
	switch userID {
	case s.BuyerID:
		return s.SellerID, true
	case s.SellerID:
		return s.BuyerID, true
	default:
		return "", false
	}
}

// Message is one immutable chat message. ID and Timestamp are assigned by the transport.
type Message struct {
	ID        int64
	SessionID int64
	SenderID  string
	Text      string
	Timestamp time.Time
}

// Profile is the display data of a chat participant.
type Profile struct {
	ID             string
	Name           string
	AvatarURL      string
	WhatsappNumber string
}

// SessionDirectory resolves chat sessions.
type SessionDirectory interface {
	// GetSession returns the session or an error wrapping ErrNotFound.
	GetSession(ctx context.Context, sessionID int64) (*Session, error)

	// FindOrCreateSession returns the session for (listingID, buyerID), creating it when absent.
	// Implementations must make this an atomic upsert.
	FindOrCreateSession(ctx context.Context, listingID int64, buyerID, sellerID string) (*Session, error)
}

// ProfileStore resolves user profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}

// MessageStream is the message transport for a session.
type MessageStream interface {
	// FetchHistory returns every stored message of the session, in no particular order.
	FetchHistory(ctx context.Context, sessionID int64) ([]Message, error)

	// Subscribe opens a live subscription. It delivers historical messages first and then
	// every newly appended message.
	Subscribe(ctx context.Context, sessionID int64) (Subscription, error)

	// Append durably stores a new message and returns it as assigned by the transport.
	Append(ctx context.Context, sessionID int64, senderID, text string) (*Message, error)
}

// Subscription is a cancellable producer of message events.
type Subscription interface {
	// Messages is closed when the subscription ends for any reason.
	Messages() <-chan Message

	// Err reports why Messages was closed. It is nil after Close.
	Err() error

	// Close stops delivery and releases transport resources. Safe to call more than once.
	Close() error
}

// Capabilities bundles the collaborators a Controller depends on.
type Capabilities struct {
	Sessions SessionDirectory
	Profiles ProfileStore
	Stream   MessageStream
}
