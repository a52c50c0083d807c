package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is wrapped by every lookup that matches no row.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique constraint rejects a write.
var ErrConflict = errors.New("conflict")

// Role is a profile's authorization role.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Profile represents a marketplace user.
type Profile struct {
	ID             string // UUID
	Name           string
	Email          string
	PasswordHash   string
	Role           Role
	AvatarURL      string
	WhatsappNumber string
	ItemsSold      int
	Wishlist       []int64
	CreatedAt      time.Time
	LastLoginAt    *time.Time
}

// ProfileUpdate holds the mutable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name           *string
	AvatarURL      *string
	WhatsappNumber *string
}

// Listing represents a product offered by a seller.
type Listing struct {
	ID                int64
	SellerID          string
	Name              string
	Description       string
	Price             int64
	ImageURLs         []string
	CategoryPrimary   string
	CategorySecondary string
	Province          string
	City              string
	Latitude          float64
	Longitude         float64
	ContactChat       bool
	ContactWhatsapp   string
	CreatedAt         time.Time
}

// ListingFilter narrows ListListings. Zero fields do not filter.
type ListingFilter struct {
	Query             string // case-insensitive substring of the name
	CategoryPrimary   string
	CategorySecondary string
	Province          string
	City              string
	MinPrice          int64
	MaxPrice          int64
	SellerID          string
	Limit             int
}

// ChatSession is the conversation between a listing's buyer and its seller.
type ChatSession struct {
	ID              int64
	ListingID       int64
	BuyerID         string
	SellerID        string
	ListingName     string // joined from listings
	ListingImageURL string // first listing image
	LastMessage     *string
	LastMessageAt   *time.Time
	CreatedAt       time.Time
}

// ChatMessage represents a persisted chat message.
type ChatMessage struct {
	ID        int64
	SessionID int64
	SenderID  string
	Text      string
	CreatedAt time.Time
}

// ProfileStore handles profile persistence.
type ProfileStore interface {
	// CreateProfile inserts a new profile. Returns ErrConflict when the email is taken.
	CreateProfile(ctx context.Context, p *Profile) error

	// GetProfileByID retrieves a profile by ID.
	GetProfileByID(ctx context.Context, id string) (*Profile, error)

	// GetProfileByEmail retrieves a profile by email.
	GetProfileByEmail(ctx context.Context, email string) (*Profile, error)

	// UpdateProfile applies the non-nil fields of upd.
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*Profile, error)

	UpdatePasswordHash(ctx context.Context, id, hash string) error

	TouchLastLogin(ctx context.Context, id string, at time.Time) error

	// SetWishlist replaces the wishlist.
	SetWishlist(ctx context.Context, id string, listingIDs []int64) error

	// ListProfiles returns every profile, newest member first.
	ListProfiles(ctx context.Context) ([]*Profile, error)
}

// ListingStore handles listing persistence.
type ListingStore interface {
	CreateListing(ctx context.Context, l *Listing) error
	GetListing(ctx context.Context, id int64) (*Listing, error)
	UpdateListing(ctx context.Context, l *Listing) error

	// DeleteListing removes the listing together with its chat sessions and messages.
	DeleteListing(ctx context.Context, id int64) error

	// ListListings returns listings matching the filter, newest first.
	ListListings(ctx context.Context, filter ListingFilter) ([]*Listing, error)
}

// ChatStore handles chat session and message persistence.
type ChatStore interface {
	// FindOrCreateSession returns the session for (listingID, buyerID), creating it when absent.
	// Concurrent callers always observe the same session.
	FindOrCreateSession(ctx context.Context, listingID int64, buyerID, sellerID string) (*ChatSession, error)

	// GetSession retrieves a session with its listing name and first image.
	GetSession(ctx context.Context, id int64) (*ChatSession, error)

	// ListSessionsForUser lists sessions where userID is buyer or seller, most recent activity first.
	ListSessionsForUser(ctx context.Context, userID string) ([]*ChatSession, error)

	// AppendMessage persists msg and updates the session's last message in one transaction.
	// ID and CreatedAt are assigned.
	AppendMessage(ctx context.Context, msg *ChatMessage) error

	// ListMessages returns up to limit messages in chronological order.
	// If beforeID is provided, returns messages older than that ID.
	ListMessages(ctx context.Context, sessionID int64, limit int, beforeID *int64) ([]*ChatMessage, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	ProfileStore
	ListingStore
	ChatStore

	// Close closes the underlying database connection.
	Close() error
}
