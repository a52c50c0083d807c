package proto

// Timestamps on the wire are RFC 3339 strings with nanoseconds, in UTC.

// MessageRecord is a stored chat message.
type MessageRecord struct {
	ID        int64  `json:"id"`
	SessionID int64  `json:"session_id"`
	SenderID  string `json:"sender_id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// SessionRecord is a chat session with its listing summary.
type SessionRecord struct {
	ID                   int64   `json:"id"`
	ListingID            int64   `json:"listing_id"`
	BuyerID              string  `json:"buyer_id"`
	SellerID             string  `json:"seller_id"`
	ListingName          string  `json:"listing_name"`
	ListingImageURL      string  `json:"listing_image_url,omitempty"`
	LastMessage          *string `json:"last_message,omitempty"`
	LastMessageTimestamp *string `json:"last_message_timestamp,omitempty"`
}

// ProfileRecord is a user profile. Email and Wishlist are only set for the owner.
type ProfileRecord struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	AvatarURL      string  `json:"avatar_url,omitempty"`
	WhatsappNumber string  `json:"whatsapp_number,omitempty"`
	Role           string  `json:"role"`
	MemberSince    string  `json:"member_since"`
	LastLogin      *string `json:"last_login,omitempty"`
	ItemsSold      int     `json:"items_sold"`
	Email          string  `json:"email,omitempty"`
	Wishlist       []int64 `json:"wishlist,omitempty"`
}

// Category is the two-level listing category.
type Category struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
}

// Location is where a listing is offered.
type Location struct {
	Province  string  `json:"province"`
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Contact lists the channels a seller accepts.
type Contact struct {
	Chat     bool   `json:"chat"`
	Whatsapp string `json:"whatsapp,omitempty"`
}

// ListingRecord is a marketplace listing.
type ListingRecord struct {
	ID          int64    `json:"id"`
	SellerID    string   `json:"seller_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       int64    `json:"price"`
	ImageURLs   []string `json:"image_urls"`
	Category    Category `json:"category"`
	Location    Location `json:"location"`
	Contact     Contact  `json:"contact"`
	PostedDate  string   `json:"posted_date"`
	DistanceKM  *float64 `json:"distance_km,omitempty"`
}

// TokenResponse is returned by sign-up and login.
type TokenResponse struct {
	Token string `json:"token"`
}

// CreateChatRequest resolves or creates the caller's session for a listing.
type CreateChatRequest struct {
	ListingID int64  `json:"listing_id" binding:"required"`
	SellerID  string `json:"seller_id" binding:"required"`
}

// SendMessageRequest appends a message to a session.
type SendMessageRequest struct {
	SenderID string `json:"sender_id"`
	Text     string `json:"text"`
}

// ErrorResponse is the body of every non-2xx REST response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
