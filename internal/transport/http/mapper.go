package http

import (
	"time"

	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/proto"
	"github.com/vovakirdan/marketchat/internal/service/listings"
	"github.com/vovakirdan/marketchat/internal/store"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func messageRecord(m *store.ChatMessage) proto.MessageRecord {
	return proto.MessageRecord{
		ID:        m.ID,
		SessionID: m.SessionID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		Timestamp: formatTime(m.CreatedAt),
	}
}

func messageRecordFromCore(m core.Message) proto.MessageRecord {
	return proto.MessageRecord{
		ID:        m.ID,
		SessionID: m.SessionID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		Timestamp: formatTime(m.CreatedAt),
	}
}

func sessionRecord(s *store.ChatSession) proto.SessionRecord {
	return proto.SessionRecord{
		ID:                   s.ID,
		ListingID:            s.ListingID,
		BuyerID:              s.BuyerID,
		SellerID:             s.SellerID,
		ListingName:          s.ListingName,
		ListingImageURL:      s.ListingImageURL,
		LastMessage:          s.LastMessage,
		LastMessageTimestamp: formatTimePtr(s.LastMessageAt),
	}
}

// profileRecord renders p. Private fields are included only for the owner.
func profileRecord(p *store.Profile, owner bool) proto.ProfileRecord {
	rec := proto.ProfileRecord{
		ID:             p.ID,
		Name:           p.Name,
		AvatarURL:      p.AvatarURL,
		WhatsappNumber: p.WhatsappNumber,
		Role:           string(p.Role),
		MemberSince:    formatTime(p.CreatedAt),
		LastLogin:      formatTimePtr(p.LastLoginAt),
		ItemsSold:      p.ItemsSold,
	}
	if owner {
		rec.Email = p.Email
		rec.Wishlist = p.Wishlist
	}
	return rec
}

// adminProfileRecord renders p for administrators, who see every member's email.
func adminProfileRecord(p *store.Profile) proto.ProfileRecord {
	rec := profileRecord(p, false)
	rec.Email = p.Email
	return rec
}

func listingRecord(l *store.Listing, distanceKM *float64) proto.ListingRecord {
	images := l.ImageURLs
	if images == nil {
		images = []string{}
	}
	return proto.ListingRecord{
		ID:          l.ID,
		SellerID:    l.SellerID,
		Name:        l.Name,
		Description: l.Description,
		Price:       l.Price,
		ImageURLs:   images,
		Category: proto.Category{
			Primary:   l.CategoryPrimary,
			Secondary: l.CategorySecondary,
		},
		Location: proto.Location{
			Province:  l.Province,
			City:      l.City,
			Latitude:  l.Latitude,
			Longitude: l.Longitude,
		},
		Contact: proto.Contact{
			Chat:     l.ContactChat,
			Whatsapp: l.ContactWhatsapp,
		},
		PostedDate: formatTime(l.CreatedAt),
		DistanceKM: distanceKM,
	}
}

func listingRecords(ls []*store.Listing) []proto.ListingRecord {
	out := make([]proto.ListingRecord, 0, len(ls))
	for _, l := range ls {
		out = append(out, listingRecord(l, nil))
	}
	return out
}

func listingResults(rs []listings.Result) []proto.ListingRecord {
	out := make([]proto.ListingRecord, 0, len(rs))
	for _, r := range rs {
		out = append(out, listingRecord(r.Listing, r.DistanceKM))
	}
	return out
}

func listingInput(req ListingRequest) listings.Input {
	return listings.Input{
		Name:              req.Name,
		Description:       req.Description,
		Price:             req.Price,
		Images:            req.Images,
		CategoryPrimary:   req.Category.Primary,
		CategorySecondary: req.Category.Secondary,
		Province:          req.Location.Province,
		City:              req.Location.City,
		Latitude:          req.Location.Latitude,
		Longitude:         req.Location.Longitude,
		ContactChat:       req.Contact.Chat,
		ContactWhatsapp:   req.Contact.Whatsapp,
	}
}
