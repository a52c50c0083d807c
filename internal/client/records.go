package client

import (
	"fmt"
	"time"

	"github.com/vovakirdan/marketchat/internal/chatsync"
	"github.com/vovakirdan/marketchat/internal/proto"
)

func parseTimestamp(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q: %w", ErrMalformedRecord, field, raw, err)
	}
	return t, nil
}

func toSession(rec proto.SessionRecord) (*chatsync.Session, error) {
	if rec.ID <= 0 || rec.ListingID <= 0 || rec.BuyerID == "" || rec.SellerID == "" {
		return nil, fmt.Errorf("%w: session %d lacks ids", ErrMalformedRecord, rec.ID)
	}
	s := &chatsync.Session{
		ID:              rec.ID,
		ListingID:       rec.ListingID,
		BuyerID:         rec.BuyerID,
		SellerID:        rec.SellerID,
		ListingName:     rec.ListingName,
		ListingImageURL: rec.ListingImageURL,
	}
	if rec.LastMessage != nil {
		s.LastMessage = *rec.LastMessage
	}
	if rec.LastMessageTimestamp != nil {
		t, err := parseTimestamp("last_message_timestamp", *rec.LastMessageTimestamp)
		if err != nil {
			return nil, err
		}
		s.LastMessageAt = &t
	}
	return s, nil
}

func toMessage(rec proto.MessageRecord) (chatsync.Message, error) {
	if rec.ID <= 0 || rec.SessionID <= 0 || rec.SenderID == "" {
		return chatsync.Message{}, fmt.Errorf("%w: message %d lacks ids", ErrMalformedRecord, rec.ID)
	}
	ts, err := parseTimestamp("timestamp", rec.Timestamp)
	if err != nil {
		return chatsync.Message{}, err
	}
	return chatsync.Message{
		ID:        rec.ID,
		SessionID: rec.SessionID,
		SenderID:  rec.SenderID,
		Text:      rec.Text,
		Timestamp: ts,
	}, nil
}

func toProfile(rec proto.ProfileRecord) (*chatsync.Profile, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("%w: profile lacks id", ErrMalformedRecord)
	}
	return &chatsync.Profile{
		ID:             rec.ID,
		Name:           rec.Name,
		AvatarURL:      rec.AvatarURL,
		WhatsappNumber: rec.WhatsappNumber,
	}, nil
}
