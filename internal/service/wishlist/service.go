package wishlist

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/vovakirdan/marketchat/internal/store"
)

// Common errors for wishlist operations.
var (
	ErrListingNotFound = errors.New("listing not found")
	ErrProfileNotFound = errors.New("profile not found")
)

// Service keeps the per-user list of saved listings.
type Service struct {
	store store.Store
}

// New creates a wishlist Service.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// Toggle adds the listing to the user's wishlist, or removes it when already present.
// It returns the updated profile and whether the listing is now saved.
func (s *Service) Toggle(ctx context.Context, userID string, listingID int64) (*store.Profile, bool, error) {
	p, err := s.profile(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	saved := !slices.Contains(p.Wishlist, listingID)
	if saved {
		if _, err := s.store.GetListing(ctx, listingID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, false, ErrListingNotFound
			}
			return nil, false, fmt.Errorf("get listing: %w", err)
		}
		p.Wishlist = append(p.Wishlist, listingID)
	} else {
		p.Wishlist = slices.DeleteFunc(p.Wishlist, func(id int64) bool { return id == listingID })
	}

	if err := s.store.SetWishlist(ctx, userID, p.Wishlist); err != nil {
		return nil, false, fmt.Errorf("set wishlist: %w", err)
	}
	return p, saved, nil
}

// Listings returns the saved listings that still exist, in the order they were saved.
func (s *Service) Listings(ctx context.Context, userID string) ([]*store.Listing, error) {
	p, err := s.profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	listings := make([]*store.Listing, 0, len(p.Wishlist))
	for _, id := range p.Wishlist {
		l, err := s.store.GetListing(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get listing %d: %w", id, err)
		}
		listings = append(listings, l)
	}
	return listings, nil
}

func (s *Service) profile(ctx context.Context, userID string) (*store.Profile, error) {
	p, err := s.store.GetProfileByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}
