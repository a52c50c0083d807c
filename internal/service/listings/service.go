package listings

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/marketchat/internal/geo"
	"github.com/vovakirdan/marketchat/internal/media"
	"github.com/vovakirdan/marketchat/internal/store"
)

const (
	maxImages      = 10
	similarLimit   = 4
	imageKeyPrefix = "listings"
)

// Common errors for listing operations.
var (
	ErrListingNotFound = errors.New("listing not found")
	ErrForbidden       = errors.New("only the seller or an admin may change this listing")
	ErrInvalidListing  = errors.New("invalid listing")
)

// Input is the editable content of a listing. Images are stored URLs or image data URLs.
type Input struct {
	Name              string
	Description       string
	Price             int64
	Images            []string
	CategoryPrimary   string
	CategorySecondary string
	Province          string
	City              string
	Latitude          float64
	Longitude         float64
	ContactChat       bool
	ContactWhatsapp   string
}

// Actor is the authenticated user performing a change.
type Actor struct {
	ID    string
	Admin bool
}

// Query filters a listing search. Results are nearest first when Origin is set.
type Query struct {
	Filter store.ListingFilter
	Origin *geo.Point
}

// Result is a listing with its distance from the query origin, if any.
type Result struct {
	Listing    *store.Listing
	DistanceKM *float64
}

// Service provides listing management business logic.
type Service struct {
	store  store.ListingStore
	images *media.Uploader
	log    *zerolog.Logger
}

// New creates a listing Service.
func New(st store.ListingStore, images *media.Uploader, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{store: st, images: images, log: logger}
}

// Create stores a new listing owned by sellerID.
func (s *Service) Create(ctx context.Context, sellerID string, in Input) (*store.Listing, error) {
	in = normalize(in)
	if err := validate(in); err != nil {
		return nil, err
	}

	urls, err := s.storeImages(ctx, in.Images)
	if err != nil {
		return nil, err
	}

	l := &store.Listing{SellerID: sellerID}
	apply(l, in, urls)
	if err := s.store.CreateListing(ctx, l); err != nil {
		s.discard(ctx, urls, nil)
		return nil, fmt.Errorf("create listing: %w", err)
	}
	return l, nil
}

// Get returns a listing by ID.
func (s *Service) Get(ctx context.Context, id int64) (*store.Listing, error) {
	l, err := s.store.GetListing(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

// Update replaces the content of a listing. Images dropped by the update are deleted.
func (s *Service) Update(ctx context.Context, actor Actor, id int64, in Input) (*store.Listing, error) {
	l, err := s.authorize(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	in = normalize(in)
	if err := validate(in); err != nil {
		return nil, err
	}

	urls, err := s.storeImages(ctx, in.Images)
	if err != nil {
		return nil, err
	}

	previous := l.ImageURLs
	apply(l, in, urls)
	if err := s.store.UpdateListing(ctx, l); err != nil {
		s.discard(ctx, urls, previous)
		return nil, fmt.Errorf("update listing: %w", err)
	}
	s.discard(ctx, previous, urls)
	return l, nil
}

// Delete removes a listing with its chats and images.
func (s *Service) Delete(ctx context.Context, actor Actor, id int64) error {
	l, err := s.authorize(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteListing(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrListingNotFound
		}
		return fmt.Errorf("delete listing: %w", err)
	}
	s.discard(ctx, l.ImageURLs, nil)
	return nil
}

// List searches listings. With an origin the limit keeps the nearest matches, not the newest.
func (s *Service) List(ctx context.Context, q Query) ([]Result, error) {
	nearest := q.Origin != nil && q.Origin.Valid()
	filter := q.Filter
	if nearest {
		filter.Limit = 0
	}
	found, err := s.store.ListListings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}

	results := make([]Result, len(found))
	for i, l := range found {
		results[i] = Result{Listing: l}
	}
	if !nearest {
		return results, nil
	}

	distances := geo.SortByDistance(results, *q.Origin, func(r Result) geo.Point {
		return geo.Point{Lat: r.Listing.Latitude, Lon: r.Listing.Longitude}
	})
	if limit := q.Filter.Limit; limit > 0 && len(results) > limit {
		results, distances = results[:limit], distances[:limit]
	}
	for i := range results {
		d := distances[i]
		results[i].DistanceKM = &d
	}
	return results, nil
}

// Similar returns a few other listings from the same subcategory.
func (s *Service) Similar(ctx context.Context, id int64) ([]*store.Listing, error) {
	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	found, err := s.store.ListListings(ctx, store.ListingFilter{
		CategoryPrimary:   l.CategoryPrimary,
		CategorySecondary: l.CategorySecondary,
		Limit:             similarLimit + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("list similar: %w", err)
	}
	found = slices.DeleteFunc(found, func(other *store.Listing) bool { return other.ID == l.ID })
	if len(found) > similarLimit {
		found = found[:similarLimit]
	}
	return found, nil
}

func (s *Service) authorize(ctx context.Context, actor Actor, id int64) (*store.Listing, error) {
	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && l.SellerID != actor.ID {
		return nil, ErrForbidden
	}
	return l, nil
}

// storeImages uploads data URLs and passes stored URLs through.
func (s *Service) storeImages(ctx context.Context, images []string) ([]string, error) {
	urls := make([]string, 0, len(images))
	for _, img := range images {
		if !media.IsDataURL(img) {
			urls = append(urls, img)
			continue
		}
		if s.images == nil {
			s.discard(ctx, urls, images)
			return nil, fmt.Errorf("%w: image uploads are disabled", ErrInvalidListing)
		}
		url, err := s.images.StoreDataURL(ctx, imageKeyPrefix, img)
		if err != nil {
			s.discard(ctx, urls, images)
			return nil, fmt.Errorf("%w: %w", ErrInvalidListing, err)
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// discard deletes stored images in urls that are not in keep.
func (s *Service) discard(ctx context.Context, urls, keep []string) {
	if s.images == nil {
		return
	}
	for _, url := range urls {
		if slices.Contains(keep, url) {
			continue
		}
		if err := s.images.Delete(ctx, url); err != nil {
			s.log.Warn().Err(err).Str("url", url).Msg("failed to delete listing image")
		}
	}
}

func normalize(in Input) Input {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.CategoryPrimary = strings.TrimSpace(in.CategoryPrimary)
	in.CategorySecondary = strings.TrimSpace(in.CategorySecondary)
	in.Province = strings.TrimSpace(in.Province)
	in.City = strings.TrimSpace(in.City)
	in.ContactWhatsapp = strings.TrimSpace(in.ContactWhatsapp)
	in.Images = slices.DeleteFunc(slices.Clone(in.Images), func(s string) bool {
		return strings.TrimSpace(s) == ""
	})
	return in
}

func validate(in Input) error {
	switch {
	case in.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidListing)
	case in.Price <= 0:
		return fmt.Errorf("%w: price must be positive", ErrInvalidListing)
	case in.CategoryPrimary == "" || in.CategorySecondary == "":
		return fmt.Errorf("%w: category and subcategory are required", ErrInvalidListing)
	case in.Province == "" || in.City == "":
		return fmt.Errorf("%w: province and city are required", ErrInvalidListing)
	case len(in.Images) > maxImages:
		return fmt.Errorf("%w: at most %d images", ErrInvalidListing, maxImages)
	case !in.ContactChat && in.ContactWhatsapp == "":
		return fmt.Errorf("%w: at least one contact method is required", ErrInvalidListing)
	case !(geo.Point{Lat: in.Latitude, Lon: in.Longitude}).Valid():
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidListing)
	}
	return nil
}

func apply(l *store.Listing, in Input, urls []string) {
	l.Name = in.Name
	l.Description = in.Description
	l.Price = in.Price
	l.ImageURLs = urls
	l.CategoryPrimary = in.CategoryPrimary
	l.CategorySecondary = in.CategorySecondary
	l.Province = in.Province
	l.City = in.City
	l.Latitude = in.Latitude
	l.Longitude = in.Longitude
	l.ContactChat = in.ContactChat
	l.ContactWhatsapp = in.ContactWhatsapp
}
