package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/marketchat/internal/media"
	"github.com/vovakirdan/marketchat/internal/store"
)

const avatarKeyPrefix = "avatars"

// Common errors for profile operations.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidProfile  = errors.New("invalid profile")
)

// PasswordChanger replaces a user's password.
type PasswordChanger interface {
	ChangePassword(ctx context.Context, userID, password string) error
}

// Update lists the fields to change. Nil fields are left alone.
// Avatar is an image data URL, or empty to remove the avatar.
type Update struct {
	Name           *string
	WhatsappNumber *string
	Avatar         *string
	Password       *string
}

// Service provides profile business logic.
type Service struct {
	store     store.ProfileStore
	passwords PasswordChanger
	images    *media.Uploader
	log       *zerolog.Logger
}

// New creates a profile Service.
func New(st store.ProfileStore, passwords PasswordChanger, images *media.Uploader, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{store: st, passwords: passwords, images: images, log: logger}
}

// Get returns a profile by ID.
func (s *Service) Get(ctx context.Context, id string) (*store.Profile, error) {
	p, err := s.store.GetProfileByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// List returns every profile for administration.
func (s *Service) List(ctx context.Context) ([]*store.Profile, error) {
	ps, err := s.store.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return ps, nil
}

// Update applies upd to the profile of id and returns the result.
func (s *Service) Update(ctx context.Context, id string, upd Update) (*store.Profile, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var change store.ProfileUpdate
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidProfile)
		}
		change.Name = &name
	}
	if upd.WhatsappNumber != nil {
		number, err := NormalizeWhatsapp(*upd.WhatsappNumber)
		if err != nil {
			return nil, err
		}
		change.WhatsappNumber = &number
	}

	replacedAvatar := ""
	if upd.Avatar != nil {
		url, err := s.storeAvatar(ctx, *upd.Avatar)
		if err != nil {
			return nil, err
		}
		change.AvatarURL = &url
		replacedAvatar = current.AvatarURL
	}

	if upd.Password != nil && s.passwords != nil {
		if err := s.passwords.ChangePassword(ctx, id, *upd.Password); err != nil {
			if change.AvatarURL != nil {
				s.deleteImage(ctx, *change.AvatarURL)
			}
			return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
		}
	}

	updated, err := s.store.UpdateProfile(ctx, id, change)
	if err != nil {
		if change.AvatarURL != nil {
			s.deleteImage(ctx, *change.AvatarURL)
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if replacedAvatar != "" && replacedAvatar != updated.AvatarURL {
		s.deleteImage(ctx, replacedAvatar)
	}
	return updated, nil
}

func (s *Service) storeAvatar(ctx context.Context, avatar string) (string, error) {
	avatar = strings.TrimSpace(avatar)
	if avatar == "" {
		return "", nil
	}
	if !media.IsDataURL(avatar) {
		return "", fmt.Errorf("%w: avatar must be an image data url", ErrInvalidProfile)
	}
	if s.images == nil {
		return "", fmt.Errorf("%w: image uploads are disabled", ErrInvalidProfile)
	}
	url, err := s.images.StoreDataURL(ctx, avatarKeyPrefix, avatar)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	return url, nil
}

func (s *Service) deleteImage(ctx context.Context, url string) {
	if s.images == nil {
		return
	}
	if err := s.images.Delete(ctx, url); err != nil {
		s.log.Warn().Err(err).Str("url", url).Msg("failed to delete avatar")
	}
}

// NormalizeWhatsapp strips formatting from a phone number and checks that
// what remains is 8 to 15 digits. An empty number is allowed and clears it.
func NormalizeWhatsapp(number string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimPrefix(strings.TrimSpace(number), "+") {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", fmt.Errorf("%w: whatsapp number may only contain digits", ErrInvalidProfile)
		}
	}
	digits := b.String()
	if digits != "" && (len(digits) < 8 || len(digits) > 15) {
		return "", fmt.Errorf("%w: whatsapp number must have 8 to 15 digits", ErrInvalidProfile)
	}
	return digits, nil
}
