package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vovakirdan/marketchat/internal/store"
)

const (
	minPasswordLen = 6
	maxNameLen     = 64
)

var (
	// ErrInvalidCredentials is returned when email/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to sign up with a registered email.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidName is returned when the display name is empty or too long.
	ErrInvalidName = errors.New("invalid name")
	// ErrInvalidEmail is returned when the email cannot be parsed.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Service provides authentication operations.
type Service struct {
	store       store.ProfileStore
	jwtConfig   *JWTConfig
	adminEmails map[string]struct{}
	now         func() time.Time
}

// NewService creates a new authentication service. Profiles signing up with one of
// adminEmails get the admin role.
func NewService(profiles store.ProfileStore, jwtConfig *JWTConfig, adminEmails []string) *Service {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		if e = normalizeEmail(e); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &Service{
		store:       profiles,
		jwtConfig:   jwtConfig,
		adminEmails: admins,
		now:         time.Now,
	}
}

// SignUp creates a profile with a hashed password and returns a JWT token.
func (s *Service) SignUp(ctx context.Context, name, email, password string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLen {
		return "", ErrInvalidName
	}
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrInvalidEmail
	}
	if err := ValidatePassword(password); err != nil {
		return "", err
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	role := store.RoleUser
	if _, ok := s.adminEmails[email]; ok {
		role = store.RoleAdmin
	}

	profile := &store.Profile{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateProfile(ctx, profile); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return "", ErrUserExists
		}
		return "", fmt.Errorf("create profile: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, profile.ID, profile.Email, string(profile.Role))
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// SignIn validates credentials, records the login and returns a JWT token.
func (s *Service) SignIn(ctx context.Context, email, password string) (string, error) {
	profile, err := s.store.GetProfileByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if errPwd := ComparePassword(profile.PasswordHash, password); errPwd != nil {
		return "", ErrInvalidCredentials
	}

	if err := s.store.TouchLastLogin(ctx, profile.ID, s.now()); err != nil {
		return "", fmt.Errorf("touch last login: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, profile.ID, profile.Email, string(profile.Role))
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ChangePassword replaces the password of userID.
func (s *Service) ChangePassword(ctx context.Context, userID, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
