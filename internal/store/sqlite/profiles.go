package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/marketchat/internal/store"
)

const profileColumns = `id, name, email, password_hash, role, avatar_url, whatsapp_number,
	items_sold, wishlist, created_at, last_login_at`

// CreateProfile inserts a new profile. CreatedAt is set when zero.
func (s *SQLiteStore) CreateProfile(ctx context.Context, p *store.Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Role == "" {
		p.Role = store.RoleUser
	}
	if p.Wishlist == nil {
		p.Wishlist = []int64{}
	}
	wishlist, err := encodeJSON(p.Wishlist)
	if err != nil {
		return fmt.Errorf("encode wishlist: %w", err)
	}

	query := `
		INSERT INTO profiles (id, name, email, password_hash, role, avatar_url, whatsapp_number,
			items_sold, wishlist, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query, p.ID, p.Name, p.Email, p.PasswordHash, p.Role,
		p.AvatarURL, p.WhatsappNumber, p.ItemsSold, wishlist, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert profile %s: %w", p.Email, store.ErrConflict)
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// GetProfileByID retrieves a profile by ID.
func (s *SQLiteStore) GetProfileByID(ctx context.Context, id string) (*store.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = ?`
	p, err := scanProfile(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return p, nil
}

// GetProfileByEmail retrieves a profile by email, case-insensitively.
func (s *SQLiteStore) GetProfileByEmail(ctx context.Context, email string) (*store.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE LOWER(email) = LOWER(?)`
	p, err := scanProfile(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", email, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return p, nil
}

// UpdateProfile applies the non-nil fields of upd and returns the stored profile.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, id string, upd store.ProfileUpdate) (*store.Profile, error) {
	query := `
		UPDATE profiles SET
			name = COALESCE(?, name),
			avatar_url = COALESCE(?, avatar_url),
			whatsapp_number = COALESCE(?, whatsapp_number)
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, upd.Name, upd.AvatarURL, upd.WhatsappNumber, id)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if err := expectAffected(result, "profile", id); err != nil {
		return nil, err
	}
	return s.GetProfileByID(ctx, id)
}

// UpdatePasswordHash replaces the stored password hash.
func (s *SQLiteStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE profiles SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectAffected(result, "profile", id)
}

// TouchLastLogin records a successful sign-in.
func (s *SQLiteStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE profiles SET last_login_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return expectAffected(result, "profile", id)
}

// SetWishlist replaces the wishlist.
func (s *SQLiteStore) SetWishlist(ctx context.Context, id string, listingIDs []int64) error {
	if listingIDs == nil {
		listingIDs = []int64{}
	}
	raw, err := encodeJSON(listingIDs)
	if err != nil {
		return fmt.Errorf("encode wishlist: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `UPDATE profiles SET wishlist = ? WHERE id = ?`, raw, id)
	if err != nil {
		return fmt.Errorf("update wishlist: %w", err)
	}
	return expectAffected(result, "profile", id)
}

// ListProfiles returns every profile, newest member first.
func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]*store.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles ORDER BY created_at DESC, id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	profiles := []*store.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func scanProfile(row scanner) (*store.Profile, error) {
	var p store.Profile
	var wishlist string
	var lastLogin sql.NullTime
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.PasswordHash,
		&p.Role,
		&p.AvatarURL,
		&p.WhatsappNumber,
		&p.ItemsSold,
		&wishlist,
		&p.CreatedAt,
		&lastLogin,
	)
	if err != nil {
		return nil, err
	}
	if p.Wishlist, err = decodeIDs(wishlist); err != nil {
		return nil, fmt.Errorf("decode wishlist: %w", err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		p.LastLoginAt = &t
	}
	return &p, nil
}

func expectAffected(result sql.Result, kind string, id any) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", kind, id, store.ErrNotFound)
	}
	return nil
}
