package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vovakirdan/marketchat/internal/store"
)

const listingColumns = `id, seller_id, name, description, price, image_urls, category_primary,
	category_secondary, province, city, latitude, longitude, contact_chat, contact_whatsapp, created_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// CreateListing inserts l and assigns its ID and CreatedAt.
func (s *SQLiteStore) CreateListing(ctx context.Context, l *store.Listing) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	images, err := encodeJSON(nonNilStrings(l.ImageURLs))
	if err != nil {
		return fmt.Errorf("encode images: %w", err)
	}

	query := `
		INSERT INTO listings (seller_id, name, description, price, image_urls, category_primary,
			category_secondary, province, city, latitude, longitude, contact_chat, contact_whatsapp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, l.SellerID, l.Name, l.Description, l.Price, images,
		l.CategoryPrimary, l.CategorySecondary, l.Province, l.City, l.Latitude, l.Longitude,
		l.ContactChat, l.ContactWhatsapp, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	l.ID = id
	return nil
}

// GetListing retrieves a listing by ID.
func (s *SQLiteStore) GetListing(ctx context.Context, id int64) (*store.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = ?`
	l, err := scanListing(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("listing %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query listing: %w", err)
	}
	return l, nil
}

// UpdateListing overwrites every mutable column. SellerID and CreatedAt are kept.
func (s *SQLiteStore) UpdateListing(ctx context.Context, l *store.Listing) error {
	images, err := encodeJSON(nonNilStrings(l.ImageURLs))
	if err != nil {
		return fmt.Errorf("encode images: %w", err)
	}

	query := `
		UPDATE listings SET
			name = ?, description = ?, price = ?, image_urls = ?, category_primary = ?,
			category_secondary = ?, province = ?, city = ?, latitude = ?, longitude = ?,
			contact_chat = ?, contact_whatsapp = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, l.Name, l.Description, l.Price, images,
		l.CategoryPrimary, l.CategorySecondary, l.Province, l.City, l.Latitude, l.Longitude,
		l.ContactChat, l.ContactWhatsapp, l.ID)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	return expectAffected(result, "listing", l.ID)
}

// DeleteListing removes the listing and its chat sessions and messages.
func (s *SQLiteStore) DeleteListing(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM chat_messages
		WHERE session_id IN (SELECT id FROM chat_sessions WHERE listing_id = ?)
	`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE listing_id = ?`, id); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if err := expectAffected(result, "listing", id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListListings returns listings matching filter, newest first.
func (s *SQLiteStore) ListListings(ctx context.Context, filter store.ListingFilter) ([]*store.Listing, error) {
	var where []string
	var args []any

	if q := strings.TrimSpace(filter.Query); q != "" {
		where = append(where, `LOWER(name) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(q))+"%")
	}
	if filter.CategoryPrimary != "" {
		where = append(where, "category_primary = ?")
		args = append(args, filter.CategoryPrimary)
	}
	if filter.CategorySecondary != "" {
		where = append(where, "category_secondary = ?")
		args = append(args, filter.CategorySecondary)
	}
	if filter.Province != "" {
		where = append(where, "province = ?")
		args = append(args, filter.Province)
	}
	if filter.City != "" {
		where = append(where, "city = ?")
		args = append(args, filter.City)
	}
	if filter.MinPrice > 0 {
		where = append(where, "price >= ?")
		args = append(args, filter.MinPrice)
	}
	if filter.MaxPrice > 0 {
		where = append(where, "price <= ?")
		args = append(args, filter.MaxPrice)
	}
	if filter.SellerID != "" {
		where = append(where, "seller_id = ?")
		args = append(args, filter.SellerID)
	}

	query := `SELECT ` + listingColumns + ` FROM listings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	listings := []*store.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func scanListing(row scanner) (*store.Listing, error) {
	var l store.Listing
	var images string
	err := row.Scan(
		&l.ID,
		&l.SellerID,
		&l.Name,
		&l.Description,
		&l.Price,
		&images,
		&l.CategoryPrimary,
		&l.CategorySecondary,
		&l.Province,
		&l.City,
		&l.Latitude,
		&l.Longitude,
		&l.ContactChat,
		&l.ContactWhatsapp,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if l.ImageURLs, err = decodeStrings(images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	return &l, nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
