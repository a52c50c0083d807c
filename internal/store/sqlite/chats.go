package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/marketchat/internal/store"
)

const sessionSelect = `
	SELECT cs.id, cs.listing_id, cs.buyer_id, cs.seller_id, l.name, l.image_urls,
		cs.last_message, cs.last_message_at, cs.created_at
	FROM chat_sessions cs
	JOIN listings l ON l.id = cs.listing_id
`

// FindOrCreateSession returns the session for (listingID, buyerID), creating it when absent.
// The insert is a no-op on conflict, so concurrent callers converge on one row.
func (s *SQLiteStore) FindOrCreateSession(ctx context.Context, listingID int64, buyerID, sellerID string) (*store.ChatSession, error) {
	insert := `
		INSERT INTO chat_sessions (listing_id, buyer_id, seller_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (listing_id, buyer_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, insert, listingID, buyerID, sellerID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM chat_sessions WHERE listing_id = ? AND buyer_id = ?`, listingID, buyerID,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("query session id: %w", err)
	}

	return s.GetSession(ctx, id)
}

// GetSession retrieves a session with its listing name and first image.
func (s *SQLiteStore) GetSession(ctx context.Context, id int64) (*store.ChatSession, error) {
	cs, err := scanSession(s.db.QueryRowContext(ctx, sessionSelect+` WHERE cs.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query session: %w", err)
	}
	return cs, nil
}

// ListSessionsForUser lists sessions where userID is buyer or seller, most recent activity first.
func (s *SQLiteStore) ListSessionsForUser(ctx context.Context, userID string) ([]*store.ChatSession, error) {
	query := sessionSelect + `
		WHERE cs.buyer_id = ? OR cs.seller_id = ?
		ORDER BY COALESCE(cs.last_message_at, cs.created_at) DESC, cs.id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*store.ChatSession{}
	for rows.Next() {
		cs, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, cs)
	}
	return sessions, rows.Err()
}

// AppendMessage persists msg and updates the session's last message in one transaction.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *store.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	update := `UPDATE chat_sessions SET last_message = ?, last_message_at = ? WHERE id = ?`
	result, err := tx.ExecContext(ctx, update, msg.Text, msg.CreatedAt, msg.SessionID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if err := expectAffected(result, "session", msg.SessionID); err != nil {
		return err
	}

	insert := `
		INSERT INTO chat_messages (session_id, sender_id, text, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err = tx.ExecContext(ctx, insert, msg.SessionID, msg.SenderID, msg.Text, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	msg.ID = id
	return nil
}

// ListMessages retrieves messages from a session with pagination.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID int64, limit int, beforeID *int64) ([]*store.ChatMessage, error) {
	var query string
	var args []any

	if beforeID != nil {
		query = `
			SELECT id, session_id, sender_id, text, created_at
			FROM chat_messages
			WHERE session_id = ? AND id < ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []any{sessionID, *beforeID, limit}
	} else {
		query = `
			SELECT id, session_id, sender_id, text, created_at
			FROM chat_messages
			WHERE session_id = ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []any{sessionID, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []*store.ChatMessage{}
	for rows.Next() {
		var msg store.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.SenderID, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}
	return messages, nil
}

func scanSession(row scanner) (*store.ChatSession, error) {
	var cs store.ChatSession
	var images string
	var lastMessage sql.NullString
	var lastMessageAt sql.NullTime
	err := row.Scan(
		&cs.ID,
		&cs.ListingID,
		&cs.BuyerID,
		&cs.SellerID,
		&cs.ListingName,
		&images,
		&lastMessage,
		&lastMessageAt,
		&cs.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	urls, err := decodeStrings(images)
	if err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	if len(urls) > 0 {
		cs.ListingImageURL = urls[0]
	}
	if lastMessage.Valid {
		cs.LastMessage = &lastMessage.String
	}
	if lastMessageAt.Valid {
		t := lastMessageAt.Time
		cs.LastMessageAt = &t
	}
	return &cs, nil
}
