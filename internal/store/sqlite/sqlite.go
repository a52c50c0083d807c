package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// Schema creates every table the store needs. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	email           TEXT NOT NULL UNIQUE,
	password_hash   TEXT NOT NULL,
	role            TEXT NOT NULL DEFAULT 'user',
	avatar_url      TEXT NOT NULL DEFAULT '',
	whatsapp_number TEXT NOT NULL DEFAULT '',
	items_sold      INTEGER NOT NULL DEFAULT 0,
	wishlist        TEXT NOT NULL DEFAULT '[]',
	created_at      DATETIME NOT NULL,
	last_login_at   DATETIME
);

CREATE TABLE IF NOT EXISTS listings (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	seller_id          TEXT NOT NULL REFERENCES profiles(id),
	name               TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	price              INTEGER NOT NULL,
	image_urls         TEXT NOT NULL DEFAULT '[]',
	category_primary   TEXT NOT NULL DEFAULT '',
	category_secondary TEXT NOT NULL DEFAULT '',
	province           TEXT NOT NULL DEFAULT '',
	city               TEXT NOT NULL DEFAULT '',
	latitude           REAL NOT NULL DEFAULT 0,
	longitude          REAL NOT NULL DEFAULT 0,
	contact_chat       BOOLEAN NOT NULL DEFAULT 1,
	contact_whatsapp   TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listings_seller ON listings(seller_id);

CREATE TABLE IF NOT EXISTS chat_sessions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	listing_id      INTEGER NOT NULL REFERENCES listings(id),
	buyer_id        TEXT NOT NULL,
	seller_id       TEXT NOT NULL,
	last_message    TEXT,
	last_message_at DATETIME,
	created_at      DATETIME NOT NULL,
	UNIQUE (listing_id, buyer_id)
);
CREATE INDEX IF NOT EXISTS idx_chat_sessions_buyer ON chat_sessions(buyer_id);
CREATE INDEX IF NOT EXISTS idx_chat_sessions_seller ON chat_sessions(seller_id);

CREATE TABLE IF NOT EXISTS chat_messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER NOT NULL REFERENCES chat_sessions(id),
	sender_id  TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies Schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Tests pass ":memory:" with ApplySchema or a narrower schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// ApplySchema executes Schema on db.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeIDs(raw string) ([]int64, error) {
	ids := []int64{}
	if raw == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func decodeStrings(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}
