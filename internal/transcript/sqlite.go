package transcript

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// timeLayout keeps timestamps as sortable text; SQLite has no native
// timestamp type and the replay order must survive a round-trip exactly.
const timeLayout = time.RFC3339Nano

// SQLiteStore is the durable Store implementation.
// Uses SQLite with WAL mode for concurrent read access.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema automatically; idempotent.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to ensure db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent conversations.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append inserts one entry, creating the conversation lazily on first use
// and bumping its updated_at either way.
func (s *SQLiteStore) Append(ctx context.Context, conversationID string, source Source, payload any) (Entry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode payload: %w", err)
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		conversationID, now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return Entry{}, fmt.Errorf("failed to upsert conversation: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO entries (conversation_id, created_at, source, payload) VALUES (?, ?, ?, ?)`,
		conversationID, now.Format(timeLayout), string(source), string(raw))
	if err != nil {
		return Entry{}, fmt.Errorf("failed to insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read entry id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("failed to commit: %w", err)
	}

	return Entry{
		ID:             id,
		ConversationID: conversationID,
		Timestamp:      now,
		Source:         source,
		Payload:        raw,
	}, nil
}

func (s *SQLiteStore) ReadAll(ctx context.Context, conversationID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, created_at, source, payload
		FROM entries WHERE conversation_id = ?
		ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts, payload string
		if err := rows.Scan(&e.ID, &e.ConversationID, &ts, &e.Source, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse entry timestamp: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at, latest_markup, latest_pages
		FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

func (s *SQLiteStore) ListConversations(ctx context.Context, limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, created_at, updated_at, latest_markup, latest_pages
		FROM conversations ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) SetLatestArtifact(ctx context.Context, id, markup string, pages []string) error {
	encoded, err := json.Marshal(pages)
	if err != nil {
		return fmt.Errorf("failed to encode pages: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET latest_markup = ?, latest_pages = ? WHERE id = ?`,
		markup, string(encoded), id)
	if err != nil {
		return fmt.Errorf("failed to set latest artifact: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) SetTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("failed to set title: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (Conversation, error) {
	var c Conversation
	var created, updated, pages string
	err := row.Scan(&c.ID, &c.Title, &created, &updated, &c.LatestMarkup, &pages)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("failed to scan conversation: %w", err)
	}
	if c.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return Conversation{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return Conversation{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(pages), &c.LatestPages); err != nil {
		return Conversation{}, fmt.Errorf("failed to decode latest pages: %w", err)
	}
	return c, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
