package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

const settingsKey = "settings"

// SQLiteStore is the durable Store backed by a local sqlite database.
// Sessions are stored as one row each with the message list serialized as a
// JSON document.
type SQLiteStore struct {
	db *sqlx.DB
}

func NewSQLiteStore(file string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite", file)
	if err != nil {
		return nil, persistenceError("open store", "", err)
	}

	createTables := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		persona TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		last_modified DATETIME NOT NULL,
		title_generated INTEGER NOT NULL DEFAULT 0,
		messages TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		data TEXT NOT NULL
	);
	`
	if _, err := db.Exec(createTables); err != nil {
		return nil, persistenceError("create tables", "", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type sessionRow struct {
	ID             string    `db:"id"`
	Title          string    `db:"title"`
	Persona        string    `db:"persona"`
	CreatedAt      time.Time `db:"created_at"`
	LastModified   time.Time `db:"last_modified"`
	TitleGenerated bool      `db:"title_generated"`
	Messages       string    `db:"messages"`
}

func (r sessionRow) toSession() (*Session, error) {
	messages := []Message{}
	if err := json.Unmarshal([]byte(r.Messages), &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	return &Session{
		ID:             r.ID,
		Title:          r.Title,
		Persona:        r.Persona,
		CreatedAt:      r.CreatedAt,
		LastModified:   r.LastModified,
		TitleGenerated: r.TitleGenerated,
		Messages:       messages,
	}, nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, session *Session) error {
	messages, err := json.Marshal(session.Messages)
	if err != nil {
		return persistenceError("save session", session.ID, fmt.Errorf("failed to encode messages: %w", err))
	}

	upsert := `
	INSERT INTO sessions (id, title, persona, created_at, last_modified, title_generated, messages)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		persona = excluded.persona,
		last_modified = excluded.last_modified,
		title_generated = excluded.title_generated,
		messages = excluded.messages
	`
	if _, err := s.db.ExecContext(ctx, upsert,
		session.ID, session.Title, session.Persona,
		session.CreatedAt, session.LastModified, session.TitleGenerated,
		string(messages),
	); err != nil {
		return persistenceError("save session", session.ID, err)
	}

	slog.Debug("session saved",
		slog.String("id", session.ID),
		slog.String("title", session.Title),
		slog.Int("messages", len(session.Messages)),
	)
	return nil
}

func (s *SQLiteStore) LoadSession(ctx context.Context, id string) (*Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row,
		"SELECT id, title, persona, created_at, last_modified, title_generated, messages FROM sessions WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistenceError("load session", id, ErrNotFound)
	}
	if err != nil {
		return nil, persistenceError("load session", id, err)
	}

	session, err := row.toSession()
	if err != nil {
		return nil, persistenceError("load session", id, err)
	}
	return session, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return persistenceError("delete session", id, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return persistenceError("delete session", id, ErrNotFound)
	}

	slog.Debug("session deleted", slog.String("id", id))
	return nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*Session, error) {
	var rows []sessionRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, title, persona, created_at, last_modified, title_generated, messages FROM sessions ORDER BY last_modified DESC")
	if err != nil {
		return nil, persistenceError("list sessions", "", err)
	}

	sessions := make([]*Session, 0, len(rows))
	for _, row := range rows {
		session, err := row.toSession()
		if err != nil {
			return nil, persistenceError("list sessions", row.ID, err)
		}
		sessions = append(sessions, session)
	}

	slog.Debug("sessions listed", slog.Int("count", len(sessions)))
	return sessions, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, settings Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return persistenceError("save settings", "", err)
	}

	upsert := "INSERT INTO settings (key, data) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET data = excluded.data"
	if _, err := s.db.ExecContext(ctx, upsert, settingsKey, string(data)); err != nil {
		return persistenceError("save settings", "", err)
	}
	return nil
}

func (s *SQLiteStore) LoadSettings(ctx context.Context) (*Settings, error) {
	var data string
	err := s.db.GetContext(ctx, &data, "SELECT data FROM settings WHERE key = ?", settingsKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistenceError("load settings", "", ErrNotFound)
	}
	if err != nil {
		return nil, persistenceError("load settings", "", err)
	}

	var settings Settings
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return nil, persistenceError("load settings", "", err)
	}
	return &settings, nil
}
