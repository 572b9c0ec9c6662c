package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultSQLiteDSN keeps the database in memory so nothing outlives the
// process.
const DefaultSQLiteDSN = ":memory:"

// SQLiteStore implements Store on top of SQLite.
type SQLiteStore struct {
	db                *sql.DB
	defaultBackendURL string
}

// NewSQLiteStore opens the database and creates the schema.
func NewSQLiteStore(dsn, defaultBackendURL string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = DefaultSQLiteDSN
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every pooled connection to :memory: would get its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	createSessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		start_time DATETIME NOT NULL,
		last_seen INTEGER NOT NULL,
		backend_url TEXT NOT NULL DEFAULT ''
	);`

	createMessagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		author TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);`

	for _, stmt := range []string{createSessionsTable, createMessagesTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &SQLiteStore{db: db, defaultBackendURL: defaultBackendURL}, nil
}

// GetOrCreate returns the session for id, or a new one when id is empty or unknown.
func (s *SQLiteStore) GetOrCreate(ctx context.Context, id string) (*Session, bool, error) {
	if id != "" {
		res, err := s.db.ExecContext(ctx,
			"UPDATE sessions SET last_seen = ? WHERE id = ?",
			time.Now().UTC().UnixNano(), id,
		)
		if err != nil {
			return nil, false, fmt.Errorf("failed to touch session: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			sess, err := s.Get(ctx, id)
			return sess, false, err
		}
	}

	sess := New(s.defaultBackendURL)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, start_time, last_seen, backend_url) VALUES (?, ?, ?, ?)",
		sess.ID, sess.StartTime, sess.LastSeen.UnixNano(), sess.BackendURL,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, true, nil
}

// Get returns a copy of the session or ErrSessionNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	var (
		startTime time.Time
		lastSeen  int64
		url       string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT start_time, last_seen, backend_url FROM sessions WHERE id = ?", id,
	).Scan(&startTime, &lastSeen, &url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT role, author, content, timestamp FROM messages WHERE session_id = ? ORDER BY id",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	sess := &Session{
		ID:         id,
		StartTime:  startTime,
		LastSeen:   time.Unix(0, lastSeen).UTC(),
		BackendURL: url,
		Student:    []Message{},
		Tutor:      []Message{},
	}
	for rows.Next() {
		var (
			role Role
			msg  Message
		)
		if err := rows.Scan(&role, &msg.Role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if err := sess.append(role, msg); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return sess, nil
}

// SetBackendURL replaces the session's backend URL. Logs are untouched.
func (s *SQLiteStore) SetBackendURL(ctx context.Context, id, url string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET backend_url = ?, last_seen = ? WHERE id = ?",
		url, time.Now().UTC().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to save backend url: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Append adds msg to the end of the role's log.
func (s *SQLiteStore) Append(ctx context.Context, id string, role Role, msg Message) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE sessions SET last_seen = ? WHERE id = ?",
		time.Now().UTC().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO messages (session_id, role, author, content, timestamp) VALUES (?, ?, ?, ?, ?)",
		id, role, msg.Role, msg.Content, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete removes the session. Unknown ids are ignored.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Expire deletes sessions last seen before idleSince and returns their ids.
func (s *SQLiteStore) Expire(ctx context.Context, idleSince time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM sessions WHERE last_seen < ?", idleSince.UTC().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find idle sessions: %w", err)
	}

	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		expired = append(expired, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to find idle sessions: %w", err)
	}

	for _, id := range expired {
		if err := s.Delete(ctx, id); err != nil {
			return nil, err
		}
	}
	return expired, nil
}

// Close releases the store's resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
