package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// ErrSessionNotFound is returned for IDs that were never created or have
// already expired.
var ErrSessionNotFound = errors.New("session not found")

// Store holds sessions for the lifetime of the process. Every method returns
// or accepts copies, so callers never share a *Session with the store.
type Store interface {
	// GetOrCreate returns the session with the given ID. An empty or unknown
	// ID yields a brand new session; created reports which case happened.
	GetOrCreate(ctx context.Context, id string) (sess *Session, created bool, err error)

	// Get returns a snapshot of an existing session.
	Get(ctx context.Context, id string) (*Session, error)

	// SetBackendURL replaces the session's backend base URL. Logs are kept.
	SetBackendURL(ctx context.Context, id, url string) error

	// Append adds msg to the end of the role's log.
	Append(ctx context.Context, id string, role Role, msg Message) error

	// Delete destroys a session and both of its logs.
	Delete(ctx context.Context, id string) error

	// Expire deletes every session not seen since idleSince and returns
	// their IDs.
	Expire(ctx context.Context, idleSince time.Time) ([]string, error)

	Close() error
}

// Open creates the store named by kind. New sessions start with
// defaultBackendURL.
func Open(kind, dsn, defaultBackendURL string) (Store, error) {
	switch kind {
	case "", StoreMemory:
		return NewMemoryStore(defaultBackendURL), nil
	case StoreSQLite:
		return NewSQLiteStore(dsn, defaultBackendURL)
	default:
		return nil, fmt.Errorf("unknown session store: %s", kind)
	}
}
