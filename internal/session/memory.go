package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in a map guarded by a mutex.
type MemoryStore struct {
	defaultBackendURL string

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(defaultBackendURL string) *MemoryStore {
	return &MemoryStore{
		defaultBackendURL: defaultBackendURL,
		sessions:          make(map[string]*Session),
	}
}

// GetOrCreate returns the session for id, or a new one when id is empty or unknown.
func (m *MemoryStore) GetOrCreate(_ context.Context, id string) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[id]; ok && id != "" {
		sess.LastSeen = time.Now().UTC()
		return sess.clone(), false, nil
	}

	sess := New(m.defaultBackendURL)
	m.sessions[sess.ID] = sess
	return sess.clone(), true, nil
}

// Get returns a copy of the session or ErrSessionNotFound.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.clone(), nil
}

// SetBackendURL replaces the session's backend URL. Logs are untouched.
func (m *MemoryStore) SetBackendURL(_ context.Context, id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	sess.BackendURL = url
	sess.LastSeen = time.Now().UTC()
	return nil
}

// Append adds msg to the end of the role's log.
func (m *MemoryStore) Append(_ context.Context, id string, role Role, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if err := sess.append(role, msg); err != nil {
		return err
	}
	sess.LastSeen = time.Now().UTC()
	return nil
}

// Delete removes the session. Unknown ids are ignored.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

// Expire deletes sessions last seen before idleSince and returns their ids.
func (m *MemoryStore) Expire(_ context.Context, idleSince time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []string
	for id, sess := range m.sessions {
		if sess.LastSeen.Before(idleSince) {
			delete(m.sessions, id)
			expired = append(expired, id)
		}
	}
	return expired, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
