package liveness

import (
	"context"
	"sync"
	"time"
)

// Store persists liveness sessions. Implementations must behave identically
// with respect to the protocol contract: one accepted response per session
// and TTL enforcement, whether backed by memory or an external keyed store.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// Update writes s back only when the stored version still matches
	// s.Version, bumping the version on success. A lost write surfaces as
	// ErrStaleSession, never as a silent overwrite.
	Update(ctx context.Context, s *Session) error
	// ActiveIDs returns the ids of sessions not yet removed from the store,
	// for the background expiry sweep.
	ActiveIDs(ctx context.Context) ([]string, error)
	// Delete removes an archived session past its retention window.
	Delete(ctx context.Context, id string) error
}

// MemoryStore is a single-process Store backed by a locked map.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

// Create stores a new session.
func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

// Get retrieves a session by id.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

// Update writes a stored session back under the version check.
func (m *MemoryStore) Update(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[s.ID]
	if !ok {
		return ErrSessionNotFound
	}
	if stored.Version != s.Version {
		return ErrStaleSession
	}
	s.Version++
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

// ActiveIDs lists every stored session id.
func (m *MemoryStore) ActiveIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes a session.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// terminalSince reports how long a session has been terminal, for retention
// sweeps. Non-terminal sessions return false.
func terminalSince(s *Session, now time.Time) (time.Duration, bool) {
	if !s.State.Terminal() {
		return 0, false
	}
	ref := s.ExpiresAt
	if s.RespondedAt != nil {
		ref = *s.RespondedAt
	}
	if now.Before(ref) {
		return 0, true
	}
	return now.Sub(ref), true
}
