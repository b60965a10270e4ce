package login

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Each session carries its own lock; the
// maps are guarded separately. TTLs are not enforced here, the SessionManager
// expires idle sessions on read.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memoryEntry
	picos    map[string]string
	auth     map[string]AuthSession
}

type memoryEntry struct {
	mu      sync.Mutex
	session LoginSession
	deleted bool
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memoryEntry),
		picos:    make(map[string]string),
		auth:     make(map[string]AuthSession),
	}
}

func (s *MemoryStore) CreateLoginSession(_ context.Context, session LoginSession, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("%w: login session %s already exists", ErrConflict, session.ID)
	}
	s.sessions[session.ID] = &memoryEntry{session: session.clone()}
	return nil
}

func (s *MemoryStore) entry(id string) (*memoryEntry, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: login session %s", ErrNotFound, id)
	}
	return e, nil
}

func (s *MemoryStore) GetLoginSession(_ context.Context, id string) (LoginSession, error) {
	e, err := s.entry(id)
	if err != nil {
		return LoginSession{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return LoginSession{}, fmt.Errorf("%w: login session %s", ErrNotFound, id)
	}
	return e.session.clone(), nil
}

func (s *MemoryStore) UpdateLoginSession(_ context.Context, id string, fn func(*LoginSession) error) (LoginSession, error) {
	e, err := s.entry(id)
	if err != nil {
		return LoginSession{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return LoginSession{}, fmt.Errorf("%w: login session %s", ErrNotFound, id)
	}
	working := e.session.clone()
	if err := fn(&working); err != nil {
		return LoginSession{}, err
	}
	working.Version = e.session.Version + 1
	e.session = working
	return working.clone(), nil
}

func (s *MemoryStore) DeleteLoginSession(_ context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		e.mu.Lock()
		e.deleted = true
		e.mu.Unlock()
	}
	return nil
}

func (s *MemoryStore) ReservePico(_ context.Context, picoID, sessionID string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.picos[picoID]; taken {
		return false, nil
	}
	s.picos[picoID] = sessionID
	return true, nil
}

func (s *MemoryStore) ReleasePico(_ context.Context, picoID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.picos[picoID] == sessionID {
		delete(s.picos, picoID)
	}
	return nil
}

func (s *MemoryStore) LookupPico(_ context.Context, picoID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessionID, ok := s.picos[picoID]
	if !ok {
		return "", fmt.Errorf("%w: pico %s", ErrNotFound, picoID)
	}
	return sessionID, nil
}

func (s *MemoryStore) SaveAuthSession(_ context.Context, session AuthSession, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth[session.ID] = session
	return nil
}

func (s *MemoryStore) GetAuthSession(_ context.Context, id string) (AuthSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.auth[id]
	if !ok {
		return AuthSession{}, fmt.Errorf("%w: auth session %s", ErrNotFound, id)
	}
	return session, nil
}
