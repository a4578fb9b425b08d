package sessions

import (
	"context"
	"sort"
	"sync"

	"github.com/jinzhu/copier"
)

// MemoryStore is an in-memory Store used by tests and ephemeral runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	settings *Settings
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]*Session{}}
}

func (s *MemoryStore) SaveSession(_ context.Context, session *Session) error {
	stored := &Session{}
	if err := copier.CopyWithOption(stored, session, copier.Option{DeepCopy: true}); err != nil {
		return persistenceError("save session", session.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = stored
	return nil
}

func (s *MemoryStore) LoadSession(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	stored, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, persistenceError("load session", id, ErrNotFound)
	}

	loaded := &Session{}
	if err := copier.CopyWithOption(loaded, stored, copier.Option{DeepCopy: true}); err != nil {
		return nil, persistenceError("load session", id, err)
	}
	return loaded, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return persistenceError("delete session", id, ErrNotFound)
	}
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listed := make([]*Session, 0, len(s.sessions))
	for _, stored := range s.sessions {
		loaded := &Session{}
		if err := copier.CopyWithOption(loaded, stored, copier.Option{DeepCopy: true}); err != nil {
			return nil, persistenceError("list sessions", stored.ID, err)
		}
		listed = append(listed, loaded)
	}

	sort.Slice(listed, func(i, j int) bool {
		return listed[i].LastModified.After(listed[j].LastModified)
	})
	return listed, nil
}

func (s *MemoryStore) SaveSettings(_ context.Context, settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &settings
	return nil
}

func (s *MemoryStore) LoadSettings(_ context.Context) (*Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return nil, persistenceError("load settings", "", ErrNotFound)
	}
	loaded := *s.settings
	return &loaded, nil
}
