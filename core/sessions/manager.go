package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jinzhu/copier"
)

// ErrSaveInFlight is returned when a save is requested for a session id that
// already has a save in flight. The request is dropped, not queued; callers
// may retry later.
var ErrSaveInFlight = errors.New("save already in flight for session")

// Manager coordinates durable writes over a Store. It guarantees at most one
// concurrent save per session id and maintains the in-memory most-recent-first
// index of known sessions.
type Manager struct {
	store Store
	now   func() time.Time

	mu     sync.Mutex
	saving map[string]struct{}
	recent []*Session
}

type ManagerOption func(*Manager)

// WithClock overrides the timestamp source. Intended for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		now:    time.Now,
		saving: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Refresh reloads the recent-sessions index from the store.
func (m *Manager) Refresh(ctx context.Context) error {
	listed, err := m.store.ListSessions(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.recent = listed
	m.mu.Unlock()
	return nil
}

// Save writes a snapshot of session to the store. LastModified is stamped as
// part of the write and reflected on the passed session only after the store
// reports success. The session must not be mutated concurrently with the
// call; owners that mutate under their own lock pass a private copy. A second
// save for the same id while one is in flight is dropped with
// ErrSaveInFlight.
func (m *Manager) Save(ctx context.Context, session *Session) error {
	m.mu.Lock()
	if _, inFlight := m.saving[session.ID]; inFlight {
		m.mu.Unlock()
		return ErrSaveInFlight
	}
	m.saving[session.ID] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.saving, session.ID)
		m.mu.Unlock()
	}()

	snapshot := &Session{}
	if err := copier.CopyWithOption(snapshot, session, copier.Option{DeepCopy: true}); err != nil {
		return persistenceError("snapshot session", session.ID, err)
	}
	snapshot.LastModified = m.now()

	if err := m.store.SaveSession(ctx, snapshot); err != nil {
		return err
	}

	session.LastModified = snapshot.LastModified
	m.indexSaved(snapshot)
	return nil
}

func (m *Manager) indexSaved(snapshot *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, indexed := range m.recent {
		if indexed.ID == snapshot.ID {
			m.recent[i] = snapshot
			return
		}
	}
	m.recent = append([]*Session{snapshot}, m.recent...)
}

func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	return m.store.LoadSession(ctx, id)
}

// Recent returns the in-memory index of known sessions, most recent first.
func (m *Manager) Recent() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	recent := make([]*Session, len(m.recent))
	copy(recent, m.recent)
	return recent
}

// Delete removes the durable record and the index entry. Deleting the current
// session is the caller's concern: the orchestrator must start a fresh one.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.DeleteSession(ctx, id); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, indexed := range m.recent {
		if indexed.ID == id {
			m.recent = append(m.recent[:i], m.recent[i+1:]...)
			break
		}
	}
	return nil
}

// DeleteAll removes every known session and the settings record.
func (m *Manager) DeleteAll(ctx context.Context) error {
	listed, err := m.store.ListSessions(ctx)
	if err != nil {
		return err
	}

	var deleteErr error
	for _, session := range listed {
		if err := m.store.DeleteSession(ctx, session.ID); err != nil {
			deleteErr = errors.Join(deleteErr, err)
		}
	}

	m.mu.Lock()
	m.recent = nil
	m.mu.Unlock()
	return deleteErr
}

func (m *Manager) SaveSettings(ctx context.Context, settings Settings) error {
	return m.store.SaveSettings(ctx, settings)
}

// LoadSettings returns the stored settings, falling back to defaults when no
// record exists yet.
func (m *Manager) LoadSettings(ctx context.Context) (Settings, error) {
	stored, err := m.store.LoadSettings(ctx)
	if errors.Is(err, ErrNotFound) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return DefaultSettings(), err
	}
	return *stored, nil
}
