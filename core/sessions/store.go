package sessions

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a session or settings record does not exist.
var ErrNotFound = errors.New("record not found")

// PersistenceError wraps a storage failure with the operation and session it
// belongs to.
type PersistenceError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistenceError(op, sessionID string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, SessionID: sessionID, Err: err}
}

// Store is durable storage for sessions and the singleton settings record.
type Store interface {
	SaveSession(ctx context.Context, session *Session) error
	LoadSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
	// ListSessions returns all sessions, most recently modified first.
	ListSessions(ctx context.Context) ([]*Session, error)

	SaveSettings(ctx context.Context, settings Settings) error
	LoadSettings(ctx context.Context) (*Settings, error)
}
