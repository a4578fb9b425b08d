package sessions

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jinzhu/copier"
)

// Bundle is the lossless backup form of all sessions plus settings.
// Timestamps survive a round trip unchanged.
type Bundle struct {
	ExportedAt time.Time `json:"exported_at"`
	Settings   *Settings `json:"settings,omitempty"`
	Sessions   []Session `json:"sessions"`
}

// ExportBundle serializes sessions and settings into a single document. The
// inputs are deep-copied first so later mutations cannot bleed into the
// export.
func ExportBundle(sessions []*Session, settings *Settings) ([]byte, error) {
	bundle := Bundle{ExportedAt: time.Now()}

	if settings != nil {
		copied := *settings
		bundle.Settings = &copied
	}

	for _, session := range sessions {
		copied := Session{}
		if err := copier.CopyWithOption(&copied, session, copier.Option{DeepCopy: true}); err != nil {
			return nil, fmt.Errorf("failed to copy session %s: %w", session.ID, err)
		}
		bundle.Sessions = append(bundle.Sessions, copied)
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode bundle: %w", err)
	}
	return data, nil
}

// ImportBundle deserializes a bundle produced by ExportBundle.
func ImportBundle(data []byte) (*Bundle, error) {
	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	return &bundle, nil
}

// ExportSession serializes a single session.
func ExportSession(session *Session) ([]byte, error) {
	copied := Session{}
	if err := copier.CopyWithOption(&copied, session, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("failed to copy session %s: %w", session.ID, err)
	}

	data, err := json.MarshalIndent(copied, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return data, nil
}

// ImportSession deserializes a session produced by ExportSession.
func ImportSession(data []byte) (*Session, error) {
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("imported session is missing an id")
	}
	return &session, nil
}
