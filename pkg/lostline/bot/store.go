// store.go loads and saves sessions through a pluggable persistence backend.
// Each webhook request does its own load-modify-save cycle; there is no
// cross-request coordination, so two near-simultaneous messages from the
// same identity race and the last writer wins (see DESIGN.md).
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionPersister is the interface for session persistence backends.
// Load returns (nil, nil) when no session exists for the identity.
type SessionPersister interface {
	Load(ctx context.Context, identity string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	List(ctx context.Context) ([]SessionMeta, error)
	Close() error
}

// SessionMeta is read-only session metadata for listings.
type SessionMeta struct {
	Identity      string    `json:"identity"`
	DisplayName   string    `json:"display_name,omitempty"`
	Flow          Flow      `json:"flow"`
	MessageCount  int       `json:"message_count"`
	FirstContact  time.Time `json:"first_contact_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// SessionStore wraps a persister with lazy session creation.
type SessionStore struct {
	persister SessionPersister
	logger    *slog.Logger
}

// NewSessionStore creates a session store over the given backend.
func NewSessionStore(p SessionPersister, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{persister: p, logger: logger.With("component", "sessions")}
}

// GetOrCreate loads the session for a raw channel address, creating a
// default one lazily on first contact. A non-empty displayName from the
// channel profile fills the session's name only when it is still unset.
func (st *SessionStore) GetOrCreate(ctx context.Context, rawAddress, displayName string) (*Session, error) {
	identity := NormalizeIdentity(rawAddress)
	if identity == "" {
		return nil, fmt.Errorf("address %q normalizes to an empty identity", rawAddress)
	}

	s, err := st.persister.Load(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", identity, err)
	}
	if s == nil {
		s = NewSession(rawAddress, displayName)
		st.logger.Info("new session created", "identity", identity)
		return s, nil
	}
	if s.DisplayName == "" && displayName != "" {
		s.DisplayName = displayName
	}
	return s, nil
}

// Get loads an existing session, or nil when absent.
func (st *SessionStore) Get(ctx context.Context, rawAddress string) (*Session, error) {
	return st.persister.Load(ctx, NormalizeIdentity(rawAddress))
}

// Save persists the session.
func (st *SessionStore) Save(ctx context.Context, s *Session) error {
	return st.persister.Save(ctx, s)
}

// List returns metadata for all persisted sessions.
func (st *SessionStore) List(ctx context.Context) ([]SessionMeta, error) {
	return st.persister.List(ctx)
}
