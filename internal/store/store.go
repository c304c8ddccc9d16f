package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wbcard-cli/internal/model"
)

// ErrNotFound is wrapped by lookups that match nothing.
var ErrNotFound = eris.New("not found")

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Status  model.SessionStatus `json:"status,omitempty"`
	Article string              `json:"article,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
	Offset  int                 `json:"offset,omitempty"`
}

// SessionStore persists processing sessions.
type SessionStore interface {
	// SaveSession inserts or replaces the session and stamps UpdatedAt.
	SaveSession(ctx context.Context, s *model.Session) error
	// UpdateSession rewrites an existing session and stamps UpdatedAt. It
	// wraps ErrNotFound when the session no longer exists.
	UpdateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)
	// SetActiveSession marks id active and every other session inactive.
	SetActiveSession(ctx context.Context, id string) error
	// ActiveSession returns nil, nil when no session is active.
	ActiveSession(ctx context.Context) (*model.Session, error)
	// DeleteAllSessions removes every session and its assets.
	DeleteAllSessions(ctx context.Context) (int, error)
}

// CredentialStore persists the backend login.
type CredentialStore interface {
	SaveCredentials(ctx context.Context, c model.Credentials) error
	// LoadCredentials returns nil, nil when nobody is logged in.
	LoadCredentials(ctx context.Context) (*model.Credentials, error)
	ClearCredentials(ctx context.Context) error
}

// AssetStore persists the generated photo and video list of each session.
type AssetStore interface {
	LoadAssets(ctx context.Context, sessionID string) ([]model.Asset, error)
	SaveAssets(ctx context.Context, sessionID string, assets []model.Asset) error
}

// Store defines the persistence interface for the operator tool.
type Store interface {
	SessionStore
	CredentialStore
	AssetStore

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
