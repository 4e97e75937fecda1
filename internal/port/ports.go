// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the session and
// permission logic from concrete adapters.
package port

import (
	"context"

	"github.com/kardexsoft/kardex-gateway/internal/domain"
)

// SessionStorage is the persisted layer of session state: two string
// entries per session, the bearer token and the JSON-encoded identity
// record. Restoration may complete asynchronously after process start.
type SessionStorage interface {
	// Read returns the persisted token and user entries. Both come back
	// empty when nothing is persisted; that is not an error.
	Read(ctx context.Context, sid string) (token, userJSON string, err error)

	// Write persists both entries atomically for the session.
	Write(ctx context.Context, sid, token, userJSON string) error

	// Clear removes every persisted entry for the session.
	Clear(ctx context.Context, sid string) error

	// Restored is closed once startup restoration has finished. Callers
	// that need settled state wait on it (with a grace timeout).
	Restored() <-chan struct{}
}

// IdentityAPI is the remote KARDEX API surface the gateway consumes for
// identity operations. The server remains the authority on every check.
type IdentityAPI interface {
	// Login exchanges credentials for a bearer token and identity record.
	Login(ctx context.Context, username, password string) (token string, user *domain.User, err error)

	// WhoAmI re-validates a token and returns the current identity.
	WhoAmI(ctx context.Context, token string) (*domain.User, error)

	// Logout revokes the token upstream. Best effort.
	Logout(ctx context.Context, token string) error

	// AccountStatus reports whether the account is active. May fail on
	// network/server errors; callers decide how to degrade.
	AccountStatus(ctx context.Context, token string, userID int64) (*domain.AccountStatus, error)
}
