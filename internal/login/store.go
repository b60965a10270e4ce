package login

import (
	"context"
	"time"
)

// Store persists login and auth sessions. Implementations return errors
// wrapping ErrNotFound for missing records and ErrUnavailable for backend
// failures.
type Store interface {
	CreateLoginSession(ctx context.Context, session LoginSession, ttl time.Duration) error
	GetLoginSession(ctx context.Context, id string) (LoginSession, error)
	// UpdateLoginSession applies fn atomically with respect to every other
	// update of the same session and bumps Version. When fn returns an error
	// nothing is written and the error is returned unchanged.
	UpdateLoginSession(ctx context.Context, id string, fn func(*LoginSession) error) (LoginSession, error)
	DeleteLoginSession(ctx context.Context, id string) error

	// ReservePico claims picoID for sessionID if no live reservation exists.
	ReservePico(ctx context.Context, picoID, sessionID string, ttl time.Duration) (bool, error)
	// ReleasePico drops the reservation only when it is held by sessionID.
	ReleasePico(ctx context.Context, picoID, sessionID string) error
	LookupPico(ctx context.Context, picoID string) (string, error)

	SaveAuthSession(ctx context.Context, session AuthSession, ttl time.Duration) error
	GetAuthSession(ctx context.Context, id string) (AuthSession, error)
}
