package login

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/picoauth/picoauth/internal/clock"
	"github.com/picoauth/picoauth/internal/factor"
	"github.com/picoauth/picoauth/internal/identity"
)

// authSessionRetention is how long an expired auth session stays readable
// (and reported as expired) before the store may drop it.
const authSessionRetention = 24 * time.Hour

// SessionManager owns the login-session lifecycle and AuthSession issuance.
type SessionManager struct {
	store Store
	cfg   Config
	clock clock.Clock
}

// NewSessionManager builds a SessionManager.
func NewSessionManager(store Store, cfg Config, clk clock.Clock) *SessionManager {
	if clk == nil {
		clk = clock.System()
	}
	return &SessionManager{store: store, cfg: cfg, clock: clk}
}

// Begin creates a fresh session for user.
func (m *SessionManager) Begin(ctx context.Context, user identity.User) (LoginSession, error) {
	session := LoginSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: m.clock.Now(),
		Completed: []factor.Method{},
		Motion:    MotionState{Status: MotionIdle},
	}
	if err := m.store.CreateLoginSession(ctx, session, m.cfg.LoginSessionTTL); err != nil {
		return LoginSession{}, err
	}
	return session, nil
}

// Get loads a session. Sessions older than the idle window are deleted and
// reported as expired.
func (m *SessionManager) Get(ctx context.Context, id string) (LoginSession, error) {
	if id == "" {
		return LoginSession{}, fmt.Errorf("%w: session id is required", ErrValidation)
	}
	session, err := m.store.GetLoginSession(ctx, id)
	if err != nil {
		return LoginSession{}, err
	}
	if m.clock.Now().Sub(session.CreatedAt) > m.cfg.LoginSessionTTL {
		if session.Motion.PicoID != "" {
			_ = m.store.ReleasePico(ctx, session.Motion.PicoID, session.ID)
		}
		_ = m.store.DeleteLoginSession(ctx, session.ID)
		return LoginSession{}, fmt.Errorf("%w: login session %s, start a new login", ErrExpired, id)
	}
	return session, nil
}

// Progress marks method completed. Progressing a method that is not the
// user's next stage is a sequence violation.
func (m *SessionManager) Progress(ctx context.Context, id string, user identity.User, method factor.Method) (LoginSession, error) {
	return m.store.UpdateLoginSession(ctx, id, func(s *LoginSession) error {
		return advance(s, user, method)
	})
}

// advance appends method to s.Completed when it is user's next stage.
func advance(s *LoginSession, user identity.User, method factor.Method) error {
	if s.UserID != user.ID {
		return fmt.Errorf("%w: session %s does not belong to user %s", ErrSequenceViolation, s.ID, user.ID)
	}
	if s.Finalized() {
		return fmt.Errorf("%w: session %s already finalized", ErrSequenceViolation, s.ID)
	}
	if !user.Methods.Has(method) {
		return fmt.Errorf("%w: method %s is not enabled", ErrSequenceViolation, method)
	}
	if s.HasCompleted(method) {
		return fmt.Errorf("%w: method %s already completed", ErrSequenceViolation, method)
	}
	if next, ok := NextStage(user.Methods, s.Completed); !ok || next != method {
		return fmt.Errorf("%w: method %s is out of order", ErrSequenceViolation, method)
	}
	s.Completed = append(s.Completed, method)
	return nil
}

// FinalizeIfReady mints an AuthSession once every enabled stage is complete
// and returns nil otherwise. Repeated calls return the same AuthSession.
//
// The candidate AuthSession is saved before it is linked to the login
// session, so any id a caller reads from the session is always resolvable.
// A candidate that loses the link race is never handed out and ages out of
// the store.
func (m *SessionManager) FinalizeIfReady(ctx context.Context, id string, user identity.User) (*AuthSession, error) {
	current, err := m.store.GetLoginSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Finalized() {
		return m.linked(ctx, current.AuthSessionID)
	}
	if _, ok := NextStage(user.Methods, current.Completed); ok {
		return nil, nil
	}

	minted := AuthSession{ID: uuid.NewString(), UserID: user.ID, IssuedAt: m.clock.Now()}
	if err := m.store.SaveAuthSession(ctx, minted, m.cfg.AuthSessionExpiry+authSessionRetention); err != nil {
		return nil, err
	}

	session, err := m.store.UpdateLoginSession(ctx, id, func(s *LoginSession) error {
		if s.Finalized() {
			return nil
		}
		if s.UserID != user.ID {
			return fmt.Errorf("%w: session %s does not belong to user %s", ErrSequenceViolation, s.ID, user.ID)
		}
		s.AuthSessionID = minted.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	if session.AuthSessionID != minted.ID {
		return m.linked(ctx, session.AuthSessionID)
	}
	return &minted, nil
}

func (m *SessionManager) linked(ctx context.Context, authSessionID string) (*AuthSession, error) {
	existing, err := m.store.GetAuthSession(ctx, authSessionID)
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

// ValidateAuthSession returns the AuthSession when it exists and is inside
// its validity window.
func (m *SessionManager) ValidateAuthSession(ctx context.Context, id string) (AuthSession, error) {
	if id == "" {
		return AuthSession{}, fmt.Errorf("%w: auth session id is required", ErrValidation)
	}
	session, err := m.store.GetAuthSession(ctx, id)
	if err != nil {
		return AuthSession{}, err
	}
	if session.ExpiredAt(m.clock.Now(), m.cfg.AuthSessionExpiry) {
		return AuthSession{}, fmt.Errorf("%w: auth session %s, start a new login", ErrExpired, id)
	}
	return session, nil
}
