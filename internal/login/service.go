package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/picoauth/picoauth/internal/audit"
	"github.com/picoauth/picoauth/internal/clock"
	"github.com/picoauth/picoauth/internal/factor"
	"github.com/picoauth/picoauth/internal/identity"
	"github.com/picoauth/picoauth/internal/notification"
)

// UserFinder resolves accounts.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (identity.User, error)
	FindByEmail(ctx context.Context, email string) (identity.User, error)
}

// EventLog records and lists failed-login events.
type EventLog interface {
	FailureRecorder
	Query(ctx context.Context, filter audit.Filter) ([]audit.Event, error)
}

// IntegrityReporter receives sequence violations, which point at a broken
// driver or tampering rather than a user mistake.
type IntegrityReporter interface {
	ReportIntegrity(ctx context.Context, err error, tags map[string]string)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store     Store
	Users     UserFinder
	Passwords PasswordVerifier
	Patterns  PatternVerifier
	Faces     FaceMatcher
	Events    EventLog
	Broker    notification.Broker
	Integrity IntegrityReporter
	Config    Config
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Step tells the driver where a login stands.
type Step struct {
	SessionID string
	Next      factor.Method
	Done      bool
}

// Service is the driver-facing facade of the staged login.
type Service struct {
	sessions  *SessionManager
	motion    *MotionChallenge
	verifier  *Verifier
	users     UserFinder
	events    EventLog
	integrity IntegrityReporter
	logger    *slog.Logger
}

// NewService wires a Service from d.
func NewService(d Deps) (*Service, error) {
	if err := d.Config.Validate(); err != nil {
		return nil, err
	}
	if d.Store == nil || d.Users == nil || d.Events == nil || d.Broker == nil {
		return nil, errors.New("login: store, users, events and broker are required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	sessions := NewSessionManager(d.Store, d.Config, d.Clock)
	return &Service{
		sessions:  sessions,
		motion:    NewMotionChallenge(d.Store, sessions, d.Users, d.Broker, d.Patterns, d.Events, d.Config, d.Clock, d.Logger),
		verifier:  NewVerifier(d.Passwords, d.Faces),
		users:     d.Users,
		events:    d.Events,
		integrity: d.Integrity,
		logger:    d.Logger,
	}, nil
}

// BeginLogin resolves email and opens a login session.
func (s *Service) BeginLogin(ctx context.Context, email string) (Step, error) {
	if strings.TrimSpace(email) == "" {
		return Step{}, fmt.Errorf("%w: email is required", ErrValidation)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return Step{}, fmt.Errorf("%w: no account for %s", ErrNotFound, email)
		}
		return Step{}, unavailable("find user", err)
	}
	session, err := s.sessions.Begin(ctx, user)
	if err != nil {
		return Step{}, err
	}
	s.logger.Info("login started",
		slog.String("session_id", session.ID),
		slog.String("user_id", user.ID),
		slog.Any("methods", user.Methods.Methods()),
	)
	return stepOf(session, user), nil
}

// SubmitCredential checks a single-shot credential for the session's current
// stage and progresses it on success. Wrong credentials are recorded before
// ErrAuthentication is returned.
func (s *Service) SubmitCredential(ctx context.Context, sessionID string, method factor.Method, cred Credential) (Step, error) {
	if known, err := factor.ParseMethod(string(method)); err != nil || known != method {
		return Step{}, fmt.Errorf("%w: unknown method %q", ErrValidation, method)
	}
	session, user, err := s.load(ctx, sessionID)
	if err != nil {
		return Step{}, err
	}
	if err := expectStage(session, user, method); err != nil {
		return Step{}, s.violation(ctx, session, err)
	}

	verdict, err := s.verifier.Verify(ctx, method, user, cred)
	if err != nil {
		return Step{}, err
	}
	if !verdict.OK {
		s.events.Record(ctx, subject(session), verdict.Reason, verdict.Evidence)
		return Step{SessionID: session.ID, Next: method}, authFailure(verdict.Reason)
	}

	updated, err := s.sessions.Progress(ctx, session.ID, user, method)
	if err != nil {
		return Step{}, s.violation(ctx, session, err)
	}
	s.logger.Info("login stage completed",
		slog.String("session_id", updated.ID),
		slog.String("method", string(method)),
	)
	return stepOf(updated, user), nil
}

// RegisterMotionDevice binds picoID and the device's added moves to the
// session. The session must be at the motion_pattern stage.
func (s *Service) RegisterMotionDevice(ctx context.Context, sessionID, picoID string, added []string) (LoginSession, error) {
	session, user, err := s.load(ctx, sessionID)
	if err != nil {
		return LoginSession{}, err
	}
	if err := expectStage(session, user, factor.MethodMotionPattern); err != nil {
		return LoginSession{}, s.violation(ctx, session, err)
	}
	pattern, err := factor.ParsePattern(added)
	if err != nil {
		return LoginSession{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	registered, err := s.motion.Register(ctx, session, picoID, pattern)
	if err != nil {
		return LoginSession{}, s.violation(ctx, session, err)
	}
	return registered, nil
}

// AwaitMotionPattern waits for the device side to settle the session's
// registration.
func (s *Service) AwaitMotionPattern(ctx context.Context, sessionID string) (Step, error) {
	session, err := s.motion.Await(ctx, sessionID)
	if err != nil {
		return Step{}, err
	}
	user, err := findUser(ctx, s.users, session.UserID)
	if err != nil {
		return Step{}, err
	}
	return stepOf(session, user), nil
}

// ValidateMotionPattern is called by the device with the sequence the user
// performed. Success completes the motion_pattern stage.
func (s *Service) ValidateMotionPattern(ctx context.Context, picoID string, submitted []string) (Step, error) {
	session, err := s.motion.Validate(ctx, picoID, submitted)
	if err != nil {
		return Step{}, s.violation(ctx, session, err)
	}
	user, err := findUser(ctx, s.users, session.UserID)
	if err != nil {
		return Step{}, err
	}
	s.logger.Info("login stage completed",
		slog.String("session_id", session.ID),
		slog.String("method", string(factor.MethodMotionPattern)),
	)
	return stepOf(session, user), nil
}

// IsPicoAvailable reports whether picoID can be registered.
func (s *Service) IsPicoAvailable(ctx context.Context, picoID string) (bool, error) {
	return s.motion.IsPicoAvailable(ctx, picoID)
}

// FinalizeIfReady issues the AuthSession once every enabled stage is done.
// It returns nil while stages remain.
func (s *Service) FinalizeIfReady(ctx context.Context, sessionID string) (*AuthSession, error) {
	session, user, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	auth, err := s.sessions.FinalizeIfReady(ctx, session.ID, user)
	if err != nil {
		return nil, s.violation(ctx, session, err)
	}
	if auth != nil {
		s.logger.Info("login finalized",
			slog.String("session_id", session.ID),
			slog.String("auth_session_id", auth.ID),
			slog.String("user_id", user.ID),
		)
	}
	return auth, nil
}

// ValidateAuthSession returns the user behind a live AuthSession.
func (s *Service) ValidateAuthSession(ctx context.Context, authSessionID string) (identity.User, error) {
	auth, err := s.sessions.ValidateAuthSession(ctx, authSessionID)
	if err != nil {
		return identity.User{}, err
	}
	return findUser(ctx, s.users, auth.UserID)
}

// QueryFailedEvents lists failed events for a user or session.
func (s *Service) QueryFailedEvents(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	events, err := s.events.Query(ctx, filter)
	if err != nil {
		return nil, unavailable("query failed events", err)
	}
	return events, nil
}

// FailedEventsFor resolves an email to its user before querying. Email wins
// when both are given.
func (s *Service) FailedEventsFor(ctx context.Context, email, sessionID string) ([]audit.Event, error) {
	switch {
	case strings.TrimSpace(email) != "":
		user, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, identity.ErrUserNotFound) {
				return nil, fmt.Errorf("%w: no account for %s", ErrNotFound, email)
			}
			return nil, unavailable("find user", err)
		}
		return s.QueryFailedEvents(ctx, audit.Filter{UserID: user.ID})
	case sessionID != "":
		return s.QueryFailedEvents(ctx, audit.Filter{SessionID: sessionID})
	default:
		return nil, fmt.Errorf("%w: email or session_id is required", ErrValidation)
	}
}

func (s *Service) load(ctx context.Context, sessionID string) (LoginSession, identity.User, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return LoginSession{}, identity.User{}, err
	}
	user, err := findUser(ctx, s.users, session.UserID)
	if err != nil {
		return LoginSession{}, identity.User{}, err
	}
	return session, user, nil
}

// violation reports err on the operational channel when it is a sequence
// violation and returns it unchanged.
func (s *Service) violation(ctx context.Context, session LoginSession, err error) error {
	if KindOf(err) != KindSequenceViolation {
		return err
	}
	s.logger.Error("login sequence violation",
		slog.String("session_id", session.ID),
		slog.String("user_id", session.UserID),
		slog.Any("error", err),
	)
	if s.integrity != nil {
		s.integrity.ReportIntegrity(ctx, err, map[string]string{
			"session_id": session.ID,
			"user_id":    session.UserID,
		})
	}
	return err
}

func findUser(ctx context.Context, users UserFinder, id string) (identity.User, error) {
	user, err := users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return identity.User{}, fmt.Errorf("%w: user %s", ErrNotFound, id)
		}
		return identity.User{}, unavailable("find user", err)
	}
	return user, nil
}

func expectStage(session LoginSession, user identity.User, method factor.Method) error {
	next, ok := NextStage(user.Methods, session.Completed)
	switch {
	case !ok:
		return fmt.Errorf("%w: every stage of session %s is complete", ErrSequenceViolation, session.ID)
	case next != method:
		return fmt.Errorf("%w: expected %s, got %s", ErrSequenceViolation, next, method)
	}
	return nil
}

func stepOf(session LoginSession, user identity.User) Step {
	next, ok := NextStage(user.Methods, session.Completed)
	return Step{SessionID: session.ID, Next: next, Done: !ok}
}
