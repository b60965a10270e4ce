package login

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/picoauth/picoauth/internal/audit"
	"github.com/picoauth/picoauth/internal/clock"
	"github.com/picoauth/picoauth/internal/factor"
	"github.com/picoauth/picoauth/internal/notification"
)

// FailureRecorder appends failed-login events.
type FailureRecorder interface {
	Record(ctx context.Context, subject audit.Subject, reason string, evidence []byte)
}

// MotionChallenge runs the device-assisted motion-pattern protocol:
//
//	idle -> awaiting_device -> completed | retry | timed_out
//
// The session record is the single source of truth. Every transition is a
// guarded compare-and-swap on the record followed by a wake-up published on
// the session's topic.
type MotionChallenge struct {
	store    Store
	sessions *SessionManager
	users    UserFinder
	broker   notification.Broker
	patterns PatternVerifier
	events   FailureRecorder
	cfg      Config
	clock    clock.Clock
	logger   *slog.Logger
}

// NewMotionChallenge wires a MotionChallenge.
func NewMotionChallenge(
	store Store,
	sessions *SessionManager,
	users UserFinder,
	broker notification.Broker,
	patterns PatternVerifier,
	events FailureRecorder,
	cfg Config,
	clk clock.Clock,
	logger *slog.Logger,
) *MotionChallenge {
	if clk == nil {
		clk = clock.System()
	}
	return &MotionChallenge{
		store:    store,
		sessions: sessions,
		users:    users,
		broker:   broker,
		patterns: patterns,
		events:   events,
		cfg:      cfg,
		clock:    clk,
		logger:   logger,
	}
}

func topic(sessionID string) string { return "login:" + sessionID }

func subject(s LoginSession) audit.Subject {
	return audit.Subject{UserID: s.UserID, SessionID: s.ID}
}

// IsPicoAvailable reports whether picoID is free to register.
func (c *MotionChallenge) IsPicoAvailable(ctx context.Context, picoID string) (bool, error) {
	if picoID == "" {
		return false, fmt.Errorf("%w: pico_id is required", ErrValidation)
	}
	if _, err := c.store.LookupPico(ctx, picoID); err != nil {
		if KindOf(err) == KindNotFound {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// Register binds a device and its one-time suffix to session. picoID must not
// be held by any live registration.
func (c *MotionChallenge) Register(ctx context.Context, session LoginSession, picoID string, added factor.Pattern) (LoginSession, error) {
	if picoID == "" {
		return LoginSession{}, fmt.Errorf("%w: pico_id is required", ErrValidation)
	}
	if len(added) == 0 {
		return LoginSession{}, fmt.Errorf("%w: added sequence is required", ErrValidation)
	}

	ok, err := c.store.ReservePico(ctx, picoID, session.ID, c.cfg.LoginSessionTTL)
	if err != nil {
		return LoginSession{}, err
	}
	if !ok {
		c.events.Record(ctx, subject(session), ReasonDeviceIDConflict, nil)
		return LoginSession{}, fmt.Errorf("%w: pico %s is already registered", ErrConflict, picoID)
	}

	now := c.clock.Now()
	updated, err := c.store.UpdateLoginSession(ctx, session.ID, func(s *LoginSession) error {
		switch s.Motion.Status {
		case MotionAwaitingDevice:
			return fmt.Errorf("%w: session already awaits device %s", ErrConflict, s.Motion.PicoID)
		case MotionCompleted:
			return fmt.Errorf("%w: motion pattern already completed", ErrSequenceViolation)
		}
		s.Motion = MotionState{
			PicoID:        picoID,
			AddedSequence: added,
			Status:        MotionAwaitingDevice,
			RegisteredAt:  now,
		}
		return nil
	})
	if err != nil {
		_ = c.store.ReleasePico(ctx, picoID, session.ID)
		if KindOf(err) == KindConflict {
			c.events.Record(ctx, subject(session), ReasonDeviceIDConflict, nil)
		}
		return LoginSession{}, err
	}

	c.notify(ctx, updated.ID)
	c.logger.Info("motion device registered",
		slog.String("session_id", updated.ID),
		slog.String("pico_id", picoID),
		slog.Int("added_moves", len(added)),
	)
	return updated, nil
}

// Await blocks until the session leaves awaiting_device, the registration
// deadline passes, or ctx ends. The record is re-read on every wake-up and
// on every poll tick. Exceeding the deadline moves the session to timed_out
// exactly once, however many callers are waiting.
func (c *MotionChallenge) Await(ctx context.Context, sessionID string) (LoginSession, error) {
	sub, err := c.broker.Subscribe(ctx, topic(sessionID))
	if err != nil {
		return LoginSession{}, unavailable("subscribe", err)
	}
	defer sub.Close()

	ticker := time.NewTicker(c.cfg.MotionPollInterval)
	defer ticker.Stop()

	for {
		session, err := c.sessions.Get(ctx, sessionID)
		if err != nil {
			return LoginSession{}, err
		}

		switch session.Motion.Status {
		case MotionCompleted:
			return session, nil
		case MotionRetry:
			return session, authFailure(ReasonMotionRetry)
		case MotionTimedOut:
			return session, fmt.Errorf("%w: %s", ErrExpired, ReasonMotionTimedOut)
		case MotionIdle:
			return session, fmt.Errorf("%w: %s", ErrNotFound, ReasonMotionNotRegistered)
		}

		now := c.clock.Now()
		if c.overdue(session.Motion, now) {
			return c.expire(ctx, session)
		}
		remaining := c.deadline(session.Motion).Sub(now)

		timer := time.NewTimer(remaining)
		select {
		case <-sub.C():
		case <-ticker.C:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return session, ctx.Err()
		}
		timer.Stop()
	}
}

func (c *MotionChallenge) deadline(m MotionState) time.Time {
	return m.RegisteredAt.Add(c.cfg.MotionTimeout)
}

// overdue reports whether an awaiting registration has reached its deadline.
func (c *MotionChallenge) overdue(m MotionState, now time.Time) bool {
	return m.Status == MotionAwaitingDevice && !now.Before(c.deadline(m))
}

func (c *MotionChallenge) expire(ctx context.Context, observed LoginSession) (LoginSession, error) {
	picoID := observed.Motion.PicoID
	var won bool
	updated, err := c.store.UpdateLoginSession(ctx, observed.ID, func(s *LoginSession) error {
		if s.Motion.Status != MotionAwaitingDevice || s.Motion.PicoID != picoID ||
			!s.Motion.RegisteredAt.Equal(observed.Motion.RegisteredAt) {
			return nil
		}
		s.Motion = MotionState{Status: MotionTimedOut}
		won = true
		return nil
	})
	if err != nil {
		return LoginSession{}, err
	}
	if !won {
		// Someone else settled the registration first; report what they decided.
		switch updated.Motion.Status {
		case MotionCompleted:
			return updated, nil
		case MotionRetry:
			return updated, authFailure(ReasonMotionRetry)
		}
		return updated, fmt.Errorf("%w: %s", ErrExpired, ReasonMotionTimedOut)
	}

	_ = c.store.ReleasePico(ctx, picoID, observed.ID)
	c.events.Record(ctx, subject(updated), ReasonMotionTimedOut, nil)
	c.notify(ctx, updated.ID)
	c.logger.Info("motion challenge timed out",
		slog.String("session_id", updated.ID),
		slog.String("pico_id", picoID),
	)
	return updated, fmt.Errorf("%w: %s", ErrExpired, ReasonMotionTimedOut)
}

// Validate is the device-side completion signal: submitted is the sequence
// the user performed, base pattern followed by the device's added moves.
// Any mismatch requests a retry and frees the pico id; a retry must register
// a new one.
func (c *MotionChallenge) Validate(ctx context.Context, picoID string, submitted []string) (LoginSession, error) {
	if picoID == "" {
		return LoginSession{}, fmt.Errorf("%w: pico_id is required", ErrValidation)
	}
	sessionID, err := c.store.LookupPico(ctx, picoID)
	if err != nil {
		return LoginSession{}, err
	}
	session, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return LoginSession{}, err
	}
	owner, err := findUser(ctx, c.users, session.UserID)
	if err != nil {
		return LoginSession{}, err
	}
	if session.Motion.PicoID == picoID && c.overdue(session.Motion, c.clock.Now()) {
		return session, c.lapse(ctx, session)
	}

	if len(submitted) == 0 {
		if _, err := c.settleInTime(ctx, session, picoID, MotionRetry, nil); err != nil {
			return LoginSession{}, err
		}
		c.events.Record(ctx, subject(session), ReasonNoMotionPattern, nil)
		return LoginSession{}, fmt.Errorf("%w: %s", ErrValidation, ReasonNoMotionPattern)
	}

	full, err := factor.ParsePattern(submitted)
	if err != nil {
		if _, serr := c.settleInTime(ctx, session, picoID, MotionRetry, nil); serr != nil {
			return LoginSession{}, serr
		}
		c.events.Record(ctx, subject(session), ReasonInvalidMotionToken, nil)
		return LoginSession{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	base, suffix := full.Split(len(session.Motion.AddedSequence))
	reason := ""
	switch {
	case !c.patterns.VerifyPattern(owner.MotionPatternHash, base):
		reason = ReasonWrongBasePattern
	case !suffix.Equal(session.Motion.AddedSequence):
		reason = ReasonWrongDeviceSuffix
	}

	if reason != "" {
		if _, err := c.settleInTime(ctx, session, picoID, MotionRetry, nil); err != nil {
			return LoginSession{}, err
		}
		c.events.Record(ctx, subject(session), reason, nil)
		return LoginSession{}, authFailure(reason)
	}

	done, err := c.settleInTime(ctx, session, picoID, MotionCompleted, func(s *LoginSession) error {
		return advance(s, owner, factor.MethodMotionPattern)
	})
	if err != nil {
		return session, err
	}
	return done, nil
}

// settleInTime settles the registration, or times it out when the device
// signal arrived after the deadline.
func (c *MotionChallenge) settleInTime(ctx context.Context, observed LoginSession, picoID string, status MotionStatus, then func(*LoginSession) error) (LoginSession, error) {
	updated, err := c.settle(ctx, observed, picoID, status, then)
	if KindOf(err) == KindExpired {
		return LoginSession{}, c.lapse(ctx, observed)
	}
	return updated, err
}

// lapse times out an overdue registration through expire, which records the
// timeout once, and reports it as expired whoever recorded it.
func (c *MotionChallenge) lapse(ctx context.Context, observed LoginSession) error {
	_, err := c.expire(ctx, observed)
	if KindOf(err) == KindUnavailable || KindOf(err) == KindNotFound {
		return err
	}
	return fmt.Errorf("%w: %s", ErrExpired, ReasonMotionTimedOut)
}

// settle moves an awaiting registration held by picoID to status, applies
// then in the same update when set, and frees the pico id. A registration
// past its deadline is refused with ErrExpired.
func (c *MotionChallenge) settle(ctx context.Context, observed LoginSession, picoID string, status MotionStatus, then func(*LoginSession) error) (LoginSession, error) {
	now := c.clock.Now()
	updated, err := c.store.UpdateLoginSession(ctx, observed.ID, func(s *LoginSession) error {
		if s.Motion.Status == MotionTimedOut {
			return fmt.Errorf("%w: %s", ErrExpired, ReasonMotionTimedOut)
		}
		if s.Motion.Status != MotionAwaitingDevice || s.Motion.PicoID != picoID {
			return fmt.Errorf("%w: pico %s has no active registration", ErrNotFound, picoID)
		}
		if c.overdue(s.Motion, now) {
			return fmt.Errorf("%w: %s", ErrExpired, ReasonMotionTimedOut)
		}
		s.Motion = MotionState{Status: status}
		if then != nil {
			return then(s)
		}
		return nil
	})
	if err != nil {
		return LoginSession{}, err
	}
	_ = c.store.ReleasePico(ctx, picoID, observed.ID)
	c.notify(ctx, updated.ID)
	c.logger.Info("motion challenge settled",
		slog.String("session_id", updated.ID),
		slog.String("pico_id", picoID),
		slog.String("status", string(status)),
	)
	return updated, nil
}

func (c *MotionChallenge) notify(ctx context.Context, sessionID string) {
	if err := c.broker.Publish(ctx, topic(sessionID)); err != nil {
		c.logger.Warn("motion wake-up not delivered", slog.String("session_id", sessionID), slog.Any("error", err))
	}
}
