package login

import (
	"slices"
	"time"

	"github.com/picoauth/picoauth/internal/factor"
)

// MotionStatus is the state of a session's device challenge.
type MotionStatus string

const (
	MotionIdle           MotionStatus = "idle"
	MotionAwaitingDevice MotionStatus = "awaiting_device"
	MotionCompleted      MotionStatus = "completed"
	MotionRetry          MotionStatus = "retry"
	MotionTimedOut       MotionStatus = "timed_out"
)

// MotionState is the device-challenge sub-state of a LoginSession.
type MotionState struct {
	PicoID        string         `json:"pico_id,omitempty"`
	AddedSequence factor.Pattern `json:"added_sequence,omitempty"`
	Status        MotionStatus   `json:"status"`
	RegisteredAt  time.Time      `json:"registered_at,omitempty"`
}

// Completed reports whether the device challenge passed.
func (m MotionState) Completed() bool { return m.Status == MotionCompleted }

// Retry reports whether the device side asked for a retry.
func (m MotionState) Retry() bool { return m.Status == MotionRetry }

// LoginSession is one in-progress login attempt.
type LoginSession struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	CreatedAt     time.Time       `json:"created_at"`
	Completed     []factor.Method `json:"completed"`
	Motion        MotionState     `json:"motion"`
	AuthSessionID string          `json:"auth_session_id,omitempty"`
	Version       uint64          `json:"version"`
}

// HasCompleted reports whether m is already in the completed set.
func (s LoginSession) HasCompleted(m factor.Method) bool {
	return slices.Contains(s.Completed, m)
}

// Finalized reports whether an AuthSession superseded this login.
func (s LoginSession) Finalized() bool { return s.AuthSessionID != "" }

func (s LoginSession) clone() LoginSession {
	s.Completed = slices.Clone(s.Completed)
	s.Motion.AddedSequence = slices.Clone(s.Motion.AddedSequence)
	return s
}

// AuthSession is the terminal artifact of a successful login.
type AuthSession struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	IssuedAt time.Time `json:"issued_at"`
}

// ExpiredAt reports whether the session is past its validity window at now.
// A session exactly at the window boundary is still valid.
func (a AuthSession) ExpiredAt(now time.Time, window time.Duration) bool {
	return now.Sub(a.IssuedAt) > window
}
