package audit

import "time"

// Event is an append-only record of a failed login step.
type Event struct {
	ID         string
	UserID     string
	SessionID  string
	OccurredAt time.Time
	Reason     string
	Evidence   []byte
}

// Subject identifies who or what a failure is recorded against.
// At least one field must be set.
type Subject struct {
	UserID    string
	SessionID string
}

// Filter narrows a query. UserID takes priority over SessionID; an empty
// filter lists every event.
type Filter struct {
	UserID    string
	SessionID string
}

func (f Filter) matches(e Event) bool {
	switch {
	case f.UserID != "":
		return e.UserID == f.UserID
	case f.SessionID != "":
		return e.SessionID == f.SessionID
	default:
		return true
	}
}
