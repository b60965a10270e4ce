package login

import (
	"errors"
	"fmt"
)

// Error kinds returned by the login core. Concrete errors wrap exactly one of
// these; use errors.Is or KindOf to classify.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrExpired           = errors.New("expired")
	ErrAuthentication    = errors.New("authentication failed")
	ErrSequenceViolation = errors.New("sequence violation")
	ErrConflict          = errors.New("conflict")
	ErrUnavailable       = errors.New("backend unavailable")
)

// Kind classifies an error returned by the login core.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindExpired
	KindAuthentication
	KindSequenceViolation
	KindConflict
	KindUnavailable
)

var kindOrder = []struct {
	err  error
	kind Kind
}{
	{ErrValidation, KindValidation},
	{ErrNotFound, KindNotFound},
	{ErrExpired, KindExpired},
	{ErrAuthentication, KindAuthentication},
	{ErrSequenceViolation, KindSequenceViolation},
	{ErrConflict, KindConflict},
	{ErrUnavailable, KindUnavailable},
}

// KindOf reports the kind of err.
func KindOf(err error) Kind {
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindExpired:
		return "expired"
	case KindAuthentication:
		return "authentication"
	case KindSequenceViolation:
		return "sequence_violation"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// authFailure wraps ErrAuthentication with the audit reason.
func authFailure(reason string) error {
	return fmt.Errorf("%w: %s", ErrAuthentication, reason)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// Failure reasons recorded against sessions.
const (
	ReasonNoPassword          = "no password submitted"
	ReasonWrongPassword       = "invalid password entered"
	ReasonNoPhoto             = "no photo submitted"
	ReasonFaceMismatch        = "face recognition match failed"
	ReasonNoMotionPattern     = "no motion pattern submitted"
	ReasonInvalidMotionToken  = "motion pattern contains unknown moves"
	ReasonWrongBasePattern    = "incorrect base motion pattern entered"
	ReasonWrongDeviceSuffix   = "incorrect added motion sequence entered"
	ReasonMotionTimedOut      = "motion pattern timed out"
	ReasonMotionRetry         = "motion pattern retry requested"
	ReasonDeviceIDConflict    = "motion device id already registered"
	ReasonMotionNotRegistered = "motion device not registered"
)
