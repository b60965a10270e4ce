package login

import (
	"context"
	"fmt"

	"github.com/picoauth/picoauth/internal/factor"
	"github.com/picoauth/picoauth/internal/identity"
)

// PasswordVerifier checks a plaintext candidate against a stored hash.
type PasswordVerifier interface {
	VerifyPassword(hash []byte, candidate string) bool
}

// PatternVerifier checks a base motion pattern against a stored hash.
type PatternVerifier interface {
	VerifyPattern(hash []byte, candidate factor.Pattern) bool
}

// FaceMatcher decides whether image shows user.
type FaceMatcher interface {
	MatchFace(ctx context.Context, user identity.User, image []byte) (bool, error)
}

// FaceMatcherFunc adapts a function to FaceMatcher.
type FaceMatcherFunc func(ctx context.Context, user identity.User, image []byte) (bool, error)

func (f FaceMatcherFunc) MatchFace(ctx context.Context, user identity.User, image []byte) (bool, error) {
	return f(ctx, user, image)
}

// Credential is the payload submitted for a single-shot stage.
type Credential struct {
	Password string
	Image    []byte
}

// Verdict is the outcome of a credential check. Reason and Evidence are set
// on failure for the failed-event log.
type Verdict struct {
	OK       bool
	Reason   string
	Evidence []byte
}

func pass() Verdict { return Verdict{OK: true} }

func reject(reason string, evidence []byte) Verdict {
	return Verdict{Reason: reason, Evidence: evidence}
}

// Verifier dispatches credential checks by method.
type Verifier struct {
	passwords PasswordVerifier
	faces     FaceMatcher
}

// NewVerifier builds a Verifier. faces may be nil when no matcher is
// configured; face checks then report ErrUnavailable.
func NewVerifier(passwords PasswordVerifier, faces FaceMatcher) *Verifier {
	return &Verifier{passwords: passwords, faces: faces}
}

// Verify checks cred for method. The returned error is reserved for
// misuse and backend failures; a wrong credential is a Verdict with OK false.
func (v *Verifier) Verify(ctx context.Context, method factor.Method, user identity.User, cred Credential) (Verdict, error) {
	switch method {
	case factor.MethodPassword:
		if cred.Password == "" {
			return reject(ReasonNoPassword, nil), nil
		}
		if !v.passwords.VerifyPassword(user.PasswordHash, cred.Password) {
			return reject(ReasonWrongPassword, nil), nil
		}
		return pass(), nil

	case factor.MethodFaceRecognition:
		if len(cred.Image) == 0 {
			return reject(ReasonNoPhoto, nil), nil
		}
		if v.faces == nil {
			return Verdict{}, fmt.Errorf("%w: no face matcher configured", ErrUnavailable)
		}
		ok, err := v.faces.MatchFace(ctx, user, cred.Image)
		if err != nil {
			return Verdict{}, unavailable("face match", err)
		}
		if !ok {
			return reject(ReasonFaceMismatch, cred.Image), nil
		}
		return pass(), nil

	case factor.MethodMotionPattern:
		return Verdict{}, fmt.Errorf("%w: motion pattern is verified through the device challenge", ErrValidation)

	default:
		return Verdict{}, fmt.Errorf("%w: unknown method %q", ErrValidation, method)
	}
}
