package identity

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/picoauth/picoauth/internal/factor"
)

// Hasher hashes and verifies the secrets stored on a User.
type Hasher struct {
	cost int
}

// NewHasher builds a bcrypt hasher. A non-positive cost uses bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the bcrypt hash of secret.
func (h *Hasher) Hash(secret []byte) ([]byte, error) {
	return bcrypt.GenerateFromPassword(secret, h.cost)
}

// VerifyPassword reports whether candidate matches hash.
func (h *Hasher) VerifyPassword(hash []byte, candidate string) bool {
	if len(hash) == 0 || candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(candidate)) == nil
}

// VerifyPattern reports whether candidate is the base pattern behind hash.
func (h *Hasher) VerifyPattern(hash []byte, candidate factor.Pattern) bool {
	if len(hash) == 0 || len(candidate) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, candidate.Encode()) == nil
}
