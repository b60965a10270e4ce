package identity

import (
	"time"

	"github.com/picoauth/picoauth/internal/factor"
)

// User represents an account that can walk the staged login.
type User struct {
	ID                string
	Email             string
	PasswordHash      []byte
	MotionPatternHash []byte
	FaceReference     string
	Methods           factor.MethodSet
	CreatedAt         time.Time
}

// Signup request structure.
type Signup struct {
	Email         string
	Password      string
	MotionPattern []string
	FaceReference string
	AuthMethods   map[string]bool
}
