package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/picoauth/picoauth/internal/clock"
	"github.com/picoauth/picoauth/internal/factor"
)

const (
	minPasswordLength = 8
	// maxSecretBytes is the longest input bcrypt accepts.
	maxSecretBytes = 72
)

// ErrInvalidSignup wraps every signup validation failure.
var ErrInvalidSignup = errors.New("invalid signup")

// Service manages account creation and lookup.
type Service struct {
	repo   Repository
	hasher *Hasher
	clock  clock.Clock
}

// NewService creates a new identity service. A nil clock uses the system clock.
func NewService(repo Repository, hasher *Hasher, clk clock.Clock) *Service {
	if hasher == nil {
		hasher = NewHasher(0)
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Service{repo: repo, hasher: hasher, clock: clk}
}

// Register validates the signup and stores the user with hashed secrets.
// Secrets are only required for the methods the user enables.
func (s *Service) Register(ctx context.Context, req Signup) (User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return User{}, err
	}

	methods, err := parseMethods(req.AuthMethods)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:        uuid.New().String(),
		Email:     email,
		Methods:   methods,
		CreatedAt: s.clock.Now().UTC(),
	}

	if methods.Has(factor.MethodPassword) {
		if err := checkPasswordPolicy(req.Password); err != nil {
			return User{}, err
		}
		if user.PasswordHash, err = s.hasher.Hash([]byte(req.Password)); err != nil {
			return User{}, err
		}
	}

	if methods.Has(factor.MethodMotionPattern) {
		pattern, err := factor.ParsePattern(req.MotionPattern)
		if err != nil {
			return User{}, fmt.Errorf("%w: %v", ErrInvalidSignup, err)
		}
		if len(pattern) == 0 {
			return User{}, fmt.Errorf("%w: motion pattern is required", ErrInvalidSignup)
		}
		if len(pattern.Encode()) > maxSecretBytes {
			return User{}, fmt.Errorf("%w: motion pattern must be at most %d moves", ErrInvalidSignup, maxSecretBytes)
		}
		if user.MotionPatternHash, err = s.hasher.Hash(pattern.Encode()); err != nil {
			return User{}, err
		}
	}

	if methods.Has(factor.MethodFaceRecognition) {
		user.FaceReference = strings.TrimSpace(req.FaceReference)
		if user.FaceReference == "" {
			user.FaceReference = user.ID
		}
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// FindByEmail resolves the account used to start a login.
func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	return s.repo.FindByEmail(ctx, normalized)
}

// FindByID resolves a user by identifier.
func (s *Service) FindByID(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", fmt.Errorf("%w: invalid email", ErrInvalidSignup)
	}
	return strings.ToLower(addr.Address), nil
}

func parseMethods(flags map[string]bool) (factor.MethodSet, error) {
	var enabled []factor.Method
	for name, on := range flags {
		m, err := factor.ParseMethod(name)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidSignup, err)
		}
		if on {
			enabled = append(enabled, m)
		}
	}
	set := factor.NewMethodSet(enabled...)
	if set.Empty() {
		return 0, fmt.Errorf("%w: at least one auth method must be enabled", ErrInvalidSignup)
	}
	return set, nil
}

func checkPasswordPolicy(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidSignup, minPasswordLength)
	}
	if len(password) > maxSecretBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidSignup, maxSecretBytes)
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return fmt.Errorf("%w: password needs an uppercase letter, a lowercase letter and a digit", ErrInvalidSignup)
	}
	return nil
}
