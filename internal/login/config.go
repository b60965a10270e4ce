package login

import (
	"fmt"
	"time"
)

// Config holds the runtime knobs of the login core.
type Config struct {
	// MotionTimeout bounds how long a device registration may stay
	// awaiting, measured from registration.
	MotionTimeout time.Duration
	// MotionPollInterval is the fallback re-read period while awaiting a
	// device; notifications normally wake the waiter sooner.
	MotionPollInterval time.Duration
	// AuthSessionExpiry is the validity window of an issued AuthSession.
	AuthSessionExpiry time.Duration
	// LoginSessionTTL is the idle window after which an unfinished login
	// session is discarded.
	LoginSessionTTL time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MotionTimeout:      60 * time.Second,
		MotionPollInterval: 3 * time.Second,
		AuthSessionExpiry:  30 * time.Minute,
		LoginSessionTTL:    5 * time.Minute,
	}
}

// Validate rejects non-positive durations.
func (c Config) Validate() error {
	switch {
	case c.MotionTimeout <= 0:
		return fmt.Errorf("motion timeout must be positive")
	case c.MotionPollInterval <= 0:
		return fmt.Errorf("motion poll interval must be positive")
	case c.AuthSessionExpiry <= 0:
		return fmt.Errorf("auth session expiry must be positive")
	case c.LoginSessionTTL <= 0:
		return fmt.Errorf("login session ttl must be positive")
	}
	return nil
}
