package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/picoauth/picoauth/internal/login"
)

const (
	defaultAppName        = "picoauth"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultFaceTimeout    = 10 * time.Second
	defaultLoginRateLimit = 10
	devJWTSecret          = "picoauth-development-secret"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	MotionTimeout      time.Duration
	MotionPollInterval time.Duration
	AuthSessionExpiry  time.Duration
	LoginSessionTTL    time.Duration

	JWTSecret            string
	JWTIssuer            string
	BcryptCost           int
	LoginRateLimitPerMin int

	FaceMatcherURL     string
	FaceMatcherAPIKey  string
	FaceMatcherTimeout time.Duration

	SentryDSN string
}

// Load reads a local .env file when present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	defaults := login.DefaultConfig()
	cfg := Config{
		AppName:           getEnv("APP_NAME", defaultAppName),
		AppEnv:            getEnv("APP_ENV", defaultAppEnv),
		Port:              getEnv("PORT", defaultPort),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		JWTIssuer:         getEnv("JWT_ISSUER", defaultAppName),
		FaceMatcherURL:    os.Getenv("FACE_MATCHER_URL"),
		FaceMatcherAPIKey: os.Getenv("FACE_MATCHER_API_KEY"),
		SentryDSN:         os.Getenv("SENTRY_DSN"),
	}

	var err error
	durations := []struct {
		dst      *time.Duration
		name     string
		fallback time.Duration
	}{
		{&cfg.ShutdownPeriod, "SHUTDOWN_TIMEOUT", defaultShutdownDelay},
		{&cfg.IdempotencyTTL, "IDEMPOTENCY_TTL", defaultIdempotencyTTL},
		{&cfg.MotionTimeout, "MOTION_TIMEOUT", defaults.MotionTimeout},
		{&cfg.MotionPollInterval, "MOTION_POLL_INTERVAL", defaults.MotionPollInterval},
		{&cfg.AuthSessionExpiry, "AUTH_SESSION_EXPIRY", defaults.AuthSessionExpiry},
		{&cfg.LoginSessionTTL, "LOGIN_SESSION_TTL", defaults.LoginSessionTTL},
		{&cfg.FaceMatcherTimeout, "FACE_MATCHER_TIMEOUT", defaultFaceTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.name, d.fallback); err != nil {
			return Config{}, err
		}
	}

	if cfg.BcryptCost, err = getInt("BCRYPT_COST", 0); err != nil {
		return Config{}, err
	}
	if cfg.LoginRateLimitPerMin, err = getInt("LOGIN_RATE_LIMIT_PER_MIN", defaultLoginRateLimit); err != nil {
		return Config{}, err
	}

	if err := cfg.Login().Validate(); err != nil {
		return Config{}, err
	}

	if cfg.IsDev() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devJWTSecret
		}
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if len(cfg.JWTSecret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	return cfg, nil
}

// Login returns the login core settings.
func (c Config) Login() login.Config {
	return login.Config{
		MotionTimeout:      c.MotionTimeout,
		MotionPollInterval: c.MotionPollInterval,
		AuthSessionExpiry:  c.AuthSessionExpiry,
		LoginSessionTTL:    c.LoginSessionTTL,
	}
}

// IsDev reports whether the app runs in a local environment, where Postgres
// and Redis are optional.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getDuration reads NAME_SECONDS as whole seconds, or NAME as a Go duration.
func getDuration(name string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(name + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", name, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(name); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", name, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getInt(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}
