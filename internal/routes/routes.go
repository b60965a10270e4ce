package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/picoauth/picoauth/internal/audit"
	"github.com/picoauth/picoauth/internal/clock"
	"github.com/picoauth/picoauth/internal/config"
	"github.com/picoauth/picoauth/internal/face"
	"github.com/picoauth/picoauth/internal/identity"
	"github.com/picoauth/picoauth/internal/infra"
	"github.com/picoauth/picoauth/internal/login"
	"github.com/picoauth/picoauth/internal/middleware"
	"github.com/picoauth/picoauth/internal/notification"
	"github.com/picoauth/picoauth/internal/token"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Clock overrides the wall clock; tests use a manual one.
	Clock clock.Clock
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Clock == nil {
		d.Clock = clock.System()
	}

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			stack := debug.Stack()
			d.Logger.Error("panic recovered",
				slog.Any("panic", e),
				slog.String("path", c.Path()),
				slog.String("stack", string(stack)),
			)
			reqID := middleware.RequestIDOf(c)
			infra.CapturePanic(e, stack, map[string]string{"path": c.Path(), "request_id": reqID})
		},
	}))
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLog(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	// Repositories and stores
	var (
		identityRepo identity.Repository
		auditRepo    audit.Repository
		store        login.Store
		broker       notification.Broker
	)
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
		auditRepo = audit.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
		auditRepo = audit.NewMemoryRepository()
	}
	if d.Cache != nil {
		store = login.NewRedisStore(d.Cache, "")
		broker = notification.NewRedisBroker(d.Cache, "")
	} else {
		store = login.NewMemoryStore()
		broker = notification.NewMemoryBroker()
	}
	broker = notification.NewLoggingBroker(broker, d.Logger)

	// Services and handlers
	hasher := identity.NewHasher(d.Cfg.BcryptCost)
	identitySvc := identity.NewService(identityRepo, hasher, d.Clock)
	faces, err := faceMatcher(d.Cfg)
	if err != nil {
		return err
	}
	tokens, err := token.NewManager(d.Cfg.JWTSecret, d.Cfg.JWTIssuer, d.Cfg.AuthSessionExpiry)
	if err != nil {
		return err
	}
	loginSvc, err := login.NewService(login.Deps{
		Store:     store,
		Users:     identitySvc,
		Passwords: hasher,
		Patterns:  hasher,
		Faces:     faces,
		Events:    audit.NewLogger(auditRepo, d.Clock, d.Logger),
		Broker:    broker,
		Integrity: infra.NewSentryReporter(d.Logger),
		Config:    d.Cfg.Login(),
		Clock:     d.Clock,
		Logger:    d.Logger,
	})
	if err != nil {
		return err
	}

	identityHandler := identity.NewHandler(identitySvc, d.Logger)
	loginHandler := login.NewHandler(loginSvc, tokens, d.Logger)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID := middleware.RequestIDOf(c)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  d.Clock.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterIdentityRoutes(api, identityHandler)
	rateLimiter := middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimitPerMin, d.Logger)
	RegisterLoginRoutes(api, loginHandler, rateLimiter)

	// Protected routes
	protected := api.Group("", middleware.BearerAuth(tokens, loginSvc))
	protected.Get("/me", func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		user, err := identitySvc.FindByID(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		}
		return c.JSON(fiber.Map{
			"user_id":         user.ID,
			"email":           user.Email,
			"auth_methods":    user.Methods.Methods(),
			"auth_session_id": c.Locals("auth_session_id"),
			"created_at":      user.CreatedAt,
		})
	})

	return nil
}

// faceMatcher picks the remote matcher when one is configured. Local
// environments fall back to comparing photo digests.
func faceMatcher(cfg config.Config) (login.FaceMatcher, error) {
	if cfg.FaceMatcherURL != "" {
		return face.NewRemoteMatcher(cfg.FaceMatcherURL, cfg.FaceMatcherAPIKey, cfg.FaceMatcherTimeout)
	}
	if cfg.IsDev() {
		return face.DigestMatcher{}, nil
	}
	return nil, nil
}
