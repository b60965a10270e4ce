package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const loginRateLimitPrefix = "picoauth:rl:login:"

// LoginRateLimit caps login step submissions per minute, keyed by the login
// session (or the email on the first step) and falling back to the client IP.
// Without Redis, or when Redis fails, requests pass through.
func LoginRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 10
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		key := loginRateLimitPrefix + rateLimitSubject(c)

		ctx := c.UserContext()
		count, err := cache.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("login rate limit unavailable", slog.Any("error", err))
			return c.Next()
		}
		if count == 1 {
			cache.Expire(ctx, key, time.Minute)
		}
		if count > int64(maxPerMin) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"msg":     "Error: too many login attempts, try again later.",
				"success": 0,
			})
		}
		return c.Next()
	}
}

func rateLimitSubject(c *fiber.Ctx) string {
	var req struct {
		SessionID string `json:"session_id"`
		Data      any    `json:"data"`
	}
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		_ = c.BodyParser(&req)
	} else {
		req.SessionID = c.FormValue("session_id")
	}
	if id := strings.TrimSpace(req.SessionID); id != "" {
		return "session:" + id
	}
	if email, ok := req.Data.(string); ok && strings.Contains(email, "@") {
		return "email:" + strings.ToLower(strings.TrimSpace(email))
	}
	return "ip:" + c.IP()
}
