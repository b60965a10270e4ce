package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/picoauth/picoauth/internal/identity"
	"github.com/picoauth/picoauth/internal/token"
)

// TokenParser verifies bearer tokens.
type TokenParser interface {
	Parse(raw string) (*token.Claims, error)
}

// AuthSessionValidator resolves a live AuthSession to its user.
type AuthSessionValidator interface {
	ValidateAuthSession(ctx context.Context, authSessionID string) (identity.User, error)
}

// BearerAuth admits requests carrying a valid access token whose AuthSession
// is still live. It sets the user_id and auth_session_id locals.
func BearerAuth(tokens TokenParser, sessions AuthSessionValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < 7 || !strings.EqualFold(authz[:7], "bearer ") {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		claims, err := tokens.Parse(strings.TrimSpace(authz[7:]))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		user, err := sessions.ValidateAuthSession(c.UserContext(), claims.SID)
		if err != nil || user.ID != claims.UID {
			return fiber.NewError(fiber.StatusUnauthorized, "session expired, log in again")
		}

		c.Locals("user_id", user.ID)
		c.Locals("auth_session_id", claims.SID)
		return c.Next()
	}
}
