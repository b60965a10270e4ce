package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/picoauth/picoauth/internal/identity"
)

// RegisterIdentityRoutes wires account creation.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/signup", h.Signup)
}
