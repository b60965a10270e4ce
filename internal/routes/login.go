package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/picoauth/picoauth/internal/login"
)

// RegisterLoginRoutes wires the staged login, client validation and the
// failed-event dashboard. The limiter guards every credential-bearing route.
func RegisterLoginRoutes(r fiber.Router, h *login.Handler, limiter fiber.Handler) {
	g := r.Group("/login")
	g.Post("/email", limiter, h.Email)
	g.Post("/password", limiter, h.Password)
	g.Post("/face_recognition", limiter, h.FaceRecognition)

	motion := g.Group("/motion_pattern")
	motion.Post("/unique", h.MotionUnique)
	motion.Post("/initialize", limiter, h.MotionInitialize)
	motion.Post("/validate", limiter, h.MotionValidate)

	r.Post("/client/validate", h.ClientValidate)
	r.Get("/dashboard/failed_events", h.FailedEvents)
}
