package identity

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type signupRequest struct {
	Email         string          `json:"email"`
	Password      string          `json:"password"`
	MotionPattern []string        `json:"motion_pattern"`
	FaceReference string          `json:"face_reference"`
	AuthMethods   map[string]bool `json:"auth_methods"`
}

// Signup handles account creation.
func (h *Handler) Signup(c *fiber.Ctx) error {
	var req signupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"msg": "Error: request body must be JSON. User not created.", "success": 0})
	}
	user, err := h.service.Register(c.UserContext(), Signup{
		Email:         req.Email,
		Password:      req.Password,
		MotionPattern: req.MotionPattern,
		FaceReference: req.FaceReference,
		AuthMethods:   req.AuthMethods,
	})
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, ErrInvalidSignup) && !errors.Is(err, ErrUserExists) {
			status = http.StatusInternalServerError
			h.logger.Error("identity.signup failed", slog.Any("error", err))
		}
		return c.Status(status).JSON(fiber.Map{"msg": "Error: " + err.Error() + ". User not created.", "success": 0})
	}
	h.logger.Info("identity.signup completed",
		slog.String("user_id", user.ID),
		slog.Any("methods", user.Methods.Methods()),
	)
	return c.Status(http.StatusOK).JSON(fiber.Map{"msg": "User successfully created.", "user_id": user.ID, "success": 1})
}
