package login

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/picoauth/picoauth/internal/audit"
	"github.com/picoauth/picoauth/internal/factor"
)

const maxPhotoBytes = 8 << 20

// TokenIssuer signs the bearer token handed out with an AuthSession.
type TokenIssuer interface {
	Issue(userID, authSessionID string, issuedAt time.Time) (string, error)
}

// Handler exposes the staged login over HTTP.
type Handler struct {
	service *Service
	tokens  TokenIssuer
	logger  *slog.Logger
}

// NewHandler constructs a login handler.
func NewHandler(service *Service, tokens TokenIssuer, logger *slog.Logger) *Handler {
	return &Handler{service: service, tokens: tokens, logger: logger}
}

type emailRequest struct {
	Data string `json:"data"`
}

type credentialRequest struct {
	SessionID string `json:"session_id"`
	Data      string `json:"data"`
}

type picoRequest struct {
	PicoID string `json:"pico_id"`
}

type motionInitRequest struct {
	SessionID string   `json:"session_id"`
	PicoID    string   `json:"pico_id"`
	Data      []string `json:"data"`
}

type motionValidateRequest struct {
	PicoID string   `json:"pico_id"`
	Data   []string `json:"data"`
}

type clientValidateRequest struct {
	AuthSessionID string `json:"auth_session_id"`
}

// Email starts a login for the account in data.
func (h *Handler) Email(c *fiber.Ctx) error {
	var req emailRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	step, err := h.service.BeginLogin(c.UserContext(), req.Data)
	if err != nil {
		return h.fail(c, "login.email", err)
	}
	return h.advance(c, step)
}

// Password checks the password stage.
func (h *Handler) Password(c *fiber.Ctx) error {
	var req credentialRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	step, err := h.service.SubmitCredential(c.UserContext(), req.SessionID, factor.MethodPassword, Credential{Password: req.Data})
	if err != nil {
		return h.fail(c, "login.password", err)
	}
	return h.advance(c, step)
}

// MotionUnique reports whether a pico id is free.
func (h *Handler) MotionUnique(c *fiber.Ctx) error {
	var req picoRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	ok, err := h.service.IsPicoAvailable(c.UserContext(), req.PicoID)
	if err != nil {
		return h.fail(c, "login.motion.unique", err)
	}
	if !ok {
		return c.Status(http.StatusOK).JSON(fiber.Map{"msg": "Pico id is already in use.", "success": 0, "unique": false})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"msg": "Pico id is available.", "success": 1, "unique": true})
}

// MotionInitialize registers the device and holds the request until the
// device settles the challenge or it times out.
func (h *Handler) MotionInitialize(c *fiber.Ctx) error {
	var req motionInitRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	ctx := c.UserContext()
	if _, err := h.service.RegisterMotionDevice(ctx, req.SessionID, req.PicoID, req.Data); err != nil {
		return h.fail(c, "login.motion.initialize", err)
	}
	step, err := h.service.AwaitMotionPattern(ctx, req.SessionID)
	if err != nil {
		return h.fail(c, "login.motion.await", err)
	}
	return h.advance(c, step)
}

// MotionValidate receives the performed sequence from the device.
func (h *Handler) MotionValidate(c *fiber.Ctx) error {
	var req motionValidateRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	step, err := h.service.ValidateMotionPattern(c.UserContext(), req.PicoID, req.Data)
	if err != nil {
		return h.fail(c, "login.motion.validate", err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"msg":     "Motion pattern accepted.",
		"success": 1,
		"next":    string(step.Next),
	})
}

// FaceRecognition checks the multipart photo upload.
func (h *Handler) FaceRecognition(c *fiber.Ctx) error {
	sessionID := c.FormValue("session_id")
	var photo []byte
	if fh, err := c.FormFile("photo"); err == nil {
		if fh.Size > maxPhotoBytes {
			return c.Status(http.StatusRequestEntityTooLarge).JSON(fiber.Map{"msg": "Error: photo is too large.", "success": 0})
		}
		f, err := fh.Open()
		if err != nil {
			return h.fail(c, "login.face", err)
		}
		photo, err = io.ReadAll(io.LimitReader(f, maxPhotoBytes))
		_ = f.Close()
		if err != nil {
			return h.fail(c, "login.face", err)
		}
	}
	step, err := h.service.SubmitCredential(c.UserContext(), sessionID, factor.MethodFaceRecognition, Credential{Image: photo})
	if err != nil {
		return h.fail(c, "login.face", err)
	}
	return h.advance(c, step)
}

// ClientValidate checks an AuthSession id handed to a client application.
func (h *Handler) ClientValidate(c *fiber.Ctx) error {
	var req clientValidateRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	user, err := h.service.ValidateAuthSession(c.UserContext(), req.AuthSessionID)
	if err != nil {
		return h.fail(c, "client.validate", err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"msg":     "Auth session is valid.",
		"success": 1,
		"user_id": user.ID,
		"email":   user.Email,
	})
}

// FailedEvents lists failed login events by email or session_id.
func (h *Handler) FailedEvents(c *fiber.Ctx) error {
	events, err := h.service.FailedEventsFor(c.UserContext(), c.Query("email"), c.Query("session_id"))
	if err != nil {
		return h.fail(c, "dashboard.failed_events", err)
	}
	out := make([]fiber.Map, 0, len(events))
	for _, e := range events {
		out = append(out, eventJSON(e))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"success": 1, "events": out})
}

func eventJSON(e audit.Event) fiber.Map {
	return fiber.Map{
		"id":           e.ID,
		"user_id":      e.UserID,
		"session_id":   e.SessionID,
		"reason":       e.Reason,
		"has_evidence": len(e.Evidence) > 0,
		"occurred_at":  e.OccurredAt,
	}
}

// advance answers a successful step, finalizing the login when no stage is
// left.
func (h *Handler) advance(c *fiber.Ctx, step Step) error {
	if !step.Done {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"msg":        "Proceed to " + string(step.Next) + ".",
			"success":    1,
			"session_id": step.SessionID,
			"next":       string(step.Next),
		})
	}

	auth, err := h.service.FinalizeIfReady(c.UserContext(), step.SessionID)
	if err != nil {
		return h.fail(c, "login.finalize", err)
	}
	if auth == nil {
		return h.fail(c, "login.finalize", ErrSequenceViolation)
	}
	resp := fiber.Map{
		"msg":             "Login complete.",
		"success":         1,
		"session_id":      step.SessionID,
		"next":            "",
		"auth_session_id": auth.ID,
	}
	if h.tokens != nil {
		tok, err := h.tokens.Issue(auth.UserID, auth.ID, auth.IssuedAt)
		if err != nil {
			return h.fail(c, "login.token", err)
		}
		resp["access_token"] = tok
		resp["token_type"] = "Bearer"
	}
	return c.Status(http.StatusOK).JSON(resp)
}

func (h *Handler) fail(c *fiber.Ctx, op string, err error) error {
	status := StatusOf(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.Any("error", err))
		msg = "service temporarily unavailable"
	}
	return c.Status(status).JSON(fiber.Map{
		"msg":     "Error: " + msg,
		"success": 0,
		"error":   KindOf(err).String(),
	})
}

func badBody(c *fiber.Ctx) error {
	return c.Status(http.StatusBadRequest).JSON(fiber.Map{"msg": "Error: request body must be JSON.", "success": 0, "error": KindValidation.String()})
}

// StatusOf maps an error kind to an HTTP status.
func StatusOf(err error) int {
	switch KindOf(err) {
	case KindValidation, KindSequenceViolation:
		return http.StatusBadRequest
	case KindNotFound, KindExpired, KindAuthentication:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}
