package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/picoauth/picoauth/internal/config"
	"github.com/picoauth/picoauth/internal/login"
	"github.com/picoauth/picoauth/internal/logging"
)

func testConfig() config.Config {
	defaults := login.DefaultConfig()
	return config.Config{
		AppName:              "picoauth-test",
		AppEnv:               "test",
		IdempotencyTTL:       time.Hour,
		MotionTimeout:        defaults.MotionTimeout,
		MotionPollInterval:   defaults.MotionPollInterval,
		AuthSessionExpiry:    defaults.AuthSessionExpiry,
		LoginSessionTTL:      defaults.LoginSessionTTL,
		JWTSecret:            "routes-test-secret-0123456789",
		JWTIssuer:            "picoauth-test",
		BcryptCost:           4,
		LoginRateLimitPerMin: 3,
	}
}

func newApp(t *testing.T, cfg config.Config, cache *redis.Client) *fiber.App {
	t.Helper()
	app := fiber.New()
	if err := Setup(app, Deps{Cfg: cfg, Cache: cache, Logger: logging.Discard()}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app
}

func call(t *testing.T, app *fiber.App, method, path string, body any, header map[string]string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	payload, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(payload, &out)
	return resp.StatusCode, out
}

func signupAndLogin(t *testing.T, app *fiber.App) map[string]any {
	t.Helper()
	status, body := call(t, app, fiber.MethodPost, "/api/v1/signup", map[string]any{
		"email":        "ada@example.com",
		"password":     "Secret123",
		"auth_methods": map[string]bool{"password": true},
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("signup: %d %v", status, body)
	}

	status, body = call(t, app, fiber.MethodPost, "/api/v1/login/email", map[string]any{"data": "ada@example.com"}, nil)
	if status != http.StatusOK || body["next"] != "password" {
		t.Fatalf("email step: %d %v", status, body)
	}
	sessionID, _ := body["session_id"].(string)

	status, body = call(t, app, fiber.MethodPost, "/api/v1/login/password", map[string]any{"session_id": sessionID, "data": "Secret123"}, nil)
	if status != http.StatusOK || body["auth_session_id"] == nil {
		t.Fatalf("password step: %d %v", status, body)
	}
	return body
}

func TestPasswordLoginThenProfile(t *testing.T) {
	app := newApp(t, testConfig(), nil)
	done := signupAndLogin(t, app)

	tok, _ := done["access_token"].(string)
	status, me := call(t, app, fiber.MethodGet, "/api/v1/me", nil, map[string]string{"Authorization": "Bearer " + tok})
	if status != http.StatusOK || me["email"] != "ada@example.com" {
		t.Fatalf("me: %d %v", status, me)
	}

	status, _ = call(t, app, fiber.MethodGet, "/api/v1/me", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}

	status, valid := call(t, app, fiber.MethodPost, "/api/v1/client/validate", map[string]any{"auth_session_id": done["auth_session_id"]}, nil)
	if status != http.StatusOK || valid["email"] != "ada@example.com" {
		t.Fatalf("client validate: %d %v", status, valid)
	}
}

func TestRedisBackedLoginIsRateLimited(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := newApp(t, testConfig(), cache)
	signupAndLogin(t, app)

	var status int
	for i := 0; i < 3; i++ {
		status, _ = call(t, app, fiber.MethodPost, "/api/v1/login/email", map[string]any{"data": "ada@example.com"}, nil)
	}
	if status != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", status)
	}
}

func TestFailedEventsDashboard(t *testing.T) {
	app := newApp(t, testConfig(), nil)
	call(t, app, fiber.MethodPost, "/api/v1/signup", map[string]any{
		"email":        "bob@example.com",
		"password":     "Secret123",
		"auth_methods": map[string]bool{"password": true},
	}, nil)
	_, body := call(t, app, fiber.MethodPost, "/api/v1/login/email", map[string]any{"data": "bob@example.com"}, nil)
	sessionID, _ := body["session_id"].(string)

	status, _ := call(t, app, fiber.MethodPost, "/api/v1/login/password", map[string]any{"session_id": sessionID, "data": "Wrong1234"}, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", status)
	}

	status, events := call(t, app, fiber.MethodGet, "/api/v1/dashboard/failed_events?email=bob@example.com", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("dashboard: %d %v", status, events)
	}
	list, _ := events["events"].([]any)
	if len(list) != 1 {
		t.Fatalf("expected one failed event, got %v", events)
	}
}

func TestSetupRequiresBackendsOutsideDev(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "production"
	if err := Setup(fiber.New(), Deps{Cfg: cfg, Logger: logging.Discard()}); err == nil {
		t.Fatal("expected setup to fail without postgres and redis")
	}
}

func TestHealth(t *testing.T) {
	app := newApp(t, testConfig(), nil)
	status, body := call(t, app, fiber.MethodGet, "/healthz", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("healthz: %d %v", status, body)
	}
}
