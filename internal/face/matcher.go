package face

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/picoauth/picoauth/internal/identity"
)

const defaultTimeout = 10 * time.Second

// RemoteMatcher asks an external recognition service whether an image shows
// a user. The service receives the user's face reference and the image and
// answers {"match": bool}.
type RemoteMatcher struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
}

// NewRemoteMatcher builds a matcher posting to endpoint.
func NewRemoteMatcher(endpoint, apiKey string, timeout time.Duration) (*RemoteMatcher, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("face matcher endpoint is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &RemoteMatcher{endpoint: endpoint, apiKey: apiKey, timeout: timeout}, nil
}

type matchRequest struct {
	Reference string `json:"reference"`
	Image     string `json:"image"`
}

type matchResponse struct {
	Match bool `json:"match"`
}

// MatchFace posts the image and reports the service's verdict.
func (m *RemoteMatcher) MatchFace(ctx context.Context, user identity.User, image []byte) (bool, error) {
	timeout := m.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return false, context.DeadlineExceeded
	}

	agent := fiber.Post(m.endpoint).
		JSON(matchRequest{
			Reference: user.FaceReference,
			Image:     base64.StdEncoding.EncodeToString(image),
		}).
		Timeout(timeout)
	if m.apiKey != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+m.apiKey)
	}

	var resp matchResponse
	code, body, errs := agent.Struct(&resp)
	if len(errs) > 0 {
		return false, fmt.Errorf("face matcher: %w", errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return false, fmt.Errorf("face matcher: status %d: %s", code, truncate(body, 200))
	}
	return resp.Match, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

// DigestMatcher matches when the hex SHA-256 of the image equals the user's
// face reference. Used in local environments without a recognition service.
type DigestMatcher struct{}

// MatchFace compares digests.
func (DigestMatcher) MatchFace(_ context.Context, user identity.User, image []byte) (bool, error) {
	return Digest(image) == strings.ToLower(user.FaceReference), nil
}

// Digest returns the hex SHA-256 of image.
func Digest(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}
