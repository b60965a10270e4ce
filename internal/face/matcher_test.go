package face

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/picoauth/picoauth/internal/identity"
)

func TestRemoteMatcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req matchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		img, _ := base64.StdEncoding.DecodeString(req.Image)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(matchResponse{Match: req.Reference == "ref-1" && string(img) == "me"})
	}))
	defer srv.Close()

	m, err := NewRemoteMatcher(srv.URL, "key", time.Second)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	user := identity.User{ID: "u1", FaceReference: "ref-1"}

	ok, err := m.MatchFace(context.Background(), user, []byte("me"))
	if err != nil || !ok {
		t.Fatalf("expected match, got %v %v", ok, err)
	}
	ok, err = m.MatchFace(context.Background(), user, []byte("someone else"))
	if err != nil || ok {
		t.Fatalf("expected mismatch, got %v %v", ok, err)
	}
}

func TestRemoteMatcherSurfacesServiceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m, _ := NewRemoteMatcher(srv.URL, "", time.Second)
	if _, err := m.MatchFace(context.Background(), identity.User{}, []byte("img")); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestDigestMatcher(t *testing.T) {
	img := []byte("reference photo")
	user := identity.User{FaceReference: Digest(img)}
	if ok, _ := (DigestMatcher{}).MatchFace(context.Background(), user, img); !ok {
		t.Fatal("expected digest match")
	}
	if ok, _ := (DigestMatcher{}).MatchFace(context.Background(), user, []byte("other")); ok {
		t.Fatal("expected digest mismatch")
	}
}
