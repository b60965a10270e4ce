package login

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/picoauth/picoauth/internal/factor"
	"github.com/picoauth/picoauth/internal/notification"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisStoreSessions(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client, "test")
	ctx := context.Background()

	session := LoginSession{ID: "s1", UserID: "u1", CreatedAt: time.Now().UTC(), Completed: []factor.Method{}, Motion: MotionState{Status: MotionIdle}}
	if err := store.CreateLoginSession(ctx, session, time.Minute); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := store.CreateLoginSession(ctx, session, time.Minute)
	expectKind(t, err, KindConflict)

	updated, err := store.UpdateLoginSession(ctx, "s1", func(s *LoginSession) error {
		s.Completed = append(s.Completed, factor.MethodPassword)
		s.Motion = MotionState{PicoID: "p1", AddedSequence: factor.Pattern{factor.Up, factor.Right}, Status: MotionAwaitingDevice}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 1 {
		t.Fatalf("expected version 1, got %d", updated.Version)
	}
	if ttl := mr.TTL("test:login:s1"); ttl <= 0 {
		t.Fatalf("update must keep the session ttl, got %s", ttl)
	}

	got, err := store.GetLoginSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.HasCompleted(factor.MethodPassword) || !got.Motion.AddedSequence.Equal(factor.Pattern{factor.Up, factor.Right}) {
		t.Fatalf("round trip lost data: %+v", got)
	}

	_, err = store.UpdateLoginSession(ctx, "s1", func(*LoginSession) error {
		return ErrSequenceViolation
	})
	expectKind(t, err, KindSequenceViolation)
	got, _ = store.GetLoginSession(ctx, "s1")
	if got.Version != 1 {
		t.Fatalf("failed update must not write, version %d", got.Version)
	}

	_, err = store.UpdateLoginSession(ctx, "missing", func(*LoginSession) error { return nil })
	expectKind(t, err, KindNotFound)

	if err := store.DeleteLoginSession(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = store.GetLoginSession(ctx, "s1")
	expectKind(t, err, KindNotFound)
}

func TestRedisStorePicoReservations(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client, "")
	ctx := context.Background()

	ok, err := store.ReservePico(ctx, "p1", "s1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("reserve: %v %v", ok, err)
	}
	if ok, _ := store.ReservePico(ctx, "p1", "s2", time.Minute); ok {
		t.Fatal("second reservation must fail")
	}

	if err := store.ReleasePico(ctx, "p1", "s2"); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if owner, _ := store.LookupPico(ctx, "p1"); owner != "s1" {
		t.Fatalf("non-owner release dropped the reservation, owner %q", owner)
	}

	if err := store.ReleasePico(ctx, "p1", "s1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	_, err = store.LookupPico(ctx, "p1")
	expectKind(t, err, KindNotFound)

	_, _ = store.ReservePico(ctx, "p2", "s3", time.Second)
	mr.FastForward(2 * time.Second)
	if ok, _ := store.ReservePico(ctx, "p2", "s4", time.Second); !ok {
		t.Fatal("expired reservation should be free again")
	}
}

func TestRedisStoreAuthSessions(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisStore(client, "")
	ctx := context.Background()

	issued := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	if err := store.SaveAuthSession(ctx, AuthSession{ID: "a1", UserID: "u1", IssuedAt: issued}, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.GetAuthSession(ctx, "a1")
	if err != nil || got.UserID != "u1" || !got.IssuedAt.Equal(issued) {
		t.Fatalf("get: %+v %v", got, err)
	}
	_, err = store.GetAuthSession(ctx, "a2")
	expectKind(t, err, KindNotFound)
}

func TestRedisBackedMotionLogin(t *testing.T) {
	_, client := newTestRedis(t)
	f := newFixture(t, func(d *Deps) {
		d.Store = NewRedisStore(client, "")
		d.Broker = notification.NewRedisBroker(client, "")
	})
	ctx := context.Background()
	sessionID := beginMotion(t, f, "redis@picoauth.test")

	if _, err := f.svc.RegisterMotionDevice(ctx, sessionID, "pico-redis", []string{"left"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.AwaitMotionPattern(ctx, sessionID)
		done <- err
	}()
	if _, err := f.svc.ValidateMotionPattern(ctx, "pico-redis", []string{"up", "left", "left"}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("await: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("await did not wake over redis pub/sub")
	}

	auth, err := f.svc.FinalizeIfReady(ctx, sessionID)
	if err != nil || auth == nil {
		t.Fatalf("finalize: %v %v", auth, err)
	}
	if _, err := f.svc.ValidateAuthSession(ctx, auth.ID); err != nil {
		t.Fatalf("validate auth session: %v", err)
	}
}
