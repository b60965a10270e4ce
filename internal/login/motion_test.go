package login

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/picoauth/picoauth/internal/clock"
	"github.com/picoauth/picoauth/internal/factor"
)

func beginMotion(t *testing.T, f *fixture, email string) string {
	t.Helper()
	f.signup(t, email, factor.MethodMotionPattern)
	step, err := f.svc.BeginLogin(context.Background(), email)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	return step.SessionID
}

func TestMotionPatternRoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		submitted []string
		kind      Kind
		reason    string
	}{
		{"exact", []string{"up", "left", "right"}, KindUnknown, ""},
		{"base swapped", []string{"up", "right", "left"}, KindAuthentication, ReasonWrongBasePattern},
		{"wrong suffix", []string{"up", "left", "down"}, KindAuthentication, ReasonWrongDeviceSuffix},
		{"too short", []string{"right"}, KindAuthentication, ReasonWrongBasePattern},
		{"empty", nil, KindValidation, ReasonNoMotionPattern},
		{"unknown move", []string{"up", "left", "sideways"}, KindValidation, ReasonInvalidMotionToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			sessionID := beginMotion(t, f, "rt@picoauth.test")

			if _, err := f.svc.RegisterMotionDevice(ctx, sessionID, "pico-rt", []string{"right"}); err != nil {
				t.Fatalf("register: %v", err)
			}
			_, err := f.svc.ValidateMotionPattern(ctx, "pico-rt", tc.submitted)
			expectKind(t, err, tc.kind)

			events := f.eventsFor(t, sessionID)
			session, _ := f.store.GetLoginSession(ctx, sessionID)
			if tc.reason == "" {
				if len(events) != 0 || session.Motion.Status != MotionCompleted {
					t.Fatalf("expected clean completion, got %d events, status %s", len(events), session.Motion.Status)
				}
				if !session.HasCompleted(factor.MethodMotionPattern) {
					t.Fatalf("motion stage not progressed: %+v", session.Completed)
				}
			} else {
				if len(events) != 1 || events[0].Reason != tc.reason {
					t.Fatalf("expected one %q event, got %+v", tc.reason, events)
				}
				if session.Motion.Status != MotionRetry || session.Motion.PicoID != "" || len(session.Motion.AddedSequence) != 0 {
					t.Fatalf("expected cleared retry registration, got %+v", session.Motion)
				}
			}

			free, err := f.svc.IsPicoAvailable(ctx, "pico-rt")
			if err != nil || !free {
				t.Fatalf("pico should be released after settling, got %v %v", free, err)
			}
		})
	}
}

func TestPicoIDIsUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := beginMotion(t, f, "first@picoauth.test")
	f.signup(t, "second@picoauth.test", factor.MethodMotionPattern)
	step, _ := f.svc.BeginLogin(ctx, "second@picoauth.test")
	second := step.SessionID

	if _, err := f.svc.RegisterMotionDevice(ctx, first, "pico-dup", []string{"up"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	free, _ := f.svc.IsPicoAvailable(ctx, "pico-dup")
	if free {
		t.Fatal("pico should be taken")
	}

	_, err := f.svc.RegisterMotionDevice(ctx, second, "pico-dup", []string{"down"})
	expectKind(t, err, KindConflict)
	events := f.eventsFor(t, second)
	if len(events) != 1 || events[0].Reason != ReasonDeviceIDConflict {
		t.Fatalf("expected conflict event, got %+v", events)
	}

	s1, _ := f.store.GetLoginSession(ctx, first)
	if s1.Motion.PicoID != "pico-dup" || !s1.Motion.AddedSequence.Equal(factor.Pattern{factor.Up}) {
		t.Fatalf("first registration was overwritten: %+v", s1.Motion)
	}

	_, err = f.svc.RegisterMotionDevice(ctx, first, "pico-other", []string{"up"})
	expectKind(t, err, KindConflict)
	if events := f.eventsFor(t, first); len(events) != 1 || events[0].Reason != ReasonDeviceIDConflict {
		t.Fatalf("expected conflict event on the awaiting session, got %+v", events)
	}
	if free, _ := f.svc.IsPicoAvailable(ctx, "pico-other"); !free {
		t.Fatal("rejected registration should not keep its pico")
	}
}

func TestConcurrentRegistrationsReserveOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var sessions []string
	for _, email := range []string{"c1@picoauth.test", "c2@picoauth.test", "c3@picoauth.test", "c4@picoauth.test"} {
		sessions = append(sessions, beginMotion(t, f, email))
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for _, id := range sessions {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := f.svc.RegisterMotionDevice(ctx, id, "pico-race", []string{"left"}); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	if won != 1 {
		t.Fatalf("expected exactly one registration to win, got %d", won)
	}
}

func TestAwaitWakesOnDeviceSignal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := beginMotion(t, f, "await@picoauth.test")
	if _, err := f.svc.RegisterMotionDevice(ctx, sessionID, "pico-w", []string{"down", "down"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	type result struct {
		step Step
		err  error
	}
	done := make(chan result, 1)
	go func() {
		step, err := f.svc.AwaitMotionPattern(ctx, sessionID)
		done <- result{step, err}
	}()

	if _, err := f.svc.ValidateMotionPattern(ctx, "pico-w", []string{"up", "left", "down", "down"}); err != nil {
		t.Fatalf("validate: %v", err)
	}

	select {
	case r := <-done:
		if r.err != nil || !r.step.Done {
			t.Fatalf("expected completed step, got %+v %v", r.step, r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("await did not wake on device signal")
	}
}

func TestAwaitReportsRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := beginMotion(t, f, "retry@picoauth.test")
	_, _ = f.svc.RegisterMotionDevice(ctx, sessionID, "pico-r", []string{"up"})
	_, _ = f.svc.ValidateMotionPattern(ctx, "pico-r", []string{"up", "left", "left"})

	_, err := f.svc.AwaitMotionPattern(ctx, sessionID)
	expectKind(t, err, KindAuthentication)
	if n := len(f.eventsFor(t, sessionID)); n != 1 {
		t.Fatalf("await must not record the retry twice, got %d events", n)
	}
}

func TestAwaitWithoutRegistration(t *testing.T) {
	f := newFixture(t)
	sessionID := beginMotion(t, f, "idle@picoauth.test")
	_, err := f.svc.AwaitMotionPattern(context.Background(), sessionID)
	expectKind(t, err, KindNotFound)
}

func TestTimeoutIsRecordedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := beginMotion(t, f, "timeout@picoauth.test")
	if _, err := f.svc.RegisterMotionDevice(ctx, sessionID, "pico-t", []string{"up"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	f.clock.Advance(f.cfg.MotionTimeout + time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.AwaitMotionPattern(ctx, sessionID)
			if KindOf(err) != KindExpired {
				t.Errorf("expected expired, got %v", err)
			}
		}()
	}
	wg.Wait()
	_, err := f.svc.AwaitMotionPattern(ctx, sessionID)
	expectKind(t, err, KindExpired)

	events := f.eventsFor(t, sessionID)
	if len(events) != 1 || events[0].Reason != ReasonMotionTimedOut {
		t.Fatalf("expected a single timeout event, got %+v", events)
	}

	_, err = f.svc.ValidateMotionPattern(ctx, "pico-t", []string{"up", "left", "up"})
	expectKind(t, err, KindNotFound)
	session, _ := f.store.GetLoginSession(ctx, sessionID)
	if session.Motion.Status != MotionTimedOut || session.HasCompleted(factor.MethodMotionPattern) {
		t.Fatalf("late signal resurrected the session: %+v", session)
	}

	if _, err := f.svc.RegisterMotionDevice(ctx, sessionID, "pico-t2", []string{"up"}); err != nil {
		t.Fatalf("re-register after timeout: %v", err)
	}
}

func TestDeviceSignalAfterDeadlineWithoutWaiter(t *testing.T) {
	cases := []struct {
		name      string
		submitted []string
	}{
		{"correct sequence", []string{"up", "left", "right"}},
		{"wrong sequence", []string{"down", "down", "right"}},
		{"empty", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			sessionID := beginMotion(t, f, "late@picoauth.test")
			if _, err := f.svc.RegisterMotionDevice(ctx, sessionID, "pico-late", []string{"right"}); err != nil {
				t.Fatalf("register: %v", err)
			}
			f.clock.Advance(f.cfg.MotionTimeout + 30*time.Second)

			_, err := f.svc.ValidateMotionPattern(ctx, "pico-late", tc.submitted)
			expectKind(t, err, KindExpired)

			events := f.eventsFor(t, sessionID)
			if len(events) != 1 || events[0].Reason != ReasonMotionTimedOut {
				t.Fatalf("expected a single timeout event, got %+v", events)
			}
			session, _ := f.store.GetLoginSession(ctx, sessionID)
			if session.Motion.Status != MotionTimedOut || session.HasCompleted(factor.MethodMotionPattern) {
				t.Fatalf("late signal completed the stage: %+v", session)
			}
			if free, _ := f.svc.IsPicoAvailable(ctx, "pico-late"); !free {
				t.Fatal("timed out registration should free its pico")
			}

			_, err = f.svc.AwaitMotionPattern(ctx, sessionID)
			expectKind(t, err, KindExpired)
			if again := f.eventsFor(t, sessionID); len(again) != 1 {
				t.Fatalf("timeout recorded twice: %+v", again)
			}
		})
	}
}

func TestDeviceSignalAtDeadlineIsLate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := beginMotion(t, f, "edge@picoauth.test")
	if _, err := f.svc.RegisterMotionDevice(ctx, sessionID, "pico-edge", []string{"right"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	f.clock.Advance(f.cfg.MotionTimeout)

	_, err := f.svc.ValidateMotionPattern(ctx, "pico-edge", []string{"up", "left", "right"})
	expectKind(t, err, KindExpired)
}

func TestTimeoutInRealTime(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Clock = clock.System()
		d.Config.MotionTimeout = 80 * time.Millisecond
		d.Config.MotionPollInterval = 20 * time.Millisecond
	})
	ctx := context.Background()
	sessionID := beginMotion(t, f, "fast@picoauth.test")
	if _, err := f.svc.RegisterMotionDevice(ctx, sessionID, "pico-fast", []string{"up"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	start := time.Now()
	_, err := f.svc.AwaitMotionPattern(ctx, sessionID)
	expectKind(t, err, KindExpired)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("await overran its timeout: %s", elapsed)
	}
	if free, _ := f.svc.IsPicoAvailable(ctx, "pico-fast"); !free {
		t.Fatal("timed out registration should release its pico")
	}
}

func TestAwaitHonoursContext(t *testing.T) {
	f := newFixture(t)
	sessionID := beginMotion(t, f, "ctx@picoauth.test")
	_, _ = f.svc.RegisterMotionDevice(context.Background(), sessionID, "pico-ctx", []string{"up"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := f.svc.AwaitMotionPattern(ctx, sessionID); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	session, _ := f.store.GetLoginSession(context.Background(), sessionID)
	if session.Motion.Status != MotionAwaitingDevice {
		t.Fatalf("cancelled wait must leave the registration alone, got %s", session.Motion.Status)
	}
}
