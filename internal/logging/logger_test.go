package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewFallsBackToInfo(t *testing.T) {
	logger := New("not-a-level", "picoauth")
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be disabled at the fallback level")
	}
	if !logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info should be enabled at the fallback level")
	}
}

func TestDiscardDropsBelowError(t *testing.T) {
	if Discard().Enabled(context.Background(), slog.LevelWarn) {
		t.Fatal("warn should be disabled on the discard logger")
	}
}
