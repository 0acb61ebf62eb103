package util

import (
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 10 * time.Millisecond},
		{1, 20 * time.Millisecond},
		{2, 40 * time.Millisecond},
		{3, 50 * time.Millisecond},
		{30, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := Backoff(10*time.Millisecond, 50*time.Millisecond, tt.attempt); got != tt.want {
			t.Errorf("attempt %d: got %v, want %v", tt.attempt, got, tt.want)
		}
	}
	if got := Backoff(0, time.Second, 3); got != 0 {
		t.Errorf("zero base: got %v", got)
	}
}

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	c.Advance(time.Hour)
	if !c.Now().Equal(start.Add(time.Hour)) {
		t.Fatalf("advance: got %v", c.Now())
	}
	select {
	case <-c.After(time.Hour):
	default:
		t.Fatal("manual After should fire immediately")
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != zapcore.DebugLevel {
		t.Error("debug level not parsed")
	}
	if ParseLevel("bogus") != zapcore.InfoLevel {
		t.Error("unknown level should fall back to info")
	}
}
