package clock

import (
	"testing"
	"time"
)

func TestParseInputRoundTrip(t *testing.T) {
	t.Parallel()
	w, err := NewWall("Europe/Moscow")
	if err != nil {
		t.Fatalf("NewWall: %v", err)
	}

	got, err := w.ParseInput("2026-01-07 12:30")
	if err != nil {
		t.Fatalf("ParseInput: %v", err)
	}
	if got.Hour() != 12 || got.Minute() != 30 {
		t.Fatalf("unexpected wall clock: %v", got)
	}
	if got.Location().String() != "Europe/Moscow" {
		t.Fatalf("Location = %s, want Europe/Moscow", got.Location())
	}
	if s := w.Format(got); s != "2026-01-07 12:30" {
		t.Fatalf("Format = %q", s)
	}
}

func TestParseInputInvalid(t *testing.T) {
	t.Parallel()
	w, _ := NewWall("")
	for _, raw := range []string{"", "tomorrow", "2026-13-01 10:00", "2026-01-07"} {
		if _, err := w.ParseInput(raw); err == nil {
			t.Fatalf("ParseInput(%q): expected error", raw)
		}
	}
}

func TestNewWallInvalidZone(t *testing.T) {
	t.Parallel()
	if _, err := NewWall("Mars/Olympus"); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}

func TestDateKey(t *testing.T) {
	t.Parallel()
	w, _ := NewWall("UTC")
	ts := time.Date(2026, 1, 2, 23, 59, 0, 0, time.UTC)
	if got := w.DateKey(ts); got != "2026-01-02" {
		t.Fatalf("DateKey = %q", got)
	}
}
