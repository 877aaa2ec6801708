package router

import (
	"strings"
	"testing"
	"time"

	"castbot/internal/clock"
	"castbot/internal/storage"
)

func testWall(t *testing.T) clock.Wall {
	t.Helper()
	w, err := clock.NewWall("UTC")
	if err != nil {
		t.Fatalf("wall: %v", err)
	}
	return w
}

func TestSessions(t *testing.T) {
	t.Parallel()
	s := newSessions()

	if d := s.get(1); d.step != stepIdle {
		t.Fatalf("fresh chat: %+v", d)
	}

	s.set(1, draft{step: stepCreateTitle, title: "x"})
	s.set(2, draft{step: stepEditSendAt, postID: 9})

	if d := s.get(1); d.step != stepCreateTitle || d.title != "x" {
		t.Fatalf("chat 1: %+v", d)
	}
	if d := s.get(2); d.step != stepEditSendAt || d.postID != 9 {
		t.Fatalf("chat 2: %+v", d)
	}

	// mutations of the returned copy must not leak back
	d := s.get(1)
	d.title = "changed"
	if got := s.get(1); got.title != "x" {
		t.Fatalf("draft copy leaked: %+v", got)
	}

	s.clear(1)
	if d := s.get(1); d.step != stepIdle {
		t.Fatalf("cleared chat: %+v", d)
	}
}

func TestForwardTags(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		username string
		want     string
	}{
		{"plain nick", "angie_teach", "#2026_01_03 #tg42 @angie_teach"},
		{"no nick", "", "#2026_01_03 #tg42"},
		{"nick needs sanitizing", "ang!e-02", "#2026_01_03 #tg42 @ang_e_02"},
		{"nick collapses to nothing", "звезда", "#2026_01_03 #tg42"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := forwardTags("2026-01-03", 42, tc.username)
			if got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestPostCard(t *testing.T) {
	t.Parallel()
	wall := testWall(t)
	sendAt := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	p := storage.Post{ID: 3, Title: "Day 3", Level: "starters", Text: "Task of the day", SendAt: sendAt}
	card := postCard(p, wall)
	for _, want := range []string{"Post #3", "🕒 pending", "2026-01-05 09:00", "starters", "Day 3", "Task of the day", "📎 text"} {
		if !strings.Contains(card, want) {
			t.Fatalf("card %q missing %q", card, want)
		}
	}

	p.Sent = true
	p.Media = &storage.MediaItem{Kind: storage.MediaVoice, FileID: "v"}
	card = postCard(p, wall)
	for _, want := range []string{"✅ sent", "📎 voice"} {
		if !strings.Contains(card, want) {
			t.Fatalf("card %q missing %q", card, want)
		}
	}

	p.Media = nil
	p.Album = []storage.MediaItem{{Kind: storage.MediaPhoto}, {Kind: storage.MediaPhoto}}
	if card = postCard(p, wall); !strings.Contains(card, "album ×2") {
		t.Fatalf("card %q missing album note", card)
	}

	p.Title = ""
	if card = postCard(p, wall); !strings.Contains(card, "(untitled)") {
		t.Fatalf("card %q missing untitled fallback", card)
	}
}

func TestPostListLabel(t *testing.T) {
	t.Parallel()
	wall := testWall(t)
	p := storage.Post{
		ID:     12,
		Title:  strings.Repeat("long title ", 20),
		Level:  "explorers",
		SendAt: time.Date(2026, 1, 7, 18, 30, 0, 0, time.UTC),
	}
	label := postListLabel(p, wall)
	if got := len([]rune(label)); got > 61 {
		t.Fatalf("label too long: %d runes", got)
	}
	for _, want := range []string{"#12", "2026-01-07 18:30", "explorers"} {
		if !strings.Contains(label, want) {
			t.Fatalf("label %q missing %q", label, want)
		}
	}
}

func TestSplitListPayload(t *testing.T) {
	t.Parallel()
	tests := []struct {
		payload string
		wantVal string
		wantPg  int
	}{
		{"2026-01-05:2", "2026-01-05", 2},
		{"starters:0", "starters", 0},
		{"noseparator", "noseparator", 0},
	}
	for _, tc := range tests {
		val, pg := splitListPayload(tc.payload)
		if val != tc.wantVal || pg != tc.wantPg {
			t.Fatalf("%q: got (%q,%d) want (%q,%d)", tc.payload, val, pg, tc.wantVal, tc.wantPg)
		}
	}
}

func TestLevelLabel(t *testing.T) {
	t.Parallel()
	if got := levelLabel("starters"); !strings.Contains(got, "Starters") {
		t.Fatalf("starters: %q", got)
	}
	if got := levelLabel(storage.LevelAll); !strings.Contains(got, "Everyone") {
		t.Fatalf("all: %q", got)
	}
	if got := levelLabel("mystery"); got != "mystery" {
		t.Fatalf("unknown level must pass through: %q", got)
	}
}
