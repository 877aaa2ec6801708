package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"castbot/internal/clock"
	"castbot/internal/storage"
	logx "castbot/pkg/logx"
)

type memStore struct {
	created []storage.Post
}

func (m *memStore) HasPost(ctx context.Context, title, level string, sendAt time.Time) (bool, error) {
	for _, p := range m.created {
		if p.Title == title && p.Level == level && p.SendAt.Equal(sendAt) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreatePost(ctx context.Context, title, text string, sendAt time.Time, level string) (storage.Post, error) {
	p := storage.Post{ID: int64(len(m.created) + 1), Title: title, Text: text, SendAt: sendAt, Level: level}
	m.created = append(m.created, p)
	return p, nil
}

const seedJSON = `{
  "posts": [
    {"key": "welcome", "title": "Welcome", "level": "starters", "send_at": "2026-09-01 10:00", "text_html": "<b>Hi</b>"},
    {"key": "deep", "title": "Deep dive", "level": "achievers", "send_at": "2026-09-02 18:30:00", "text_html": "Part two"},
    {"key": "no-title", "level": "starters", "send_at": "2026-09-03 10:00", "text_html": "orphan"},
    {"key": "bad-level", "title": "Oops", "level": "vip", "send_at": "2026-09-03 10:00", "text_html": "x"},
    {"key": "bad-time", "title": "When", "level": "starters", "send_at": "tomorrow", "text_html": "x"}
  ]
}`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestFromJSON(t *testing.T) {
	t.Parallel()
	wall, err := clock.NewWall("UTC")
	if err != nil {
		t.Fatalf("wall: %v", err)
	}
	store := &memStore{}
	path := writeSeed(t, seedJSON)

	created, err := FromJSON(context.Background(), store, path, wall, logx.Nop())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if created != 2 {
		t.Fatalf("created: %d", created)
	}
	if store.created[0].Title != "Welcome" || store.created[1].Title != "Deep dive" {
		t.Fatalf("posts: %+v", store.created)
	}
	wantAt := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	if !store.created[0].SendAt.Equal(wantAt) {
		t.Fatalf("send_at: %v", store.created[0].SendAt)
	}

	// second run is a no-op
	created, err = FromJSON(context.Background(), store, path, wall, logx.Nop())
	if err != nil || created != 0 {
		t.Fatalf("re-seed: created=%d err=%v", created, err)
	}
	if len(store.created) != 2 {
		t.Fatalf("re-seed duplicated posts: %d", len(store.created))
	}
}

func TestFromJSONMissingFile(t *testing.T) {
	t.Parallel()
	wall, _ := clock.NewWall("UTC")
	created, err := FromJSON(context.Background(), &memStore{},
		filepath.Join(t.TempDir(), "absent.json"), wall, logx.Nop())
	if err != nil || created != 0 {
		t.Fatalf("missing file: created=%d err=%v", created, err)
	}
}

func TestFromJSONMalformed(t *testing.T) {
	t.Parallel()
	wall, _ := clock.NewWall("UTC")
	path := writeSeed(t, "{not json")
	if _, err := FromJSON(context.Background(), &memStore{}, path, wall, logx.Nop()); err == nil {
		t.Fatal("malformed file must fail")
	}
}
