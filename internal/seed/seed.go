// Package seed imports an initial post plan from a JSON file. Re-running
// the seed is safe: a post is identified by its (title, level, send_at)
// triple and created at most once.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"castbot/internal/clock"
	"castbot/internal/storage"
	logx "castbot/pkg/logx"
)

// Store is the subset of the post store seeding needs.
type Store interface {
	HasPost(ctx context.Context, title, level string, sendAt time.Time) (bool, error)
	CreatePost(ctx context.Context, title, text string, sendAt time.Time, level string) (storage.Post, error)
}

type seedFile struct {
	Posts []seedPost `json:"posts"`
}

type seedPost struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	Level    string `json:"level"`
	SendAt   string `json:"send_at"`
	TextHTML string `json:"text_html"`
}

// FromJSON loads path and creates the posts it describes. Incomplete or
// malformed entries are skipped with a warning; a missing file is not an
// error. Returns the number of posts created.
func FromJSON(ctx context.Context, store Store, path string, wall clock.Wall, log logx.Logger) (int, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Warn("seed file missing, skipping", logx.String("path", path))
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var f seedFile
	if err := json.Unmarshal(b, &f); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	created := 0
	for _, p := range f.Posts {
		entry := p.Key
		if entry == "" {
			entry = p.Title
		}

		if err := validate(p); err != nil {
			log.Warn("seed entry skipped", logx.String("entry", entry), logx.Err(err))
			continue
		}
		sendAt, err := parseSendAt(p.SendAt, wall)
		if err != nil {
			log.Warn("seed entry skipped", logx.String("entry", entry), logx.Err(err))
			continue
		}

		exists, err := store.HasPost(ctx, p.Title, p.Level, sendAt)
		if err != nil {
			return created, fmt.Errorf("seed lookup: %w", err)
		}
		if exists {
			continue
		}
		if _, err := store.CreatePost(ctx, p.Title, p.TextHTML, sendAt, p.Level); err != nil {
			return created, fmt.Errorf("seed create %q: %w", entry, err)
		}
		created++
	}

	log.Info("seed finished", logx.Int("created", created), logx.Int("entries", len(f.Posts)))
	return created, nil
}

func validate(p seedPost) error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("missing title")
	}
	if strings.TrimSpace(p.TextHTML) == "" {
		return fmt.Errorf("missing text")
	}
	if strings.TrimSpace(p.SendAt) == "" {
		return fmt.Errorf("missing send_at")
	}
	lvl := p.Level
	if lvl != storage.LevelAll && lvl != storage.LevelAdmins && !storage.KnownCohort(lvl) {
		return fmt.Errorf("unknown level %q", lvl)
	}
	return nil
}

func parseSendAt(s string, wall clock.Wall) (time.Time, error) {
	if t, err := wall.ParseInput(s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(clock.StoreLayout, strings.TrimSpace(s), wall.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("bad send_at %q", s)
	}
	return t, nil
}
