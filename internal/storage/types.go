package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("storage: not found")

// Audience level sentinels. Anything else is a named cohort; unknown values
// in stored posts are tolerated (they resolve to admins only at delivery).
const (
	LevelAll    = "all"
	LevelAdmins = "admins"
)

// Cohorts subscribers can pick during onboarding, in display order.
var Cohorts = []string{"starters", "explorers", "achievers"}

// KnownCohort reports whether level is one of the onboarding cohorts.
func KnownCohort(level string) bool {
	for _, c := range Cohorts {
		if c == level {
			return true
		}
	}
	return false
}

// MediaKind tags a single Telegram attachment.
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaDocument  MediaKind = "document"
	MediaAudio     MediaKind = "audio"
	MediaVoice     MediaKind = "voice"
	MediaVideoNote MediaKind = "video_note"
)

// ParseMediaKind normalizes a stored tag. Unknown tags come back as-is with
// ok=false so callers can fall back to text-only rendering.
func ParseMediaKind(s string) (MediaKind, bool) {
	k := MediaKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case MediaPhoto, MediaVideo, MediaDocument, MediaAudio, MediaVoice, MediaVideoNote:
		return k, true
	}
	return k, false
}

// MediaItem is one attachment reference. FileID is the platform file id.
type MediaItem struct {
	Kind   MediaKind
	FileID string
}

// Post is one schedulable broadcast unit.
//
// SendAt/SentAt are naive wall-clock times in the configured zone; the store
// persists them without any offset. Album, when non-empty, takes precedence
// over the single Media attachment.
type Post struct {
	ID     int64
	Title  string
	Level  string
	Text   string // HTML-formatted body / caption
	Media  *MediaItem
	Album  []MediaItem
	SendAt time.Time
	Sent   bool
	SentAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// User is one registered subscriber. Level is empty until onboarding
// completes.
type User struct {
	ID         int64
	TelegramID int64
	Level      string
	JoinedAt   time.Time
}

// Teaser is the process-wide interstitial shown before every post. When
// neither text nor media is set, posts are delivered directly.
type Teaser struct {
	Text  string
	Media *MediaItem
}

// Configured reports whether the teaser replaces direct post delivery.
func (t Teaser) Configured() bool {
	return strings.TrimSpace(t.Text) != "" || t.Media != nil
}

// Store is the persistence API used by the scheduler, the delivery executor
// and the admin UI.
type Store interface {
	// Users.
	UpsertUser(ctx context.Context, telegramID int64) (User, error)
	SetUserLevel(ctx context.Context, telegramID int64, level string) (User, error)
	Users(ctx context.Context) ([]User, error)
	UsersByLevel(ctx context.Context, level string) ([]User, error)
	CountUsers(ctx context.Context) (int, error)

	// Posts.
	CreatePost(ctx context.Context, title, text string, sendAt time.Time, level string) (Post, error)
	Post(ctx context.Context, id int64) (Post, error)
	HasPost(ctx context.Context, title, level string, sendAt time.Time) (bool, error)
	PostDates(ctx context.Context) ([]string, error)
	CountPostsByDate(ctx context.Context, date string) (int, error)
	PostsByDate(ctx context.Context, date string, limit, offset int) ([]Post, error)
	CountPostsByLevel(ctx context.Context, level string) (int, error)
	PostsByLevel(ctx context.Context, level string, limit, offset int) ([]Post, error)
	UpdateTitle(ctx context.Context, id int64, title string) (Post, error)
	UpdateText(ctx context.Context, id int64, text string) (Post, error)
	UpdateContent(ctx context.Context, id int64, text string, media *MediaItem) (Post, error)
	SetAlbum(ctx context.Context, id int64, items []MediaItem) (Post, error)
	UpdateSendTime(ctx context.Context, id int64, sendAt time.Time) (Post, error)
	UpdateLevel(ctx context.Context, id int64, level string) (Post, error)
	DeletePost(ctx context.Context, id int64) (bool, error)
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error

	// Scheduler queries.
	UnsentDue(ctx context.Context, now time.Time) ([]Post, error)
	UnsentFuture(ctx context.Context, now time.Time) ([]Post, error)

	// Teaser singleton.
	Teaser(ctx context.Context) (Teaser, error)
	SetTeaser(ctx context.Context, t Teaser) error

	Close() error
}
