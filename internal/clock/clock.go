// Package clock centralizes wall-clock handling. Post send times are naive
// local timestamps: the configured IANA timezone is applied only when parsing
// operator input and formatting output, never persisted alongside the value.
package clock

import (
	"fmt"
	"strings"
	"time"
)

// InputLayout is the format admins type send times in.
const InputLayout = "2006-01-02 15:04"

// StoreLayout is the naive wall-clock format persisted by the store.
const StoreLayout = "2006-01-02 15:04:05"

// Wall provides now/parse/format in one process-wide timezone.
type Wall struct {
	loc *time.Location
}

// NewWall loads the IANA zone name. Empty means the system local zone.
func NewWall(tz string) (Wall, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return Wall{loc: time.Local}, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Wall{}, fmt.Errorf("clock: invalid timezone %q: %w", tz, err)
	}
	return Wall{loc: loc}, nil
}

func (w Wall) Location() *time.Location {
	if w.loc == nil {
		return time.Local
	}
	return w.loc
}

// Now returns the current time in the configured zone.
func (w Wall) Now() time.Time { return time.Now().In(w.Location()) }

// ParseInput parses "YYYY-MM-DD HH:MM" as a wall-clock time in the
// configured zone.
func (w Wall) ParseInput(s string) (time.Time, error) {
	t, err := time.ParseInLocation(InputLayout, strings.TrimSpace(s), w.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("clock: expected %q: %w", InputLayout, err)
	}
	return t, nil
}

// Format renders a timestamp for operator-facing output.
func (w Wall) Format(t time.Time) string {
	return t.In(w.Location()).Format(InputLayout)
}

// DateKey renders the date part (YYYY-MM-DD) used to group posts by day.
func (w Wall) DateKey(t time.Time) string {
	return t.In(w.Location()).Format("2006-01-02")
}
