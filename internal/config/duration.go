package config

import (
	"fmt"
	"strings"
	"time"
)

// Fallbacks for the duration-string fields when they are left unset.
const (
	DefaultPollTimeout    = 10 * time.Second
	DefaultBusyTimeout    = 5 * time.Second
	DefaultReconcileEvery = 5 * time.Minute
	DefaultMisfireGrace   = time.Hour
)

// ParseDurationField parses a duration-string config value. An empty field
// means unset and yields 0; negatives are rejected, path names the field in
// the error.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault substitutes def when the field is unset. An
// explicit "0s" stays 0: for scheduler.reconcile_every that is how the
// sweep is disabled.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	return ParseDurationField(path, raw)
}
