package config

// Config is the full castbot configuration file.
//
// The file may be JSON or YAML; YAML is coerced to JSON and decoded strictly,
// so unknown keys are rejected early instead of being silently ignored.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Delivery  DeliveryConfig  `json:"delivery,omitempty"`
	Seed      SeedConfig      `json:"seed,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// AdminIDs are Telegram user ids with access to the admin panel.
	// They also receive every broadcast and the per-run delivery summary.
	AdminIDs []int64 `json:"admin_ids"`

	// PollTimeout is the long-poll timeout (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the sqlite post store.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls post delivery scheduling.
type SchedulerConfig struct {
	// Timezone is the IANA zone all send times are interpreted in
	// (e.g. "Europe/Moscow"). Empty means the system local zone.
	Timezone string `json:"timezone,omitempty"`

	// ReconcileEvery re-runs the due/future reconciliation sweep as a safety
	// net for missed timers. "0s" disables the sweep (default "5m").
	ReconcileEvery string `json:"reconcile_every,omitempty"`

	// MisfireGrace is how late a fire may run before it is logged as a
	// misfire. Late posts are always delivered regardless (default "1h").
	MisfireGrace string `json:"misfire_grace,omitempty"`
}

// DeliveryConfig controls the fan-out loop.
type DeliveryConfig struct {
	// RatePerSec paces consecutive sends (default 25, Telegram's
	// practical broadcast ceiling is ~30 msg/s).
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// SeedConfig controls one-shot post seeding from a JSON file on startup.
type SeedConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}
