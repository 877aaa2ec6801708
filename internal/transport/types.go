// Package transport defines the outbound messaging contract the delivery
// pipeline depends on, plus the error taxonomy senders must map platform
// errors into. The Telegram implementation lives in transport/telegram.
package transport

import (
	"context"

	"castbot/internal/storage"
)

// SendOptions carries per-send presentation knobs. Markup is the
// platform-specific reply markup (e.g. *tele.ReplyMarkup); senders ignore
// values they do not recognize.
type SendOptions struct {
	ParseMode string
	Markup    any
}

// Sender delivers rendered content to a single chat. Implementations map
// platform errors through the taxonomy in this package so callers can
// branch on RetryAfterError / ErrUnreachable without knowing the platform.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, opt *SendOptions) error
	SendMedia(ctx context.Context, chatID int64, item storage.MediaItem, caption string, opt *SendOptions) error
	SendAlbum(ctx context.Context, chatID int64, items []storage.MediaItem, caption string) error
}

// ParseModeHTML matches the HTML formatting mode used for all post bodies.
const ParseModeHTML = "HTML"
