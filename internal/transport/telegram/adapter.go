// Package telegram adapts gopkg.in/telebot.v4 to the transport contract:
// long-poll lifecycle, outbound sends, and mapping of Telegram API errors
// into the transport taxonomy.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"castbot/internal/storage"
	"castbot/internal/transport"
	logx "castbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Adapter owns the telebot instance. The router registers handlers on
// Bot() before Start; delivery uses the Sender methods.
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	runMu   sync.Mutex
	running bool
	done    chan struct{}
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:     cfg.Token,
		Poller:    &tele.LongPoller{Timeout: timeout},
		ParseMode: tele.ModeHTML,
		OnError: func(err error, c tele.Context) {
			log.Warn("handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

// Bot exposes the underlying telebot instance for handler registration.
func (a *Adapter) Bot() *tele.Bot { return a.bot }

// Start launches the long-poll loop. It returns immediately; polling runs
// until Stop or ctx cancellation.
func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true
	a.done = make(chan struct{})
	done := a.done

	go func() {
		<-ctx.Done()
		a.bot.Stop()
	}()
	go func() {
		defer close(done)
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	}()
	return nil
}

// Stop terminates polling. It never blocks shutdown on a pending
// getUpdates long-poll for more than a short grace window.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	wasRunning := a.running
	a.running = false
	done := a.done
	a.runMu.Unlock()
	if !wasRunning {
		return nil
	}

	go a.bot.Stop()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	select {
	case <-done:
		return nil
	case <-time.After(grace):
		a.log.Warn("polling stop timed out")
		return nil
	}
}

// ---- transport.Sender ----

func (a *Adapter) SendText(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := a.bot.Send(&tele.Chat{ID: chatID}, text, teleOptions(opt))
	return classify(err)
}

func (a *Adapter) SendMedia(ctx context.Context, chatID int64, item storage.MediaItem, caption string, opt *transport.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	what, err := sendable(item, caption)
	if err != nil {
		return err
	}
	_, err = a.bot.Send(&tele.Chat{ID: chatID}, what, teleOptions(opt))
	return classify(err)
}

// SendAlbum sends a media group. A non-empty caption is attached to the
// first item; Telegram shows it under the whole album.
func (a *Adapter) SendAlbum(ctx context.Context, chatID int64, items []storage.MediaItem, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	album := make(tele.Album, 0, len(items))
	for i, it := range items {
		c := ""
		if i == 0 {
			c = caption
		}
		m, err := albumMember(it, c)
		if err != nil {
			return err
		}
		album = append(album, m)
	}
	_, err := a.bot.SendAlbum(&tele.Chat{ID: chatID}, album, &tele.SendOptions{ParseMode: transport.ParseModeHTML})
	return classify(err)
}

func teleOptions(opt *transport.SendOptions) *tele.SendOptions {
	out := &tele.SendOptions{}
	if opt == nil {
		return out
	}
	out.ParseMode = opt.ParseMode
	if rm, ok := opt.Markup.(*tele.ReplyMarkup); ok {
		out.ReplyMarkup = rm
	}
	return out
}

func sendable(item storage.MediaItem, caption string) (any, error) {
	f := tele.File{FileID: item.FileID}
	switch item.Kind {
	case storage.MediaPhoto:
		return &tele.Photo{File: f, Caption: caption}, nil
	case storage.MediaVideo:
		return &tele.Video{File: f, Caption: caption}, nil
	case storage.MediaDocument:
		return &tele.Document{File: f, Caption: caption}, nil
	case storage.MediaAudio:
		return &tele.Audio{File: f, Caption: caption}, nil
	case storage.MediaVoice:
		return &tele.Voice{File: f, Caption: caption}, nil
	case storage.MediaVideoNote:
		// video notes have no caption on Telegram
		return &tele.VideoNote{File: f}, nil
	}
	return nil, fmt.Errorf("unsupported media kind %q", item.Kind)
}

func albumMember(item storage.MediaItem, caption string) (tele.Inputtable, error) {
	f := tele.File{FileID: item.FileID}
	switch item.Kind {
	case storage.MediaPhoto:
		return &tele.Photo{File: f, Caption: caption}, nil
	case storage.MediaVideo:
		return &tele.Video{File: f, Caption: caption}, nil
	case storage.MediaDocument:
		return &tele.Document{File: f, Caption: caption}, nil
	case storage.MediaAudio:
		return &tele.Audio{File: f, Caption: caption}, nil
	}
	return nil, fmt.Errorf("media kind %q cannot join an album", item.Kind)
}

// classify maps Telegram API errors into the transport taxonomy. Anything
// unrecognized passes through as a transient per-recipient failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &transport.RetryAfterError{After: time.Duration(flood.RetryAfter) * time.Second}
	}
	if errors.Is(err, tele.ErrBlockedByUser) ||
		errors.Is(err, tele.ErrUserIsDeactivated) ||
		errors.Is(err, tele.ErrChatNotFound) ||
		errors.Is(err, tele.ErrNotStartedByUser) {
		return fmt.Errorf("%w: %v", transport.ErrUnreachable, err)
	}
	var te *tele.Error
	if errors.As(err, &te) {
		switch {
		case te.Code == 403:
			return fmt.Errorf("%w: %v", transport.ErrUnreachable, err)
		case te.Code == 400:
			return fmt.Errorf("%w: %v", transport.ErrBadRequest, err)
		}
	}
	return err
}
