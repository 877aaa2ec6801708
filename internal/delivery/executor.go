// Package delivery executes a broadcast run: it re-reads the post, resolves
// recipients, renders the body (or the teaser), fans the messages out under
// a rate limit, and marks the post sent exactly once.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"castbot/internal/clock"
	"castbot/internal/storage"
	"castbot/internal/transport"
	logx "castbot/pkg/logx"
	"castbot/pkg/tgui"
)

// SectionOpen is the callback section of the teaser "Open" button.
const SectionOpen = "openpost"

// retryPad is added on top of a platform retry_after before retrying.
const retryPad = 500 * time.Millisecond

// OpenData builds the callback data for a teaser "Open" button.
func OpenData(postID int64) string {
	return tgui.Data(SectionOpen, strconv.FormatInt(postID, 10), "")
}

// PostSource is the subset of the store a run reads and commits.
type PostSource interface {
	Post(ctx context.Context, id int64) (storage.Post, error)
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
	Teaser(ctx context.Context) (storage.Teaser, error)
}

// Recipients resolves a level into chat ids.
type Recipients interface {
	Resolve(ctx context.Context, level string) ([]int64, error)
}

// Report summarizes one delivery run.
type Report struct {
	RunID     string
	PostID    int64
	Title     string
	Level     string
	Delivered int
	Total     int

	// Skipped means the run found nothing to do: the post vanished or was
	// already sent. No messages went out and no summary should be sent.
	Skipped bool
}

type Config struct {
	RatePerSec int
}

type Executor struct {
	store      PostSource
	recipients Recipients
	sender     transport.Sender
	wall       clock.Wall
	log        logx.Logger

	mu      sync.Mutex
	limiter *rate.Limiter

	// sleep is swapped out in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewExecutor(cfg Config, store PostSource, recipients Recipients, sender transport.Sender, wall clock.Wall, log logx.Logger) *Executor {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Executor{
		store:      store,
		recipients: recipients,
		sender:     sender,
		wall:       wall,
		log:        log,
		sleep:      sleepCtx,
	}
	e.Apply(cfg)
	return e
}

// Apply replaces the send pacing on config reload.
func (e *Executor) Apply(cfg Config) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 25
	}
	e.mu.Lock()
	e.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	e.mu.Unlock()
}

func (e *Executor) currentLimiter() *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.limiter
}

// Deliver runs one broadcast of postID. Send failures are per-recipient and
// never abort the run; only a store failure does, leaving the post unsent
// for the next reconcile to retry.
func (e *Executor) Deliver(ctx context.Context, postID int64) (Report, error) {
	post, err := e.store.Post(ctx, postID)
	if errors.Is(err, storage.ErrNotFound) {
		e.log.Debug("post vanished before delivery", logx.Int64("post_id", postID))
		return Report{PostID: postID, Skipped: true}, nil
	}
	if err != nil {
		return Report{}, err
	}
	if post.Sent {
		e.log.Debug("post already sent, skipping run", logx.Int64("post_id", postID))
		return Report{PostID: postID, Skipped: true}, nil
	}

	run := uuid.NewString()
	log := e.log.With(logx.String("run", run), logx.Int64("post_id", post.ID))

	recipients, err := e.recipients.Resolve(ctx, post.Level)
	if err != nil {
		return Report{}, fmt.Errorf("resolve recipients: %w", err)
	}

	teaser, err := e.store.Teaser(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load teaser: %w", err)
	}

	var steps []step
	if teaser.Configured() {
		steps = renderTeaser(teaser, openMarkup(post.ID))
	} else {
		steps = renderPost(post)
	}

	delivered := 0
	for _, chat := range recipients {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		if err := e.sendTo(ctx, chat, steps); err != nil {
			if transport.IsUnreachable(err) || transport.IsBadRequest(err) {
				log.Debug("recipient skipped", logx.Int64("chat_id", chat), logx.Err(err))
			} else {
				log.Warn("send failed", logx.Int64("chat_id", chat), logx.Err(err))
			}
			continue
		}
		delivered++
	}

	if err := e.store.MarkSent(ctx, post.ID, e.wall.Now()); err != nil {
		return Report{}, fmt.Errorf("mark sent: %w", err)
	}

	log.Info("post delivered",
		logx.String("level", post.Level),
		logx.Int("delivered", delivered),
		logx.Int("total", len(recipients)))

	return Report{
		RunID:     run,
		PostID:    post.ID,
		Title:     post.Title,
		Level:     post.Level,
		Delivered: delivered,
		Total:     len(recipients),
	}, nil
}

// Open sends the full post body to a single chat. It backs the teaser
// "Open" button and does not touch the sent flag or delivery counts.
func (e *Executor) Open(ctx context.Context, postID, chatID int64) error {
	post, err := e.store.Post(ctx, postID)
	if err != nil {
		return err
	}
	return e.sendTo(ctx, chatID, renderPost(post))
}

// sendTo pushes every step to one recipient. A rate-limit error pauses for
// the indicated duration and retries that step once; any other error is
// final for this recipient.
func (e *Executor) sendTo(ctx context.Context, chatID int64, steps []step) error {
	for i := range steps {
		err := e.sendStep(ctx, chatID, steps[i])
		if after, ok := transport.AsRetryAfter(err); ok {
			if serr := e.sleep(ctx, after+retryPad); serr != nil {
				return serr
			}
			err = e.sendStep(ctx, chatID, steps[i])
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) sendStep(ctx context.Context, chatID int64, st step) error {
	if lim := e.currentLimiter(); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}
	opt := &transport.SendOptions{ParseMode: transport.ParseModeHTML, Markup: st.markup}
	switch st.kind {
	case stepText:
		return e.sender.SendText(ctx, chatID, st.text, opt)
	case stepMedia:
		return e.sender.SendMedia(ctx, chatID, st.media, st.text, opt)
	case stepAlbum:
		return e.sender.SendAlbum(ctx, chatID, st.album, st.text)
	}
	return nil
}

func openMarkup(postID int64) any {
	return tgui.NewInline().Row(tgui.Btn("Open", OpenData(postID))).Markup()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
