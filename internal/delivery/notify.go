package delivery

import (
	"context"
	"fmt"
	"time"

	"castbot/internal/transport"
	logx "castbot/pkg/logx"
)

// AdminSource lists the chats that receive delivery summaries.
type AdminSource interface {
	Admins() []int64
}

// Notifier tells every admin how a delivery run went. One summary per
// admin; a failure for one admin never blocks the others.
type Notifier struct {
	sender transport.Sender
	admins AdminSource
	log    logx.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewNotifier(sender transport.Sender, admins AdminSource, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{sender: sender, admins: admins, log: log, sleep: sleepCtx}
}

// Summarize fans the run report out to the admin set. Skipped runs produce
// no summary.
func (n *Notifier) Summarize(ctx context.Context, rep Report) {
	if rep.Skipped {
		return
	}
	text := summaryText(rep)
	for _, admin := range n.admins.Admins() {
		if ctx.Err() != nil {
			return
		}
		err := n.sender.SendText(ctx, admin, text, nil)
		if after, ok := transport.AsRetryAfter(err); ok {
			if serr := n.sleep(ctx, after+retryPad); serr != nil {
				return
			}
			err = n.sender.SendText(ctx, admin, text, nil)
		}
		switch {
		case err == nil:
		case transport.IsUnreachable(err) || transport.IsBadRequest(err):
			n.log.Debug("admin summary skipped", logx.Int64("chat_id", admin), logx.Err(err))
		default:
			n.log.Warn("admin summary failed", logx.Int64("chat_id", admin), logx.Err(err))
		}
	}
}

func summaryText(rep Report) string {
	title := rep.Title
	if title == "" {
		title = "(untitled)"
	}
	return fmt.Sprintf("Post #%d %q [%s] delivered to %d of %d recipients",
		rep.PostID, title, rep.Level, rep.Delivered, rep.Total)
}
