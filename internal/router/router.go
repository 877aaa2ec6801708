// Package router is the presentation layer: telebot handlers for user
// onboarding, the teaser "Open" action, non-admin message forwarding, and
// the admin panel with its post wizard.
package router

import (
	"context"
	"errors"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"castbot/internal/clock"
	"castbot/internal/delivery"
	"castbot/internal/storage"
	logx "castbot/pkg/logx"
	"castbot/pkg/tgui"
)

const pageSize = 10

// Scheduler is what the router needs from the job scheduler: route a post
// after create/edit, and drop its timer before delete.
type Scheduler interface {
	ScheduleOrSendNow(p storage.Post)
	Unschedule(postID int64)
}

// Opener sends the full post body to one chat (teaser "Open" button).
type Opener interface {
	Open(ctx context.Context, postID, chatID int64) error
}

// AdminSource provides the current admin id set.
type AdminSource interface {
	Admins() []int64
}

type Router struct {
	store  storage.Store
	sched  Scheduler
	opener Opener
	admins AdminSource
	wall   clock.Wall
	log    logx.Logger
	sess   *sessions
}

func New(store storage.Store, sched Scheduler, opener Opener, admins AdminSource, wall clock.Wall, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		store:  store,
		sched:  sched,
		opener: opener,
		admins: admins,
		wall:   wall,
		log:    log,
		sess:   newSessions(),
	}
}

// Register installs all handlers on the bot. Callbacks are dispatched from
// one OnCallback handler by their "section:action:payload" data.
func (r *Router) Register(b *tele.Bot) {
	b.Handle("/start", r.handleStart)
	b.Handle("/admin", r.handleAdminCmd)
	b.Handle(tele.OnCallback, r.handleCallback)
	for _, ev := range []string{
		tele.OnText, tele.OnPhoto, tele.OnVideo, tele.OnAudio,
		tele.OnVoice, tele.OnVideoNote, tele.OnDocument,
	} {
		b.Handle(ev, r.handleMessage)
	}
}

func (r *Router) isAdmin(userID int64) bool {
	for _, id := range r.admins.Admins() {
		if id == userID {
			return true
		}
	}
	return false
}

func (r *Router) handleStart(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx := context.Background()
	if _, err := r.store.UpsertUser(ctx, sender.ID); err != nil {
		r.log.Warn("register user failed", logx.Int64("user_id", sender.ID), logx.Err(err))
	}
	if err := c.Send(welcomeText); err != nil {
		return err
	}
	if err := c.Send(howItWorksText); err != nil {
		return err
	}
	return c.Send(pickLevelText, userLevelKB())
}

func (r *Router) handleCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil || c.Sender() == nil {
		return nil
	}
	section, action, payload := tgui.Split(cb.Data)

	switch section {
	case "ulevel":
		return r.chooseLevel(c, action)
	case delivery.SectionOpen:
		return r.openPost(c, action)
	case "noop":
		return c.Respond()
	}

	if !r.isAdmin(c.Sender().ID) {
		return c.Respond(&tele.CallbackResponse{Text: "No access", ShowAlert: true})
	}
	return r.adminCallback(c, section, action, payload)
}

func (r *Router) chooseLevel(c tele.Context, level string) error {
	if !storage.KnownCohort(level) {
		return c.Respond(&tele.CallbackResponse{Text: "Unknown level", ShowAlert: true})
	}
	if _, err := r.store.SetUserLevel(context.Background(), c.Sender().ID, level); err != nil {
		r.log.Warn("set level failed", logx.Int64("user_id", c.Sender().ID), logx.Err(err))
		return c.Respond(&tele.CallbackResponse{Text: "Try again later", ShowAlert: true})
	}
	if err := c.Send("Great! You chose <b>" + levelLabel(level) + "</b>.\n\nSee you at the first post! 🎄"); err != nil {
		return err
	}
	return c.Respond(&tele.CallbackResponse{Text: "Saved ✅"})
}

// openPost backs the teaser button: strip the button from the teaser
// message, then deliver the full body into this chat.
func (r *Router) openPost(c tele.Context, idRaw string) error {
	postID, err := strconv.ParseInt(idRaw, 10, 64)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Post not found", ShowAlert: true})
	}
	if msg := c.Message(); msg != nil {
		_, _ = c.Bot().EditReplyMarkup(msg, nil)
	}
	err = r.opener.Open(context.Background(), postID, c.Chat().ID)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Respond(&tele.CallbackResponse{Text: "Post not found", ShowAlert: true})
	}
	if err != nil {
		r.log.Warn("open post failed", logx.Int64("post_id", postID), logx.Err(err))
		return c.Respond(&tele.CallbackResponse{Text: "Try again later", ShowAlert: true})
	}
	return c.Respond()
}

// handleMessage routes free-form messages: admins inside a wizard feed the
// wizard; everything else from non-admins in private chats is forwarded to
// the admins with a hashtag reply.
func (r *Router) handleMessage(c tele.Context) error {
	m := c.Message()
	sender := c.Sender()
	if m == nil || sender == nil {
		return nil
	}

	if r.isAdmin(sender.ID) {
		d := r.sess.get(m.Chat.ID)
		if d.step != stepIdle {
			return r.wizardMessage(c, d)
		}
		return nil
	}

	if m.Chat.Type != tele.ChatPrivate {
		return nil
	}
	return r.forwardToAdmins(c, m, sender)
}

func (r *Router) forwardToAdmins(c tele.Context, m *tele.Message, sender *tele.User) error {
	tags := forwardTags(r.wall.DateKey(r.wall.Now()), sender.ID, sender.Username)
	for _, admin := range r.admins.Admins() {
		fwd, err := c.Bot().Forward(&tele.Chat{ID: admin}, m)
		if err != nil {
			r.log.Debug("forward failed", logx.Int64("admin_id", admin), logx.Err(err))
			continue
		}
		if _, err := c.Bot().Send(&tele.Chat{ID: admin}, tags, &tele.SendOptions{ReplyTo: fwd}); err != nil {
			r.log.Debug("forward tag failed", logx.Int64("admin_id", admin), logx.Err(err))
		}
	}
	return nil
}

// extractContent pulls text plus a single media attachment out of an
// incoming message, mirroring the kinds a post can hold.
func extractContent(m *tele.Message) (string, *storage.MediaItem) {
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	switch {
	case m.Photo != nil:
		return text, &storage.MediaItem{Kind: storage.MediaPhoto, FileID: m.Photo.FileID}
	case m.Video != nil:
		return text, &storage.MediaItem{Kind: storage.MediaVideo, FileID: m.Video.FileID}
	case m.Voice != nil:
		return text, &storage.MediaItem{Kind: storage.MediaVoice, FileID: m.Voice.FileID}
	case m.VideoNote != nil:
		return text, &storage.MediaItem{Kind: storage.MediaVideoNote, FileID: m.VideoNote.FileID}
	case m.Audio != nil:
		return text, &storage.MediaItem{Kind: storage.MediaAudio, FileID: m.Audio.FileID}
	case m.Document != nil:
		return text, &storage.MediaItem{Kind: storage.MediaDocument, FileID: m.Document.FileID}
	}
	return text, nil
}
