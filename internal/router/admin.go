package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"castbot/internal/clock"
	"castbot/internal/storage"
	logx "castbot/pkg/logx"
	"castbot/pkg/tgui"
)

const adminPanelText = "🛠 <b>Admin panel</b>"

func (r *Router) handleAdminCmd(c tele.Context) error {
	if c.Sender() == nil || !r.isAdmin(c.Sender().ID) {
		return c.Send("Access denied.")
	}
	r.sess.clear(c.Chat().ID)
	return c.Send(adminPanelText, adminMenuKB())
}

func (r *Router) adminCallback(c tele.Context, section, action, payload string) error {
	switch section {
	case "admin":
		return r.adminMenu(c, action)
	case "dpage":
		page, _ := strconv.Atoi(action)
		if err := r.renderDates(c, page); err != nil {
			return err
		}
		return c.Respond()
	case "adate":
		if err := r.renderPosts(c, "d", action, 0); err != nil {
			return err
		}
		return c.Respond()
	case "alevel":
		if err := r.renderPosts(c, "l", action, 0); err != nil {
			return err
		}
		return c.Respond()
	case "plist":
		ctxVal, page := splitListPayload(payload)
		if err := r.renderPosts(c, action, ctxVal, page); err != nil {
			return err
		}
		return c.Respond()
	case "post":
		postID, err := strconv.ParseInt(action, 10, 64)
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "Post not found", ShowAlert: true})
		}
		back := ""
		if payload != "" {
			// payload is "ctx:ctxVal:page"; route back into the same listing
			if i := strings.Index(payload, ":"); i > 0 {
				back = tgui.Data("plist", payload[:i], payload[i+1:])
			}
		}
		return r.showPostCard(c, postID, back)
	case "pact":
		return r.postAction(c, action, payload)
	case "plevel":
		return r.pickLevel(c, action)
	case "teaser":
		return r.teaserAction(c, action)
	}
	return c.Respond(&tele.CallbackResponse{Text: "Unknown action", ShowAlert: true})
}

func (r *Router) adminMenu(c tele.Context, action string) error {
	switch action {
	case "back":
		r.sess.clear(c.Chat().ID)
		if err := c.Edit(adminPanelText, adminMenuKB()); err != nil {
			return err
		}
		return c.Respond()
	case "create":
		r.sess.set(c.Chat().ID, draft{step: stepCreateTitle})
		if err := c.Edit("Send the post <b>title</b> (shown in admin lists):"); err != nil {
			return err
		}
		return c.Respond()
	case "dates":
		if err := r.renderDates(c, 0); err != nil {
			return err
		}
		return c.Respond()
	case "levels":
		if err := c.Edit("🎚 <b>Posts by level</b>\n\nPick a level:", browseLevelsKB()); err != nil {
			return err
		}
		return c.Respond()
	case "teaser":
		return r.showTeaser(c)
	}
	return c.Respond(&tele.CallbackResponse{Text: "Unknown action", ShowAlert: true})
}

func (r *Router) renderDates(c tele.Context, page int) error {
	dates, err := r.store.PostDates(context.Background())
	if err != nil {
		return err
	}
	page, hasPrev, hasNext := tgui.PageBounds(page, pageSize, len(dates))
	start := page * pageSize
	end := start + pageSize
	if end > len(dates) {
		end = len(dates)
	}
	return c.Edit("🗓 <b>Posts by date</b>\n\nPick a date:",
		datesKB(dates[start:end], page, len(dates), hasPrev, hasNext))
}

func (r *Router) renderPosts(c tele.Context, ctxKind, ctxVal string, page int) error {
	ctx := context.Background()
	var (
		total int
		posts []storage.Post
		title string
		err   error
	)
	switch ctxKind {
	case "d":
		if total, err = r.store.CountPostsByDate(ctx, ctxVal); err != nil {
			return err
		}
		page, _, _ = tgui.PageBounds(page, pageSize, total)
		if posts, err = r.store.PostsByDate(ctx, ctxVal, pageSize, page*pageSize); err != nil {
			return err
		}
		title = fmt.Sprintf("🗓 <b>Posts on %s</b>", ctxVal)
	case "l":
		if total, err = r.store.CountPostsByLevel(ctx, ctxVal); err != nil {
			return err
		}
		page, _, _ = tgui.PageBounds(page, pageSize, total)
		if posts, err = r.store.PostsByLevel(ctx, ctxVal, pageSize, page*pageSize); err != nil {
			return err
		}
		title = fmt.Sprintf("🎚 <b>Posts for %s</b>", levelLabel(ctxVal))
	default:
		return c.Edit(adminPanelText, adminMenuKB())
	}

	if len(posts) == 0 {
		return c.Edit("No posts found.", adminMenuKB())
	}
	_, hasPrev, hasNext := tgui.PageBounds(page, pageSize, total)
	return c.Edit(title, postsListKB(posts, r.wall, ctxKind, ctxVal, page, total, hasPrev, hasNext))
}

func (r *Router) showPostCard(c tele.Context, postID int64, backData string) error {
	post, err := r.store.Post(context.Background(), postID)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Respond(&tele.CallbackResponse{Text: "Post not found", ShowAlert: true})
	}
	if err != nil {
		return err
	}
	if err := c.Edit(postCard(post, r.wall), postActionsKB(post.ID, backData)); err != nil {
		return err
	}
	r.sendMediaPreview(c, post)
	return c.Respond()
}

// sendMediaPreview shows the attachment below the card. Best-effort: the
// card itself already names the media kind.
func (r *Router) sendMediaPreview(c tele.Context, p storage.Post) {
	if p.Media == nil {
		return
	}
	f := tele.File{FileID: p.Media.FileID}
	var what any
	switch p.Media.Kind {
	case storage.MediaPhoto:
		what = &tele.Photo{File: f}
	case storage.MediaVideo:
		what = &tele.Video{File: f}
	case storage.MediaDocument:
		what = &tele.Document{File: f}
	case storage.MediaAudio:
		what = &tele.Audio{File: f}
	case storage.MediaVoice:
		what = &tele.Voice{File: f}
	case storage.MediaVideoNote:
		what = &tele.VideoNote{File: f}
	default:
		return
	}
	if err := c.Send(what); err != nil {
		r.log.Debug("media preview failed", logx.Int64("post_id", p.ID), logx.Err(err))
	}
}

func (r *Router) postAction(c tele.Context, action, idRaw string) error {
	postID, err := strconv.ParseInt(idRaw, 10, 64)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Post not found", ShowAlert: true})
	}
	chatID := c.Chat().ID

	switch action {
	case "del":
		if err := c.Edit("Delete this post?", confirmDeleteKB(postID)); err != nil {
			return err
		}
		return c.Respond()
	case "del_yes":
		r.sched.Unschedule(postID)
		ok, err := r.store.DeletePost(context.Background(), postID)
		if err != nil {
			return err
		}
		msg := "✅ Deleted."
		if !ok {
			msg = "Post was already deleted."
		}
		if err := c.Edit(msg, adminMenuKB()); err != nil {
			return err
		}
		return c.Respond()
	case "del_no":
		return r.showPostCard(c, postID, "")
	case "title":
		r.sess.set(chatID, draft{step: stepEditTitle, postID: postID})
		if err := c.Edit("Send the new <b>title</b>:"); err != nil {
			return err
		}
		return c.Respond()
	case "level":
		r.sess.set(chatID, draft{step: stepEditLevel, postID: postID})
		if err := c.Edit("Pick the new <b>level</b>:", postLevelKB()); err != nil {
			return err
		}
		return c.Respond()
	case "content":
		r.sess.set(chatID, draft{step: stepEditContent, postID: postID})
		if err := c.Edit("Send the new <b>post message</b> (text / photo / video / video note / audio / voice):"); err != nil {
			return err
		}
		return c.Respond()
	case "text":
		r.sess.set(chatID, draft{step: stepEditText, postID: postID})
		if err := c.Edit("Send the new <b>text</b> (used as the caption for media):"); err != nil {
			return err
		}
		return c.Respond()
	case "time":
		r.sess.set(chatID, draft{step: stepEditSendAt, postID: postID})
		if err := c.Edit(r.askSendAtText("new ")); err != nil {
			return err
		}
		return c.Respond()
	}
	return c.Respond(&tele.CallbackResponse{Text: "Unknown action", ShowAlert: true})
}

// pickLevel serves the shared level keyboard for both the create wizard and
// the level edit.
func (r *Router) pickLevel(c tele.Context, level string) error {
	if level != storage.LevelAll && level != storage.LevelAdmins && !storage.KnownCohort(level) {
		return c.Respond(&tele.CallbackResponse{Text: "Unknown level", ShowAlert: true})
	}
	chatID := c.Chat().ID
	d := r.sess.get(chatID)

	switch d.step {
	case stepCreateLevel:
		d.level = level
		d.step = stepCreateContent
		r.sess.set(chatID, d)
		if err := c.Edit(fmt.Sprintf("Level: <b>%s</b>\n\nNow send the <b>post message</b> (text / photo / video / video note / audio / voice):", level)); err != nil {
			return err
		}
		return c.Respond()

	case stepEditLevel:
		post, err := r.store.UpdateLevel(context.Background(), d.postID, level)
		r.sess.clear(chatID)
		if errors.Is(err, storage.ErrNotFound) {
			return c.Respond(&tele.CallbackResponse{Text: "Post not found", ShowAlert: true})
		}
		if err != nil {
			return err
		}
		if err := c.Edit(postCard(post, r.wall), postActionsKB(post.ID, "")); err != nil {
			return err
		}
		return c.Respond(&tele.CallbackResponse{Text: "Saved ✅"})
	}
	return c.Respond(&tele.CallbackResponse{Text: "Start over from /admin", ShowAlert: true})
}

func (r *Router) showTeaser(c tele.Context) error {
	t, err := r.store.Teaser(context.Background())
	if err != nil {
		return err
	}
	var text string
	if t.Configured() {
		text = "🎁 <b>Teaser</b>\n\nRecipients get this instead of the post, with an Open button:\n\n" + t.Text
		if t.Media != nil {
			text += fmt.Sprintf("\n\n📎 %s", t.Media.Kind)
		}
	} else {
		text = "🎁 <b>Teaser</b>\n\nNot configured: posts are delivered directly."
	}
	if err := c.Edit(text, teaserKB(t.Configured())); err != nil {
		return err
	}
	return c.Respond()
}

func (r *Router) teaserAction(c tele.Context, action string) error {
	switch action {
	case "set":
		r.sess.set(c.Chat().ID, draft{step: stepTeaserContent})
		if err := c.Edit("Send the <b>teaser message</b> (text or media with caption):"); err != nil {
			return err
		}
		return c.Respond()
	case "clear":
		if err := r.store.SetTeaser(context.Background(), storage.Teaser{}); err != nil {
			return err
		}
		if err := c.Edit("✅ Teaser cleared. Posts are delivered directly again.", adminMenuKB()); err != nil {
			return err
		}
		return c.Respond()
	}
	return c.Respond(&tele.CallbackResponse{Text: "Unknown action", ShowAlert: true})
}

// wizardMessage advances the chat's wizard with an incoming message.
func (r *Router) wizardMessage(c tele.Context, d draft) error {
	m := c.Message()
	chatID := m.Chat.ID
	ctx := context.Background()

	switch d.step {
	case stepCreateTitle:
		title := strings.TrimSpace(m.Text)
		if title == "" {
			return c.Send("The title must not be empty. Send it again:")
		}
		d.title = title
		d.step = stepCreateLevel
		r.sess.set(chatID, d)
		return c.Send("Pick the <b>level</b> for this post:", postLevelKB())

	case stepCreateContent:
		text, media := extractContent(m)
		if strings.TrimSpace(text) == "" && media == nil {
			return c.Send("The message is empty. Send text or media:")
		}
		d.text = text
		d.media = media
		d.step = stepCreateSendAt
		r.sess.set(chatID, d)
		return c.Send(r.askSendAtText(""))

	case stepCreateSendAt:
		sendAt, err := r.wall.ParseInput(m.Text)
		if err != nil {
			return c.Send(badSendAtText)
		}
		post, err := r.store.CreatePost(ctx, d.title, d.text, sendAt, d.level)
		if err != nil {
			return err
		}
		if d.media != nil {
			if post, err = r.store.UpdateContent(ctx, post.ID, d.text, d.media); err != nil {
				return err
			}
		}
		r.sess.clear(chatID)
		r.sched.ScheduleOrSendNow(post)
		return c.Send(
			fmt.Sprintf("✅ Created post <b>#%d</b>\n🎚 %s\n⏰ %s", post.ID, post.Level, r.wall.Format(post.SendAt)),
			postActionsKB(post.ID, ""))

	case stepEditTitle:
		title := strings.TrimSpace(m.Text)
		if title == "" {
			return c.Send("The title must not be empty. Send it again:")
		}
		post, err := r.store.UpdateTitle(ctx, d.postID, title)
		r.sess.clear(chatID)
		if err != nil {
			return r.editFailed(c, err)
		}
		return c.Send(postCard(post, r.wall), postActionsKB(post.ID, ""))

	case stepEditText:
		text := m.Text
		if strings.TrimSpace(text) == "" {
			return c.Send("The text must not be empty. Send it again:")
		}
		post, err := r.store.UpdateText(ctx, d.postID, text)
		r.sess.clear(chatID)
		if err != nil {
			return r.editFailed(c, err)
		}
		return c.Send(postCard(post, r.wall), postActionsKB(post.ID, ""))

	case stepEditContent:
		text, media := extractContent(m)
		if strings.TrimSpace(text) == "" && media == nil {
			return c.Send("The message is empty. Send text or media:")
		}
		post, err := r.store.UpdateContent(ctx, d.postID, text, media)
		r.sess.clear(chatID)
		if err != nil {
			return r.editFailed(c, err)
		}
		if err := c.Send(postCard(post, r.wall), postActionsKB(post.ID, "")); err != nil {
			return err
		}
		r.sendMediaPreview(c, post)
		return nil

	case stepEditSendAt:
		sendAt, err := r.wall.ParseInput(m.Text)
		if err != nil {
			return c.Send(badSendAtText)
		}
		post, err := r.store.UpdateSendTime(ctx, d.postID, sendAt)
		r.sess.clear(chatID)
		if err != nil {
			return r.editFailed(c, err)
		}
		r.sched.ScheduleOrSendNow(post)
		return c.Send(
			fmt.Sprintf("✅ Time updated: ⏰ %s", r.wall.Format(post.SendAt)),
			postActionsKB(post.ID, ""))

	case stepTeaserContent:
		text, media := extractContent(m)
		if strings.TrimSpace(text) == "" && media == nil {
			return c.Send("The teaser is empty. Send text or media:")
		}
		if err := r.store.SetTeaser(ctx, storage.Teaser{Text: text, Media: media}); err != nil {
			return err
		}
		r.sess.clear(chatID)
		return c.Send("✅ Teaser saved. Recipients now get it with an Open button instead of the post.", adminMenuKB())
	}

	r.sess.clear(chatID)
	return nil
}

const badSendAtText = "Could not read that date/time. Format: <code>" + clock.InputLayout + "</code>. Try again:"

func (r *Router) askSendAtText(prefix string) string {
	return fmt.Sprintf("Send the %s<b>delivery time</b> as:\n<code>%s</code>\n\nTimezone: <b>%s</b>",
		prefix, clock.InputLayout, r.wall.Location().String())
}

func (r *Router) editFailed(c tele.Context, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return c.Send("Post not found.", adminMenuKB())
	}
	return err
}

func splitListPayload(payload string) (ctxVal string, page int) {
	i := strings.LastIndex(payload, ":")
	if i < 0 {
		return payload, 0
	}
	page, _ = strconv.Atoi(payload[i+1:])
	return payload[:i], page
}
