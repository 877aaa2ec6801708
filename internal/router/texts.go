package router

import (
	"fmt"
	"regexp"
	"strings"

	"castbot/internal/clock"
	"castbot/internal/storage"
)

const welcomeText = `🎄 <b>Welcome to the broadcast challenge!</b>

You're in. From now on you'll receive small tasks and friendly messages
right here, matched to your level.`

const howItWorksText = `✨ <b>How it works</b>

Posts arrive on a schedule set by your teacher. Answer in English as best
you can — the practice is the point. Prizes await those who finish every
task.`

const pickLevelText = "Before we start, please choose your level 👇"

// postCard renders the admin view of a post.
func postCard(p storage.Post, wall clock.Wall) string {
	status := "🕒 pending"
	if p.Sent {
		status = "✅ sent"
	}
	title := p.Title
	if title == "" {
		title = "(untitled)"
	}
	media := "text"
	switch {
	case len(p.Album) > 0:
		media = fmt.Sprintf("album ×%d", len(p.Album))
	case p.Media != nil:
		media = string(p.Media.Kind)
	}
	return fmt.Sprintf(
		"<b>Post #%d</b> (%s)\n⏰ %s\n🎚 %s\n📎 %s\n📝 <b>%s</b>\n\n%s",
		p.ID, status, wall.Format(p.SendAt), p.Level, media, title, p.Text)
}

var nickSanitizer = regexp.MustCompile(`[^0-9A-Za-z_]`)

// forwardTags builds the hashtag line attached to a forwarded user message:
// "#YYYY_MM_DD #tg<id> @nick". The nick is reduced to [0-9A-Za-z_].
func forwardTags(dateKey string, userID int64, username string) string {
	tags := fmt.Sprintf("#%s #tg%d", strings.ReplaceAll(dateKey, "-", "_"), userID)
	if username != "" {
		nick := strings.Trim(nickSanitizer.ReplaceAllString(username, "_"), "_")
		if nick != "" {
			tags += " @" + nick
		}
	}
	return tags
}
