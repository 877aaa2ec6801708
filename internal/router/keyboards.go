package router

import (
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"castbot/internal/clock"
	"castbot/internal/storage"
	"castbot/pkg/tgui"
)

// cohortLabels maps level keys to the button captions users see.
var cohortLabels = map[string]string{
	"starters":  "🌱 Starters",
	"explorers": "🚀 Explorers",
	"achievers": "🌟 Achievers",
}

func levelLabel(level string) string {
	if l, ok := cohortLabels[level]; ok {
		return l
	}
	switch level {
	case storage.LevelAll:
		return "🌍 Everyone"
	case storage.LevelAdmins:
		return "🛠 Admins (test)"
	}
	return level
}

func userLevelKB() *tele.ReplyMarkup {
	kb := tgui.NewInline()
	for _, lvl := range storage.Cohorts {
		kb.Row(tgui.Btn(levelLabel(lvl), tgui.Data("ulevel", lvl, "")))
	}
	return kb.Markup()
}

func adminMenuKB() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(tgui.Btn("➕ New post", tgui.Data("admin", "create", ""))).
		Row(tgui.Btn("🎁 Teaser", tgui.Data("admin", "teaser", ""))).
		Row(tgui.Btn("🗓 Posts by date", tgui.Data("admin", "dates", ""))).
		Row(tgui.Btn("🎚 Posts by level", tgui.Data("admin", "levels", ""))).
		Markup()
}

// postLevelKB offers every assignable post level: the cohorts, everyone,
// and the admin-only test audience.
func postLevelKB() *tele.ReplyMarkup {
	kb := tgui.NewInline()
	kb.Row(tgui.Btn(levelLabel(storage.LevelAll), tgui.Data("plevel", storage.LevelAll, "")))
	for _, lvl := range storage.Cohorts {
		kb.Row(tgui.Btn(levelLabel(lvl), tgui.Data("plevel", lvl, "")))
	}
	kb.Row(tgui.Btn(levelLabel(storage.LevelAdmins), tgui.Data("plevel", storage.LevelAdmins, "")))
	kb.Row(tgui.Btn("⬅️ Back", tgui.Data("admin", "back", "")))
	return kb.Markup()
}

func datesKB(dates []string, page, total int, hasPrev, hasNext bool) *tele.ReplyMarkup {
	kb := tgui.NewInline()
	for _, d := range dates {
		kb.Row(tgui.Btn(d, tgui.Data("adate", d, "")))
	}
	kb.Row(pagerRow(page, total, hasPrev, hasNext, func(p int) string {
		return tgui.Data("dpage", strconv.Itoa(p), "")
	})...)
	kb.Row(tgui.Btn("⬅️ Back", tgui.Data("admin", "back", "")))
	return kb.Markup()
}

func browseLevelsKB() *tele.ReplyMarkup {
	kb := tgui.NewInline()
	kb.Row(tgui.Btn(levelLabel(storage.LevelAll), tgui.Data("alevel", storage.LevelAll, "")))
	for _, lvl := range storage.Cohorts {
		kb.Row(tgui.Btn(levelLabel(lvl), tgui.Data("alevel", lvl, "")))
	}
	kb.Row(tgui.Btn(levelLabel(storage.LevelAdmins), tgui.Data("alevel", storage.LevelAdmins, "")))
	kb.Row(tgui.Btn("⬅️ Back", tgui.Data("admin", "back", "")))
	return kb.Markup()
}

// postsListKB lists one button per post plus pager. ctx ("d" or "l") and
// ctxVal identify the listing so the post card can route "back".
func postsListKB(posts []storage.Post, wall clock.Wall, ctx, ctxVal string, page, total int, hasPrev, hasNext bool) *tele.ReplyMarkup {
	kb := tgui.NewInline()
	for _, p := range posts {
		kb.Row(tgui.Btn(postListLabel(p, wall),
			tgui.Data("post", strconv.FormatInt(p.ID, 10), fmt.Sprintf("%s:%s:%d", ctx, ctxVal, page))))
	}
	kb.Row(pagerRow(page, total, hasPrev, hasNext, func(p int) string {
		return tgui.Data("plist", ctx, fmt.Sprintf("%s:%d", ctxVal, p))
	})...)
	back := tgui.Data("admin", "dates", "")
	if ctx == "l" {
		back = tgui.Data("admin", "levels", "")
	}
	kb.Row(tgui.Btn("⬅️ Back", back))
	return kb.Markup()
}

func postListLabel(p storage.Post, wall clock.Wall) string {
	title := p.Title
	if title == "" {
		title = "(untitled)"
	}
	label := fmt.Sprintf("#%d · %s · %s · %s", p.ID, wall.Format(p.SendAt), p.Level, title)
	return tgui.TruncRunes(label, 60)
}

func pagerRow(page, total int, hasPrev, hasNext bool, data func(page int) string) []tele.Btn {
	var row []tele.Btn
	if hasPrev {
		row = append(row, tgui.Btn("⬅️", data(page-1)))
	}
	row = append(row, tgui.Btn(tgui.PageLabel(page, pageSize, total), tgui.Data("noop", "", "")))
	if hasNext {
		row = append(row, tgui.Btn("➡️", data(page+1)))
	}
	return row
}

func postActionsKB(postID int64, backData string) *tele.ReplyMarkup {
	id := strconv.FormatInt(postID, 10)
	if backData == "" {
		backData = tgui.Data("admin", "back", "")
	}
	return tgui.NewInline().
		Row(tgui.Btn("✏️ Title", tgui.Data("pact", "title", id))).
		Row(tgui.Btn("🎚 Level", tgui.Data("pact", "level", id))).
		Row(tgui.Btn("📎 Content", tgui.Data("pact", "content", id))).
		Row(tgui.Btn("✏️ Text", tgui.Data("pact", "text", id))).
		Row(tgui.Btn("⏰ Time", tgui.Data("pact", "time", id))).
		Row(tgui.Btn("🗑 Delete", tgui.Data("pact", "del", id))).
		Row(tgui.Btn("⬅️ Back", backData)).
		Markup()
}

func confirmDeleteKB(postID int64) *tele.ReplyMarkup {
	id := strconv.FormatInt(postID, 10)
	return tgui.NewInline().
		Row(
			tgui.Btn("✅ Delete", tgui.Data("pact", "del_yes", id)),
			tgui.Btn("❌ Cancel", tgui.Data("pact", "del_no", id)),
		).
		Markup()
}

func teaserKB(configured bool) *tele.ReplyMarkup {
	kb := tgui.NewInline()
	kb.Row(tgui.Btn("✏️ Set teaser", tgui.Data("teaser", "set", "")))
	if configured {
		kb.Row(tgui.Btn("🗑 Clear teaser", tgui.Data("teaser", "clear", "")))
	}
	kb.Row(tgui.Btn("⬅️ Back", tgui.Data("admin", "back", "")))
	return kb.Markup()
}
