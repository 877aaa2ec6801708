package delivery

import (
	"unicode/utf8"

	"castbot/internal/storage"
)

// captionLimit is Telegram's media caption size in characters.
const captionLimit = 1024

type stepKind int

const (
	stepText stepKind = iota
	stepMedia
	stepAlbum
)

// step is one outbound message of a rendered post. A post renders into one
// or two steps; they go to each recipient in order.
type step struct {
	kind   stepKind
	text   string // body for stepText, caption otherwise
	media  storage.MediaItem
	album  []storage.MediaItem
	markup any
}

// renderPost decides how a post body maps onto Telegram messages:
//   - album with text ≤ captionLimit: one media group, text as the caption
//   - album with longer text: caption-less group, then the text
//   - video note: the note (no caption support), then the text if any
//   - other single media: one message with the text as caption
//   - text only: one text message
//
// A post with no content renders to nothing; delivery treats that as a
// trivially successful send.
func renderPost(p storage.Post) []step {
	switch {
	case len(p.Album) > 0:
		if p.Text != "" && utf8.RuneCountInString(p.Text) <= captionLimit {
			return []step{{kind: stepAlbum, album: p.Album, text: p.Text}}
		}
		steps := []step{{kind: stepAlbum, album: p.Album}}
		if p.Text != "" {
			steps = append(steps, step{kind: stepText, text: p.Text})
		}
		return steps

	case p.Media != nil:
		if p.Media.Kind == storage.MediaVideoNote {
			steps := []step{{kind: stepMedia, media: *p.Media}}
			if p.Text != "" {
				steps = append(steps, step{kind: stepText, text: p.Text})
			}
			return steps
		}
		return []step{{kind: stepMedia, media: *p.Media, text: p.Text}}

	case p.Text != "":
		return []step{{kind: stepText, text: p.Text}}
	}
	return nil
}

// renderTeaser renders the announcement sent in place of the post body.
// markup carries the inline "Open" button and rides on the last step, so a
// video-note teaser keeps its text: the note cannot carry a caption, the
// text follows as its own message with the button.
func renderTeaser(t storage.Teaser, markup any) []step {
	if t.Media != nil {
		if t.Media.Kind == storage.MediaVideoNote {
			if t.Text != "" {
				return []step{
					{kind: stepMedia, media: *t.Media},
					{kind: stepText, text: t.Text, markup: markup},
				}
			}
			return []step{{kind: stepMedia, media: *t.Media, markup: markup}}
		}
		return []step{{kind: stepMedia, media: *t.Media, text: t.Text, markup: markup}}
	}
	if t.Text != "" {
		return []step{{kind: stepText, text: t.Text, markup: markup}}
	}
	return nil
}
