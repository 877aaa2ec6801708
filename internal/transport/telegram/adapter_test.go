package telegram

import (
	"errors"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"castbot/internal/storage"
	"castbot/internal/transport"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	t.Run("nil", func(t *testing.T) {
		if got := classify(nil); got != nil {
			t.Fatalf("classify(nil) = %v", got)
		}
	})

	t.Run("flood", func(t *testing.T) {
		err := classify(tele.FloodError{RetryAfter: 7})
		after, ok := transport.AsRetryAfter(err)
		if !ok || after != 7*time.Second {
			t.Fatalf("got after=%v ok=%v from %v", after, ok, err)
		}
	})

	t.Run("blocked sentinel", func(t *testing.T) {
		if err := classify(tele.ErrBlockedByUser); !transport.IsUnreachable(err) {
			t.Fatalf("blocked user not unreachable: %v", err)
		}
	})

	t.Run("forbidden code", func(t *testing.T) {
		if err := classify(&tele.Error{Code: 403, Description: "Forbidden: whatever"}); !transport.IsUnreachable(err) {
			t.Fatalf("403 not unreachable: %v", err)
		}
	})

	t.Run("bad request code", func(t *testing.T) {
		err := classify(&tele.Error{Code: 400, Description: "Bad Request: wrong file id"})
		if !transport.IsBadRequest(err) {
			t.Fatalf("400 not bad request: %v", err)
		}
		if transport.IsUnreachable(err) {
			t.Fatalf("400 must not be unreachable: %v", err)
		}
	})

	t.Run("passthrough", func(t *testing.T) {
		orig := errors.New("connection reset")
		err := classify(orig)
		if !errors.Is(err, orig) {
			t.Fatalf("transient error rewritten: %v", err)
		}
		if transport.IsUnreachable(err) || transport.IsBadRequest(err) {
			t.Fatalf("transient error misclassified: %v", err)
		}
		if _, ok := transport.AsRetryAfter(err); ok {
			t.Fatalf("transient error treated as flood: %v", err)
		}
	})
}

func TestSendable(t *testing.T) {
	t.Parallel()

	got, err := sendable(storage.MediaItem{Kind: storage.MediaVideoNote, FileID: "vn"}, "ignored")
	if err != nil {
		t.Fatalf("video note: %v", err)
	}
	if _, ok := got.(*tele.VideoNote); !ok {
		t.Fatalf("video note type: %T", got)
	}

	got, err = sendable(storage.MediaItem{Kind: storage.MediaPhoto, FileID: "ph"}, "cap")
	if err != nil {
		t.Fatalf("photo: %v", err)
	}
	ph, ok := got.(*tele.Photo)
	if !ok || ph.Caption != "cap" || ph.FileID != "ph" {
		t.Fatalf("photo: %#v", got)
	}

	if _, err := sendable(storage.MediaItem{Kind: "sticker", FileID: "x"}, ""); err == nil {
		t.Fatal("unknown kind must fail")
	}
}

func TestAlbumMember(t *testing.T) {
	t.Parallel()

	if _, err := albumMember(storage.MediaItem{Kind: storage.MediaVoice, FileID: "v"}, ""); err == nil {
		t.Fatal("voice cannot join an album")
	}
	m, err := albumMember(storage.MediaItem{Kind: storage.MediaVideo, FileID: "vid"}, "c")
	if err != nil {
		t.Fatalf("video: %v", err)
	}
	if _, ok := m.(*tele.Video); !ok {
		t.Fatalf("video type: %T", m)
	}
}
