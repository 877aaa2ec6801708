package router

import (
	"sync"

	"castbot/internal/storage"
)

// wizard step the admin chat is currently in
type step int

const (
	stepIdle step = iota

	stepCreateTitle
	stepCreateLevel
	stepCreateContent
	stepCreateSendAt

	stepEditTitle
	stepEditLevel
	stepEditText
	stepEditContent
	stepEditSendAt

	stepTeaserContent
)

// draft holds wizard progress for one admin chat. Creation accumulates
// fields step by step; edits carry only the target post id.
type draft struct {
	step   step
	postID int64

	title string
	level string
	text  string
	media *storage.MediaItem
}

// sessions is the in-memory wizard table keyed by chat id. State does not
// survive a restart; an interrupted wizard simply starts over.
type sessions struct {
	mu sync.Mutex
	m  map[int64]*draft
}

func newSessions() *sessions {
	return &sessions{m: make(map[int64]*draft)}
}

// get returns the chat's draft, creating an idle one when absent.
func (s *sessions) get(chatID int64) draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.m[chatID]; ok {
		return *d
	}
	return draft{}
}

func (s *sessions) set(chatID int64, d draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := d
	s.m[chatID] = &cp
}

func (s *sessions) clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, chatID)
}
