// Package storage owns all persisted state: posts, subscribers, album items
// and the teaser singleton. Every operation is a short-lived call; callers
// must never hold results across network sends, they re-read instead.
package storage
