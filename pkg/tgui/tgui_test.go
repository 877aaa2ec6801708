package tgui

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDataAndSplit(t *testing.T) {
	t.Parallel()
	cases := []struct {
		section, action, payload string
		want                     string
	}{
		{"admin", "back", "", "admin:back"},
		{"pact", "del", "12", "pact:del:12"},
		{"plist", "d", "2025-01-05:3", "plist:d:2025-01-05:3"},
		{" ulevel ", " starters ", "", "ulevel:starters"},
	}
	for _, tc := range cases {
		got := Data(tc.section, tc.action, tc.payload)
		if got != tc.want {
			t.Fatalf("Data(%q,%q,%q) = %q", tc.section, tc.action, tc.payload, got)
		}
		s, a, p := Split("\f" + got)
		if s != strings.TrimSpace(tc.section) || a != strings.TrimSpace(tc.action) || p != tc.payload {
			t.Fatalf("Split(%q) = %q,%q,%q", got, s, a, p)
		}
	}
}

func TestDataClampsToCallbackLimit(t *testing.T) {
	t.Parallel()
	long := Data("post", "card", strings.Repeat("x", 100))
	if len(long) != MaxCallbackDataLen {
		t.Fatalf("len = %d", len(long))
	}
	// The clamp must never split a rune.
	multi := Data("posts", "card", strings.Repeat("é", 60))
	if len(multi) > MaxCallbackDataLen || !utf8.ValidString(multi) {
		t.Fatalf("clamped data invalid: %q (%d bytes)", multi, len(multi))
	}
}

func TestSplitMalformed(t *testing.T) {
	t.Parallel()
	if s, a, p := Split("noop"); s != "noop" || a != "" || p != "" {
		t.Fatalf("got %q,%q,%q", s, a, p)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"loooooong", 4, "looo…"},
		{"приветик", 6, "привет…"},
		{"anything", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Fatalf("TruncRunes(%q,%d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestPageBounds(t *testing.T) {
	t.Parallel()
	cases := []struct {
		page, size, total int
		want              int
		prev, next        bool
	}{
		{0, 10, 5, 0, false, false},
		{0, 10, 25, 0, false, true},
		{1, 10, 25, 1, true, true},
		{2, 10, 25, 2, true, false},
		{9, 10, 25, 2, true, false}, // overflow clips to the last page
		{-3, 10, 25, 0, false, true},
		{0, 10, 0, 0, false, false},
	}
	for _, tc := range cases {
		got, prev, next := PageBounds(tc.page, tc.size, tc.total)
		if got != tc.want || prev != tc.prev || next != tc.next {
			t.Fatalf("PageBounds(%d,%d,%d) = %d,%v,%v", tc.page, tc.size, tc.total, got, prev, next)
		}
	}
}

func TestPageLabel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		page, size, total int
		want              string
	}{
		{0, 10, 0, "Page 1/1"},
		{0, 10, 25, "Page 1/3"},
		{2, 10, 25, "Page 3/3"},
		{7, 10, 25, "Page 3/3"},
	}
	for _, tc := range cases {
		if got := PageLabel(tc.page, tc.size, tc.total); got != tc.want {
			t.Fatalf("PageLabel(%d,%d,%d) = %q", tc.page, tc.size, tc.total, got)
		}
	}
}
