package tgui

import (
	"strings"
	"unicode/utf8"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes,
// counting the full "section:action:payload" string.
const MaxCallbackDataLen = 64

// Data formats inline callback data as "section:action:payload". Payload is
// kept as-is (no escaping). The result is clamped to MaxCallbackDataLen at
// a rune boundary: Telegram rejects the whole keyboard when one button
// exceeds the limit, so an over-long payload degrades to one broken button
// instead.
func Data(section, action, payload string) string {
	d := strings.TrimSpace(section) + ":" + strings.TrimSpace(action)
	if payload != "" {
		d += ":" + payload
	}
	if len(d) <= MaxCallbackDataLen {
		return d
	}
	cut := MaxCallbackDataLen
	for cut > 0 && !utf8.RuneStart(d[cut]) {
		cut--
	}
	return d[:cut]
}

// Split parses callback data produced by Data. It returns the section, the
// action and the raw payload (possibly empty). Telegram clients may prefix
// callback data with "\f"; it is stripped.
func Split(data string) (section, action, payload string) {
	data = strings.TrimPrefix(data, "\f")
	parts := strings.SplitN(data, ":", 3)
	switch len(parts) {
	case 3:
		return parts[0], parts[1], parts[2]
	case 2:
		return parts[0], parts[1], ""
	default:
		return data, "", ""
	}
}
