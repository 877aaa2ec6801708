package transport

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnreachable marks a recipient that can never receive this send: the
// user blocked the bot, deactivated the account, or the chat is gone.
// Callers skip these silently.
var ErrUnreachable = errors.New("recipient unreachable")

// ErrBadRequest marks a send the platform rejected as malformed (stale
// file id, bad markup). Retrying the same payload cannot succeed.
var ErrBadRequest = errors.New("bad request")

// RetryAfterError reports a platform rate limit. The caller should wait
// at least After before retrying the same send.
type RetryAfterError struct {
	After time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.After)
}

// AsRetryAfter extracts the rate-limit wait from err, if present.
func AsRetryAfter(err error) (time.Duration, bool) {
	var re *RetryAfterError
	if errors.As(err, &re) {
		return re.After, true
	}
	return 0, false
}

// IsUnreachable reports whether err means the recipient should be dropped
// from this send without noise.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// IsBadRequest reports whether err is a permanent payload rejection.
func IsBadRequest(err error) bool {
	return errors.Is(err, ErrBadRequest)
}
