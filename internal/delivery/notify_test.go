package delivery

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"castbot/internal/transport"
	logx "castbot/pkg/logx"
)

type fixedAdmins []int64

func (a fixedAdmins) Admins() []int64 { return a }

func TestSummarizeFansOut(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	n := NewNotifier(sender, fixedAdmins{100, 200}, logx.Nop())

	n.Summarize(context.Background(), Report{
		PostID: 12, Title: "Launch", Level: "starters", Delivered: 5, Total: 7,
	})

	if len(sender.calls) != 2 {
		t.Fatalf("calls: %+v", sender.calls)
	}
	for i, admin := range []int64{100, 200} {
		c := sender.calls[i]
		if c.chat != admin {
			t.Fatalf("call %d went to %d", i, c.chat)
		}
		for _, want := range []string{"#12", "Launch", "starters", "5 of 7"} {
			if !strings.Contains(c.text, want) {
				t.Fatalf("summary %q missing %q", c.text, want)
			}
		}
	}
}

func TestSummarizeIsolation(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{fail: map[int64][]error{
		100: {fmt.Errorf("%w: blocked", transport.ErrUnreachable)},
		200: {&transport.RetryAfterError{After: time.Second}},
	}}
	n := NewNotifier(sender, fixedAdmins{100, 200, 300}, logx.Nop())
	var slept []time.Duration
	n.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	n.Summarize(context.Background(), Report{PostID: 1, Level: "all", Delivered: 1, Total: 1})

	// 100 fails once, 200 is retried after the wait, 300 succeeds
	if got := len(sender.callsFor(200)); got != 2 {
		t.Fatalf("rate-limited admin must be retried once: %d calls", got)
	}
	if got := len(sender.callsFor(300)); got != 1 {
		t.Fatalf("later admins must still be notified: %d calls", got)
	}
	if len(slept) != 1 || slept[0] != time.Second+retryPad {
		t.Fatalf("slept: %v", slept)
	}
}

func TestSummarizeSkippedRun(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	n := NewNotifier(sender, fixedAdmins{100}, logx.Nop())
	n.Summarize(context.Background(), Report{PostID: 3, Skipped: true})
	if len(sender.calls) != 0 {
		t.Fatalf("skipped run must not notify: %+v", sender.calls)
	}
}
