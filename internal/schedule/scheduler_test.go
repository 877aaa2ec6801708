package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"castbot/internal/clock"
	"castbot/internal/delivery"
	"castbot/internal/storage"
	logx "castbot/pkg/logx"
)

type fakeLister struct {
	due    []storage.Post
	future []storage.Post
}

func (f *fakeLister) UnsentDue(ctx context.Context, now time.Time) ([]storage.Post, error) {
	return f.due, nil
}

func (f *fakeLister) UnsentFuture(ctx context.Context, now time.Time) ([]storage.Post, error) {
	return f.future, nil
}

type blockingExec struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (e *blockingExec) Deliver(ctx context.Context, postID int64) (delivery.Report, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.started != nil {
		e.started <- struct{}{}
	}
	if e.release != nil {
		<-e.release
	}
	return delivery.Report{PostID: postID, Delivered: 1, Total: 1}, nil
}

func newTestScheduler(t *testing.T) (*Scheduler, chan int64) {
	t.Helper()
	wall, err := clock.NewWall("UTC")
	if err != nil {
		t.Fatalf("wall: %v", err)
	}
	s := New(Config{}, &fakeLister{}, &blockingExec{}, nil, wall, logx.Nop())
	fired := make(chan int64, 16)
	s.dispatch = func(postID int64, late time.Duration) { fired <- postID }
	return s, fired
}

func drained(ch chan int64, wait time.Duration) []int64 {
	var out []int64
	deadline := time.After(wait)
	for {
		select {
		case id := <-ch:
			out = append(out, id)
		case <-deadline:
			return out
		}
	}
}

func futurePost(id int64, in time.Duration) storage.Post {
	return storage.Post{ID: id, SendAt: time.Now().UTC().Add(in)}
}

func TestFuturePostArmsSingleTimer(t *testing.T) {
	t.Parallel()
	s, fired := newTestScheduler(t)

	p := futurePost(1, time.Hour)
	s.ScheduleOrSendNow(p)
	s.ScheduleOrSendNow(p) // re-arm must replace, not duplicate

	if n := s.ArmedCount(); n != 1 {
		t.Fatalf("armed timers: %d", n)
	}
	if got := drained(fired, 50*time.Millisecond); len(got) != 0 {
		t.Fatalf("future post dispatched early: %v", got)
	}
}

func TestDuePostDispatchesNow(t *testing.T) {
	t.Parallel()
	s, fired := newTestScheduler(t)

	s.ScheduleOrSendNow(futurePost(2, -time.Minute))

	got := drained(fired, 100*time.Millisecond)
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("dispatched: %v", got)
	}
	if n := s.ArmedCount(); n != 0 {
		t.Fatalf("armed timers: %d", n)
	}
}

func TestTimerFireReportsLateness(t *testing.T) {
	t.Parallel()
	wall, err := clock.NewWall("UTC")
	if err != nil {
		t.Fatalf("wall: %v", err)
	}
	s := New(Config{}, &fakeLister{}, &blockingExec{}, nil, wall, logx.Nop())
	type firing struct {
		id   int64
		late time.Duration
	}
	fired := make(chan firing, 1)
	s.dispatch = func(postID int64, late time.Duration) { fired <- firing{postID, late} }

	// A timer that overshot its deadline must dispatch with the real
	// lateness, not zero, so the misfire warning can trigger.
	s.arm(7, wall.Now().Add(-2*time.Hour))

	select {
	case f := <-fired:
		if f.id != 7 {
			t.Fatalf("fired post: %d", f.id)
		}
		if f.late < 2*time.Hour-time.Minute {
			t.Fatalf("lateness not measured: %v", f.late)
		}
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestSentPostIsNoOp(t *testing.T) {
	t.Parallel()
	s, fired := newTestScheduler(t)

	p := futurePost(3, -time.Minute)
	p.Sent = true
	s.ScheduleOrSendNow(p)

	if got := drained(fired, 50*time.Millisecond); len(got) != 0 {
		t.Fatalf("sent post dispatched: %v", got)
	}
	if n := s.ArmedCount(); n != 0 {
		t.Fatalf("armed timers: %d", n)
	}
}

func TestTimerFires(t *testing.T) {
	t.Parallel()
	s, fired := newTestScheduler(t)

	s.ScheduleOrSendNow(futurePost(4, 20*time.Millisecond))

	got := drained(fired, 500*time.Millisecond)
	if len(got) != 1 || got[0] != 4 {
		t.Fatalf("dispatched: %v", got)
	}
}

func TestUnschedulePreventsDelivery(t *testing.T) {
	t.Parallel()
	s, fired := newTestScheduler(t)

	s.ScheduleOrSendNow(futurePost(5, 30*time.Millisecond))
	s.Unschedule(5)

	if got := drained(fired, 200*time.Millisecond); len(got) != 0 {
		t.Fatalf("cancelled timer still fired: %v", got)
	}
	// unscheduling a post with no timer is fine
	s.Unschedule(999)
}

func TestRearmInvalidatesOldTimer(t *testing.T) {
	t.Parallel()
	s, fired := newTestScheduler(t)

	s.ScheduleOrSendNow(futurePost(6, 20*time.Millisecond))
	s.ScheduleOrSendNow(futurePost(6, 80*time.Millisecond))

	got := drained(fired, 500*time.Millisecond)
	if len(got) != 1 {
		t.Fatalf("rearmed post fired %d times: %v", len(got), got)
	}
}

func TestReconcile(t *testing.T) {
	t.Parallel()
	wall, _ := clock.NewWall("UTC")
	now := time.Now().UTC()
	store := &fakeLister{
		due: []storage.Post{
			{ID: 10, SendAt: now.Add(-2 * time.Hour)},
			{ID: 11, SendAt: now.Add(-time.Second)},
		},
		future: []storage.Post{
			{ID: 12, SendAt: now.Add(time.Hour)},
		},
	}
	s := New(Config{}, store, &blockingExec{}, nil, wall, logx.Nop())
	fired := make(chan int64, 16)
	s.dispatch = func(postID int64, late time.Duration) { fired <- postID }

	if err := s.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got := drained(fired, 100*time.Millisecond)
	if len(got) != 2 || got[0] != 10 || got[1] != 11 {
		t.Fatalf("dispatched: %v", got)
	}
	if n := s.ArmedCount(); n != 1 {
		t.Fatalf("armed timers: %d", n)
	}
}

func TestInFlightGuard(t *testing.T) {
	t.Parallel()
	wall, _ := clock.NewWall("UTC")
	exec := &blockingExec{started: make(chan struct{}, 1), release: make(chan struct{})}
	s := New(Config{}, &fakeLister{}, exec, nil, wall, logx.Nop())

	s.runDelivery(7, 0)
	<-exec.started
	// second dispatch while the first is still running must collapse
	s.runDelivery(7, 0)
	close(exec.release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.started = true
	_ = s.Stop(ctx)

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if exec.calls != 1 {
		t.Fatalf("deliver ran %d times", exec.calls)
	}
}

func TestRunDeliveryNotifies(t *testing.T) {
	t.Parallel()
	wall, _ := clock.NewWall("UTC")
	exec := &blockingExec{}
	var mu sync.Mutex
	var reports []delivery.Report
	notify := reporterFunc(func(ctx context.Context, rep delivery.Report) {
		mu.Lock()
		reports = append(reports, rep)
		mu.Unlock()
	})
	s := New(Config{}, &fakeLister{}, exec, notify, wall, logx.Nop())

	s.runDelivery(8, 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.started = true
	_ = s.Stop(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 1 || reports[0].PostID != 8 {
		t.Fatalf("reports: %+v", reports)
	}
}

type reporterFunc func(ctx context.Context, rep delivery.Report)

func (f reporterFunc) Summarize(ctx context.Context, rep delivery.Report) { f(ctx, rep) }
