// Package schedule arms one-shot delivery timers for unsent posts and keeps
// them consistent across edits, deletes, and restarts. Reconciliation runs
// at startup and on a periodic sweep, so a missed timer only delays a post
// until the next sweep, never loses it.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"castbot/internal/clock"
	"castbot/internal/delivery"
	"castbot/internal/storage"
	logx "castbot/pkg/logx"
)

// PostLister is the subset of the store reconciliation reads.
type PostLister interface {
	UnsentDue(ctx context.Context, now time.Time) ([]storage.Post, error)
	UnsentFuture(ctx context.Context, now time.Time) ([]storage.Post, error)
}

// Dispatcher runs one delivery. The scheduler never passes post content,
// only the id; the dispatcher re-reads current state.
type Dispatcher interface {
	Deliver(ctx context.Context, postID int64) (delivery.Report, error)
}

// Reporter receives the summary of a finished run.
type Reporter interface {
	Summarize(ctx context.Context, rep delivery.Report)
}

type Config struct {
	// ReconcileEvery is the sweep period; 0 disables the periodic sweep.
	ReconcileEvery time.Duration
	// MisfireGrace is the lateness beyond which a delivery is logged as a
	// misfire. Late posts are always delivered regardless.
	MisfireGrace time.Duration
}

type Scheduler struct {
	cfg    Config
	store  PostLister
	exec   Dispatcher
	notify Reporter // may be nil
	wall   clock.Wall
	log    logx.Logger

	mu       sync.Mutex
	timers   map[int64]*time.Timer
	ver      map[int64]uint64
	inflight map[int64]struct{}
	runCtx   context.Context
	cron     *cron.Cron
	started  bool

	wg sync.WaitGroup

	// dispatch is swapped out in tests
	dispatch func(postID int64, late time.Duration)
}

func New(cfg Config, store PostLister, exec Dispatcher, notify Reporter, wall clock.Wall, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.MisfireGrace <= 0 {
		cfg.MisfireGrace = time.Hour
	}
	s := &Scheduler{
		cfg:      cfg,
		store:    store,
		exec:     exec,
		notify:   notify,
		wall:     wall,
		log:      log,
		timers:   make(map[int64]*time.Timer),
		ver:      make(map[int64]uint64),
		inflight: make(map[int64]struct{}),
		runCtx:   context.Background(),
	}
	s.dispatch = s.runDelivery
	return s
}

// Start runs an initial reconcile and, when configured, the periodic sweep.
// ctx bounds every delivery the scheduler launches.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.runCtx = ctx
	s.mu.Unlock()

	if err := s.Reconcile(ctx); err != nil {
		return fmt.Errorf("initial reconcile: %w", err)
	}

	if s.cfg.ReconcileEvery > 0 {
		c := cron.New()
		spec := fmt.Sprintf("@every %s", s.cfg.ReconcileEvery)
		if _, err := c.AddFunc(spec, func() {
			if err := s.Reconcile(ctx); err != nil {
				s.log.Warn("reconcile sweep failed", logx.Err(err))
			}
		}); err != nil {
			return fmt.Errorf("register sweep: %w", err)
		}
		c.Start()
		s.mu.Lock()
		s.cron = c
		s.mu.Unlock()
		s.log.Info("reconcile sweep armed", logx.Duration("every", s.cfg.ReconcileEvery))
	}
	return nil
}

// Stop drops every armed timer and waits for in-flight deliveries up to the
// ctx deadline. Runs past the deadline finish on their own; they are not
// cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	c := s.cron
	s.cron = nil
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
		s.ver[id]++
	}
	s.mu.Unlock()

	if c != nil {
		c.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.log.Warn("stopped with deliveries still in flight")
		return nil
	}
}

// ScheduleOrSendNow routes a post after create or time edit: due posts are
// dispatched immediately, future ones get a single armed timer. A sent post
// only clears any stale timer.
func (s *Scheduler) ScheduleOrSendNow(p storage.Post) {
	if p.Sent {
		s.Unschedule(p.ID)
		return
	}
	now := s.wall.Now()
	if !p.SendAt.After(now) {
		s.Unschedule(p.ID)
		s.dispatch(p.ID, now.Sub(p.SendAt))
		return
	}
	s.arm(p.ID, p.SendAt)
}

// Unschedule stops an armed timer for the post, if any. An already-fired or
// absent timer is not an error.
func (s *Scheduler) Unschedule(postID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ver[postID]++
	if t, ok := s.timers[postID]; ok {
		t.Stop()
		delete(s.timers, postID)
	}
}

// Reconcile realigns timers with the store: every unsent due post is
// dispatched now, every unsent future post gets a (re-)armed timer.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	now := s.wall.Now()

	due, err := s.store.UnsentDue(ctx, now)
	if err != nil {
		return fmt.Errorf("list due posts: %w", err)
	}
	for _, p := range due {
		s.Unschedule(p.ID)
		s.dispatch(p.ID, now.Sub(p.SendAt))
	}

	future, err := s.store.UnsentFuture(ctx, now)
	if err != nil {
		return fmt.Errorf("list future posts: %w", err)
	}
	for _, p := range future {
		s.arm(p.ID, p.SendAt)
	}

	s.log.Info("reconciled", logx.Int("due", len(due)), logx.Int("armed", len(future)))
	return nil
}

// arm upserts the single timer for a post id, set to fire at the post's
// send time. Any previously armed timer is replaced; a concurrent fire of
// the old timer is a no-op thanks to the version check.
func (s *Scheduler) arm(postID int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ver[postID]++
	v := s.ver[postID]
	if t, ok := s.timers[postID]; ok {
		t.Stop()
	}
	s.timers[postID] = time.AfterFunc(at.Sub(s.wall.Now()), func() { s.fire(postID, v, at) })
}

func (s *Scheduler) fire(postID int64, v uint64, at time.Time) {
	s.mu.Lock()
	if s.ver[postID] != v {
		s.mu.Unlock()
		return
	}
	delete(s.timers, postID)
	s.mu.Unlock()
	// A timer can overshoot its deadline (process suspend, clock step);
	// measure the real lateness so the misfire warning still triggers.
	late := s.wall.Now().Sub(at)
	if late < 0 {
		late = 0
	}
	s.dispatch(postID, late)
}

// ArmedCount reports the number of pending timers (for status output).
func (s *Scheduler) ArmedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// runDelivery is the single dispatch path. The in-flight guard keeps
// at-most-one concurrent run per post id; duplicates from overlapping
// reconciles and timer fires collapse here.
func (s *Scheduler) runDelivery(postID int64, late time.Duration) {
	s.mu.Lock()
	if _, busy := s.inflight[postID]; busy {
		s.mu.Unlock()
		s.log.Debug("delivery already in flight", logx.Int64("post_id", postID))
		return
	}
	s.inflight[postID] = struct{}{}
	ctx := s.runCtx
	s.mu.Unlock()

	if late > s.cfg.MisfireGrace {
		s.log.Warn("delivering past misfire grace",
			logx.Int64("post_id", postID), logx.Duration("late", late))
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, postID)
			s.mu.Unlock()
		}()

		rep, err := s.exec.Deliver(ctx, postID)
		if err != nil {
			s.log.Error("delivery failed", logx.Int64("post_id", postID), logx.Err(err))
			return
		}
		if s.notify != nil {
			s.notify.Summarize(ctx, rep)
		}
	}()
}
