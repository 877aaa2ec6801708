// Package app assembles the bot: config, logging, storage, the Telegram
// adapter, the delivery pipeline, the post scheduler, and the handler
// router. Construction is fail-fast; Start only launches what New already
// wired.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"castbot/internal/audience"
	"castbot/internal/clock"
	"castbot/internal/config"
	"castbot/internal/delivery"
	"castbot/internal/router"
	"castbot/internal/schedule"
	"castbot/internal/seed"
	"castbot/internal/storage"
	telegram "castbot/internal/transport/telegram"
	logx "castbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	wall     clock.Wall
	store    storage.Store
	adapter  *telegram.Adapter
	resolver *audience.Resolver
	exec     *delivery.Executor
	sched    *schedule.Scheduler

	seedEnabled bool
	seedPath    string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads the config and wires every component. On error nothing is left
// running and any opened resources are closed.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		if err := config.Validate(c); err != nil {
			return err
		}
		if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
			}
		}
		return nil
	})

	wall, err := clock.NewWall(cfg.Scheduler.Timezone)
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, config.DefaultBusyTimeout)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
		Location:    wall.Location(),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, config.DefaultPollTimeout)
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}

	resolver := audience.New(store, cfg.Telegram.AdminIDs, log.With(logx.String("comp", "audience")))

	exec := delivery.NewExecutor(delivery.Config{
		RatePerSec: cfg.Delivery.RatePerSec,
	}, store, resolver, adapter, wall, log.With(logx.String("comp", "delivery")))

	notif := delivery.NewNotifier(adapter, resolver, log.With(logx.String("comp", "delivery")))

	reconcileEvery, err := config.ParseDurationOrDefault("scheduler.reconcile_every", cfg.Scheduler.ReconcileEvery, config.DefaultReconcileEvery)
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}
	misfireGrace, err := config.ParseDurationOrDefault("scheduler.misfire_grace", cfg.Scheduler.MisfireGrace, config.DefaultMisfireGrace)
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}
	sched := schedule.New(schedule.Config{
		ReconcileEvery: reconcileEvery,
		MisfireGrace:   misfireGrace,
	}, store, exec, notif, wall, log.With(logx.String("comp", "schedule")))

	rt := router.New(store, sched, exec, resolver, wall, log.With(logx.String("comp", "router")))
	rt.Register(adapter.Bot())

	return &App{
		cfgm:        cfgm,
		logs:        logSvc,
		log:         log,
		wall:        wall,
		store:       store,
		adapter:     adapter,
		resolver:    resolver,
		exec:        exec,
		sched:       sched,
		seedEnabled: cfg.Seed.Enabled,
		seedPath:    cfg.Seed.Path,
	}, nil
}

// Start seeds the store if configured, reconciles and arms the scheduler,
// begins long polling, and launches the config hot-reload loop.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.seedEnabled {
		n, err := seed.FromJSON(runCtx, a.store, a.seedPath, a.wall, a.log.With(logx.String("comp", "seed")))
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		if n > 0 {
			a.log.Info("seeded posts", logx.Int("created", n))
		}
	}

	if err := a.sched.Start(runCtx); err != nil {
		return err
	}
	if err := a.adapter.Start(runCtx); err != nil {
		return err
	}

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd-notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd-notify ready")
	}

	a.log.Info("bot started", logx.Int("armed", a.sched.ArmedCount()))
	return nil
}

// reloadLoop applies hot-reloadable config sections. Storage, timezone, and
// the bot token only take effect on restart; a change there is logged.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts, keep only the newest.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
					continue
				default:
				}
				break
			}

			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.resolver.Apply(cfg.Telegram.AdminIDs)
			a.exec.Apply(delivery.Config{RatePerSec: cfg.Delivery.RatePerSec})

			if last != nil {
				if cfg.Telegram.Token != last.Telegram.Token {
					a.log.Warn("telegram.token changed; restart required")
				}
				if cfg.Storage.Path != last.Storage.Path || cfg.Storage.BusyTimeout != last.Storage.BusyTimeout {
					a.log.Warn("storage config changed; restart required")
				}
				if cfg.Scheduler.Timezone != last.Scheduler.Timezone ||
					cfg.Scheduler.ReconcileEvery != last.Scheduler.ReconcileEvery ||
					cfg.Scheduler.MisfireGrace != last.Scheduler.MisfireGrace {
					a.log.Warn("scheduler config changed; restart required")
				}
			}
			last = cfg

			a.log.Info("config reloaded")
		}
	}
}

// Stop shuts everything down in reverse order of Start. It honors ctx as an
// upper bound; a stuck component is logged and abandoned rather than
// blocking the process exit.
func (a *App) Stop(ctx context.Context) error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		a.log.Debug("sd-notify stopping failed", logx.Err(err))
	}
	a.log.Info("stopping")

	if a.cancel != nil {
		a.cancel()
	}

	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop", logx.Err(err))
	}
	if err := a.sched.Stop(ctx); err != nil {
		a.log.Warn("scheduler stop", logx.Err(err))
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("background loops did not exit before deadline")
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close", logx.Err(err))
	}

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}
