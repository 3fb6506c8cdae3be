// Package app wires the bot together and owns its lifecycle.
package app

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/tulikaff659/football-bot/internal/bot"
	"github.com/tulikaff659/football-bot/internal/config"
	"github.com/tulikaff659/football-bot/internal/eventbus"
	"github.com/tulikaff659/football-bot/internal/health"
	"github.com/tulikaff659/football-bot/internal/matchdata"
	"github.com/tulikaff659/football-bot/internal/notifier"
	"github.com/tulikaff659/football-bot/internal/runtime/supervisor"
	"github.com/tulikaff659/football-bot/internal/scheduler"
	"github.com/tulikaff659/football-bot/internal/storage"
	kit "github.com/tulikaff659/football-bot/internal/transport"
	telegram "github.com/tulikaff659/football-bot/internal/transport/telegram/adapter"
	logx "github.com/tulikaff659/football-bot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	cfg  *config.Config

	sup   *supervisor.Supervisor
	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	tally *eventbus.Tally
	unsub func()

	store   storage.Store
	adapter *telegram.Adapter
	gw      *matchdata.Gateway
	disp    *notifier.Dispatcher
	sched   *scheduler.Service
	cmds    *bot.Handler
	health  *health.Server

	updates   chan kit.Message
	startedAt time.Time
}

// NewApp loads the config at cfgPath and builds every component without
// starting any of them.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath, logx.NewConsole("info"))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	rt, err := cfg.Runtime()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(rt.Logging, nil)
	cfgm.SetLogger(log)

	a := &App{
		cfgm:    cfgm,
		cfg:     cfg,
		log:     log.With(logx.String("comp", "app")),
		logs:    logs,
		bus:     eventbus.New(),
		tally:   &eventbus.Tally{},
		updates: make(chan kit.Message, 256),
	}

	a.store, err = storage.Open(rt.Storage, log)
	if err != nil {
		_ = logs.Close()
		return nil, errors.Wrap(err, "open storage")
	}

	a.adapter, err = telegram.New(rt.Telegram, log)
	if err != nil {
		_ = a.store.Close()
		_ = logs.Close()
		return nil, errors.Wrap(err, "telegram adapter")
	}
	logs.SetSender(a.adapter)

	a.gw = matchdata.New(rt.MatchData, log)
	a.disp = notifier.New(rt.Notifier, a.adapter, log, a.bus)
	a.sched, err = scheduler.New(rt.Scheduler, a.store, a.gw, a.disp, log, a.bus)
	if err != nil {
		_ = a.store.Close()
		_ = logs.Close()
		return nil, err
	}
	a.cmds = bot.New(a.store, a.gw, a.adapter, log)
	a.health = health.New(rt.Health, log, a.store, a.Status)
	return a, nil
}

// Done is closed when the app context ends, including after a fatal
// component error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		return nil
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs the adapter, sweep scheduler, command loop, health endpoint and
// config watcher under one supervisor.
func (a *App) Start(ctx context.Context) error {
	a.startedAt = time.Now()
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	sctx := a.sup.Context()

	events, unsub := a.bus.Subscribe(256)
	a.unsub = unsub
	a.sup.Go0("eventbus.tally", func(c context.Context) { a.tally.Run(c, events) })

	if err := a.adapter.Start(sctx, a.updates); err != nil {
		return errors.Wrap(err, "start telegram adapter")
	}
	a.sup.Go0("telegram.menu", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 15*time.Second)
		defer cancel()
		if err := a.adapter.UpdateMenuCommands(mctx, a.cmds.Commands()); err != nil {
			a.log.Warn("menu commands update failed", logx.Err(err))
		}
	})

	if err := a.sched.Start(sctx); err != nil {
		return errors.Wrap(err, "start scheduler")
	}
	a.sup.Go("bot.commands", func(c context.Context) error { return a.cmds.Run(c, a.updates) })

	if err := a.health.Start(sctx); err != nil {
		return errors.Wrap(err, "start health endpoint")
	}

	reloads := a.cfgm.Subscribe(1)
	a.sup.Go0("config.watch", func(c context.Context) { _ = a.cfgm.Watch(c) })
	a.sup.Go0("config.apply", func(c context.Context) {
		defer a.cfgm.Unsubscribe(reloads)
		for {
			select {
			case <-c.Done():
				return
			case cfg := <-reloads:
				a.applyConfig(cfg)
			}
		}
	})

	a.log.Info("started",
		logx.String("storage", a.cfg.Storage.Driver),
		logx.String("interval", a.cfg.Scheduler.Interval),
		logx.Bool("health", a.cfg.Health.Enabled),
	)
	return nil
}

// applyConfig applies the live-reloadable sections and reports the rest.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	rt, err := cfg.Runtime()
	if err != nil {
		a.log.Warn("reloaded config not applied", logx.Err(err))
		return
	}
	prev := a.cfg
	a.cfg = cfg

	a.logs.Apply(rt.Logging)
	a.disp.Apply(rt.Notifier)
	if pending := config.RestartRequired(prev, cfg); len(pending) > 0 {
		a.log.Warn("config changes take effect after restart", logx.Strings("sections", pending))
	}
	sections, _ := config.SummarizeChange(prev, cfg)
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Time: time.Now(), Data: sections})
}

// Stop shuts components down in reverse start order. Each step is bounded
// and never extends the caller's deadline.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	a.step(ctx, "health", time.Second, a.health.Stop)
	a.step(ctx, "scheduler", 3*time.Second, a.sched.Stop)
	a.step(ctx, "matchdata", time.Second, func(context.Context) error { return a.gw.Close() })
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error {
		if a.unsub != nil {
			a.unsub()
		}
		return a.sup.Wait(c)
	})

	a.log.Info("stopped")
	return a.logs.Close()
}
