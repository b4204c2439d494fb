package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"stockbot/internal/commands"
	"stockbot/internal/config"
	"stockbot/internal/dispatch"
	"stockbot/internal/eventbus"
	"stockbot/internal/health"
	"stockbot/internal/notifier"
	"stockbot/internal/quote"
	"stockbot/internal/ratelimit"
	"stockbot/internal/runtime/supervisor"
	"stockbot/internal/scheduler"
	"stockbot/internal/storage"
	"stockbot/internal/subscription"
	kit "stockbot/internal/transport"
	telegram "stockbot/internal/transport/telegram/adapter"
	"stockbot/internal/transport/telegram/router"
	logx "stockbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	bus     eventbus.Bus
	latest  *eventbus.Latest
	backend storage.Store
	store   *subscription.Store

	provider *quote.Provider
	adapter  kit.Adapter
	notif    *notifier.Service
	disp     *dispatch.Dispatcher
	sched    *scheduler.Service
	cmds     *commands.Set
	cmdm     *router.CommandManager
	health   *health.Server
	pinger   *health.Pinger

	updates chan kit.Update
}

// NewApp loads cfgPath and wires every component. Nothing runs until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	tcfg := mapTelegramConfig(cfg)
	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"), logx.String("mode", tcfg.Mode()))
	ad, err := telegram.New(tcfg, bootLog)
	if err != nil {
		return nil, err
	}
	return build(cfgm, cfg, ad, &http.Client{Timeout: 30 * time.Second})
}

// build wires components around an existing adapter.
func build(cfgm *config.ConfigManager, cfg *config.Config, ad kit.Adapter, httpClient *http.Client) (*App, error) {
	logSvc, root := logx.New(mapLogConfig(cfg), ad)
	log := root.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	backend, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	openCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store := subscription.Open(openCtx, backend, mapDefaults(cfg), root.With(logx.String("comp", "subscriptions")))
	cancel()

	src, err := mapQuoteSource(cfg, httpClient)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	qlog := root.With(logx.String("comp", "quotes"))
	provider := quote.NewProvider(src, mapProviderOptions(cfg, qlog)...)
	validator := quote.NewValidator(provider, qlog)

	bus := eventbus.New()
	notif := notifier.New(mapNotifierConfig(cfg), ad, root.With(logx.String("comp", "notifier")), bus)
	disp := dispatch.New(store, provider, notif, bus, root.With(logx.String("comp", "dispatch")))
	disp.SetWorkers(cfg.Dispatch.Workers)

	cmds := commands.New(commands.Deps{
		Store:     store,
		Quotes:    provider,
		Validator: validator,
		Audit:     backend,
		Log:       root.With(logx.String("comp", "commands")),
	}, mapCommandOptions(cfg))
	cmdm := router.NewCommandManager(root.With(logx.String("comp", "router")), ad, cfg.Telegram.OwnerUserIDs, router.Options{
		Limiter: ratelimit.New(mapRateLimitConfig(cfg)),
	})

	hlog := root.With(logx.String("comp", "health"))
	latest := eventbus.NewLatest()
	checker := health.NewChecker(backend, provider, latest, cfg.Health.ProbeSymbol, hlog)
	pinger := health.NewPinger(httpClient, hlog)
	pinger.Apply(cfg.Health.SelfPingURL, config.DurationOr(cfg.Health.SelfPingTimeout, health.DefaultPingTimeout))

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		latest:   latest,
		backend:  backend,
		store:    store,
		provider: provider,
		adapter:  ad,
		notif:    notif,
		disp:     disp,
		sched:    scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, root.With(logx.String("comp", "scheduler"))),
		cmds:     cmds,
		cmdm:     cmdm,
		health:   health.NewServer(checker, hlog),
		pinger:   pinger,
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error { return validate(c) })

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.cmdm.SetRegistry(a.cmds.Commands())

	a.sup.Go0("eventbus.latest", func(c context.Context) { a.latest.Run(c, a.bus) })
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	a.sched.Start(a.sup.Context())
	a.applySchedules(cfg)

	if err := a.health.Apply(a.sup.Context(), mapHealthConfig(cfg)); err != nil {
		a.log.Warn("health endpoint not started", logx.Err(err))
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.Int("users", len(a.store.ListUsers())),
		logx.Bool("store_degraded", a.store.Degraded()),
		logx.String("quotes", a.provider.SourceName()),
	)
	return nil
}

// applySchedules registers or removes the dispatch and self-ping jobs.
func (a *App) applySchedules(cfg *config.Config) {
	if cfg.Dispatch.DispatchEnabled() {
		err := a.sched.Upsert(jobDispatch, cfg.Dispatch.Schedule, dispatchJobTimeout, func(ctx context.Context) error {
			a.disp.RunCycle(ctx)
			return nil
		})
		if err != nil {
			a.log.Error("dispatch schedule rejected", logx.String("schedule", cfg.Dispatch.Schedule), logx.Err(err))
		}
	} else if a.sched.Remove(jobDispatch) {
		a.log.Info("scheduled dispatch disabled")
	}

	if a.pinger.Enabled() {
		err := a.sched.Upsert(jobSelfPing, cfg.Health.SelfPingSchedule, 0, a.pinger.Ping)
		if err != nil {
			a.log.Error("self-ping schedule rejected", logx.String("schedule", cfg.Health.SelfPingSchedule), logx.Err(err))
		}
	} else {
		a.sched.Remove(jobSelfPing)
	}
}

// RunDispatchNow triggers one dispatch cycle outside the schedule.
func (a *App) RunDispatchNow() bool { return a.sched.RunNow(jobDispatch) }

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.apply(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// apply pushes the hot-reloadable sections of newCfg into running components.
func (a *App) apply(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RequiresRestart(sections); len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.Strs("sections", restart))
	}

	a.logs.Apply(mapLogConfig(newCfg))
	a.cmdm.SetOwners(newCfg.Telegram.OwnerUserIDs)
	a.cmds.Apply(mapCommandOptions(newCfg))
	a.cmdm.SetRegistry(a.cmds.Commands())
	a.notif.Apply(mapNotifierConfig(newCfg))
	a.disp.SetWorkers(newCfg.Dispatch.Workers)
	a.pinger.Apply(newCfg.Health.SelfPingURL, config.DurationOr(newCfg.Health.SelfPingTimeout, health.DefaultPingTimeout))
	a.applySchedules(newCfg)
	if err := a.health.Apply(ctx, mapHealthConfig(newCfg)); err != nil {
		a.log.Warn("health endpoint apply failed", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
			max = time.Until(dl)
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 3*time.Second, a.sched.Stop)
	step("health", 1*time.Second, func(c context.Context) error { a.health.Stop(c); return nil })
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("storage", 1*time.Second, func(context.Context) error { return a.backend.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
