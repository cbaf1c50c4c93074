package app

import (
	"context"
	"fmt"
	"time"

	"mindwatch/internal/api"
	"mindwatch/internal/channel"
	"mindwatch/internal/clock"
	"mindwatch/internal/config"
	"mindwatch/internal/dispatch"
	"mindwatch/internal/eventbus"
	"mindwatch/internal/history"
	"mindwatch/internal/metrics"
	"mindwatch/internal/mind"
	"mindwatch/internal/repo"
	"mindwatch/internal/runtime/supervisor"
	"mindwatch/internal/storage"
	"mindwatch/internal/task/scheduler"
	logx "mindwatch/pkg/logx"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	repo    *repo.Repository
	senders *channel.Registry
	engine  *dispatch.Engine
	sched   *scheduler.Service
	api     *api.Server
	metrics *metrics.Collector
	reg     *prometheus.Registry

	runOnStart bool
}

// New loads and validates the config at cfgPath and wires every component.
// Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	driver := sc.Driver
	if driver == "" {
		driver = "memory"
		log.Warn("storage.driver not set, using in-memory store; data is lost on exit")
	}
	log.Info("storage ready", logx.String("driver", driver))

	loc, err := clock.LoadZone(clock.DefaultZone)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	clk := clock.New(loc, nil)
	rp := repo.New(store)
	schedCap, manualCap := historyCaps(cfg)

	built, err := buildSenders(cfg, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	senders := channel.NewRegistry(built...)

	engine := dispatch.New(mapDispatchConfig(cfg), dispatch.Options{
		Repo:     rp,
		Senders:  senders,
		Recorder: history.NewRecorder(rp, schedCap, clk.Now),
		Clock:    clk,
		Bus:      bus,
		Log:      log.With(logx.String("comp", "dispatch")),
	})

	plan, err := mapSchedulerConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sched := scheduler.New(plan.cfg, log.With(logx.String("comp", "scheduler")), bus)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	apiCfg, err := mapAPIConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &App{
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		store:      store,
		repo:       rp,
		senders:    senders,
		engine:     engine,
		sched:      sched,
		metrics:    metrics.New(reg),
		reg:        reg,
		runOnStart: plan.runOnStart,
	}
	if err := sched.AddSchedule(DispatchJob, plan.schedule, plan.timeout, a.dispatchJob); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("scheduler.schedule: %w", err)
	}
	a.api = api.New(apiCfg, api.Options{
		Store:    rp,
		Recorder: history.NewRecorder(rp, manualCap, clk.Now),
		Runner:   sched,
		Job:      DispatchJob,
		Clock:    clk,
		Gatherer: reg,
		Workers:  a.workers,
		Log:      log,
	})
	return a, nil
}

func (a *App) dispatchJob(ctx context.Context) error {
	_, err := a.engine.Tick(ctx)
	return err
}

// Tick runs one dispatch pass outside the scheduler.
func (a *App) Tick(ctx context.Context) (dispatch.Report, error) {
	return a.engine.Tick(ctx)
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

// workers lists the supervised goroutines; empty before Start.
func (a *App) workers() []supervisor.Stats {
	if a.sup == nil {
		return nil
	}
	return a.sup.Snapshot()
}

// APIAddr reports the management API listen address, empty when disabled.
func (a *App) APIAddr() string { return a.api.Addr() }

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := validate(cfg); err != nil {
			return err
		}
		_, err := buildSenders(cfg, logx.Nop())
		return err
	})

	// event consumers restart after a panic instead of taking the app down
	a.sup.GoRestart("metrics", func(c context.Context) error {
		return a.metrics.Consume(c, a.bus)
	}, supervisor.WithRestartBackoff(time.Second, time.Minute))
	a.sup.GoRestart("eventbus.log", a.logEvents, supervisor.WithRestartBackoff(time.Second, time.Minute))

	a.sched.Start(a.sup.Context())

	apiCfg, err := mapAPIConfig(a.cfgm.Get())
	if err != nil {
		return err
	}
	if err := a.api.Apply(a.sup.Context(), apiCfg); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if a.runOnStart && a.sched.Enabled() {
		a.sup.Go("dispatch.startup", func(c context.Context) error {
			if err := a.sched.RunNow(c, DispatchJob); err != nil {
				a.log.Warn("startup tick failed", logx.Err(err))
			}
			return nil
		})
	}

	a.startWatchdog()
	notifyReady(a.log)
	a.log.Info("app started",
		logx.Strings("channels", kindNames(a.senders.Kinds())),
		logx.String("api", a.api.Addr()),
	)
	return nil
}

func (a *App) logEvents(c context.Context) error {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-c.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			// Debug only: ticks fire hourly but each produces several events.
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.closeStore()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	notifyStopping(a.log)

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	a.step(ctx, "api", 3*time.Second, func(c context.Context) error { a.api.Stop(c); return nil })
	// The scheduler waits for an in-flight tick so its writes complete before the store closes.
	a.step(ctx, "scheduler", 10*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", 2*time.Second, func(context.Context) error { return a.closeStore() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// Close releases resources of an app that was never started.
func (a *App) Close() error {
	err := a.closeStore()
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	st := a.store
	a.store = nil
	return st.Close()
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	// respect the caller's deadline; never extend it
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped, deadline passed", logx.String("name", name))
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
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		// Contract: fn MUST honor stepCtx and return promptly. If it doesn't, log a leak signal.
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline",
				logx.String("name", name),
				logx.Err(err),
				logx.Duration("took", time.Since(start)),
			)
		}()
	}
}

func kindNames(kinds []mind.Kind) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, string(k))
	}
	return out
}
