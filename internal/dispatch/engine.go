// Package dispatch selects due reminders and fans them out to their
// notification channels, one scheduler tick at a time.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"mindwatch/internal/channel"
	"mindwatch/internal/clock"
	"mindwatch/internal/eventbus"
	"mindwatch/internal/history"
	"mindwatch/internal/mind"
	logx "mindwatch/pkg/logx"
)

// Config is the ambient configuration threaded into every tick.
type Config struct {
	AdvanceHours float64
	CloseToken   string
	BaseURL      string
}

// Repository is the typed store the engine reads and writes.
type Repository interface {
	LoadMinds(ctx context.Context) (*mind.Set, bool, error)
	SaveMinds(ctx context.Context, set *mind.Set) error
	LoadTriggers(ctx context.Context) (mind.Triggers, bool, error)
}

// Report summarizes one tick.
type Report struct {
	Due      int
	Expired  int
	Invalid  int
	Sent     int
	Failed   int
	Skipped  int
	Panicked int
	Elapsed  time.Duration
}

type Engine struct {
	repo     Repository
	senders  *channel.Registry
	recorder *history.Recorder
	clock    clock.Clock
	bus      eventbus.Bus
	log      logx.Logger

	mu  sync.RWMutex
	cfg Config
}

type Options struct {
	Repo     Repository
	Senders  *channel.Registry
	Recorder *history.Recorder
	Clock    clock.Clock
	Bus      eventbus.Bus
	Log      logx.Logger
}

func New(cfg Config, opts Options) *Engine {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.Nop()
	}
	if opts.Senders == nil {
		opts.Senders = channel.NewRegistry()
	}
	return &Engine{
		repo:     opts.Repo,
		senders:  opts.Senders,
		recorder: opts.Recorder,
		clock:    opts.Clock,
		bus:      opts.Bus,
		log:      opts.Log,
		cfg:      cfg,
	}
}

// SetConfig swaps the configuration used by subsequent ticks.
func (e *Engine) SetConfig(cfg Config) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
}

func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Tick runs one scheduling pass. A store failure before dispatch starts
// trips the fallback, which records a fail for every enabled reminder and
// key, and is returned wrapped.
func (e *Engine) Tick(ctx context.Context) (Report, error) {
	start := time.Now()
	cfg := e.Config()

	rep, err := e.tick(ctx, cfg)
	rep.Elapsed = time.Since(start)
	if err != nil {
		e.log.Error("tick failed, recording fallback", logx.Err(err))
		e.fallback(ctx)
		e.bus.Publish(eventbus.Event{Type: eventbus.TickFallback, Data: tickEvent(rep, err)})
		return rep, fmt.Errorf("tick: %w", err)
	}

	e.log.Info("tick done",
		logx.Int("due", rep.Due),
		logx.Int("expired", rep.Expired),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Duration("elapsed", rep.Elapsed),
	)
	e.bus.Publish(eventbus.Event{Type: eventbus.TickDone, Data: tickEvent(rep, nil)})
	return rep, nil
}

func (e *Engine) tick(ctx context.Context, cfg Config) (Report, error) {
	var rep Report

	set, ok, err := e.repo.LoadMinds(ctx)
	if err != nil {
		return rep, fmt.Errorf("load minds: %w", err)
	}
	if !ok {
		e.log.Debug("no mind document, nothing to do")
		return rep, nil
	}
	for id, merr := range set.Malformed() {
		e.log.Warn("skipping malformed mind", logx.String("mind", id), logx.Err(merr))
	}

	w := e.clock.Window(cfg.AdvanceHours)
	sel := SelectDue(set, w, e.clock.Location())
	rep.Due = len(sel.Due)
	rep.Expired = len(sel.Expired)
	rep.Invalid = len(sel.Invalid)
	for id, perr := range sel.Invalid {
		e.log.Warn("skipping mind with invalid time", logx.String("mind", id), logx.Err(perr))
	}

	if sel.Dirty {
		if err := e.repo.SaveMinds(ctx, set); err != nil {
			return rep, fmt.Errorf("save minds: %w", err)
		}
		for _, id := range sel.Expired {
			e.log.Info("mind expired, disabled", logx.String("mind", id))
			e.bus.Publish(eventbus.Event{Type: eventbus.MindExpired, Data: id})
		}
	}

	if len(sel.Due) == 0 {
		return rep, nil
	}

	triggers, _, err := e.repo.LoadTriggers(ctx)
	if err != nil {
		return rep, fmt.Errorf("load triggers: %w", err)
	}

	for _, m := range sel.Due {
		e.dispatchOne(ctx, cfg, m, triggers, &rep)
	}
	return rep, nil
}

// dispatchOne fires every trigger key of m in order. A panic abandons the
// remaining keys of m only.
func (e *Engine) dispatchOne(ctx context.Context, cfg Config, m *mind.Mind, triggers mind.Triggers, rep *Report) {
	defer func() {
		if r := recover(); r != nil {
			rep.Panicked++
			e.log.Error("panic while dispatching mind",
				logx.String("mind", m.ID),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()

	for _, key := range m.Trigger {
		tc, ok := triggers.Lookup(key)
		if !ok {
			e.fail(ctx, m, key, "", errors.New("missing trigger config"), 0, rep)
			continue
		}
		if !tc.Kind.Known() {
			rep.Skipped++
			e.log.Warn("unknown trigger kind, skipping",
				logx.String("mind", m.ID),
				logx.String("key", key),
				logx.String("kind", string(tc.Kind)),
			)
			continue
		}
		sender, ok := e.senders.Lookup(tc.Kind)
		if !ok {
			e.fail(ctx, m, key, string(tc.Kind), channel.ErrNoSender, 0, rep)
			continue
		}

		start := time.Now()
		err := sender.Send(ctx, channel.Message{
			MindID:      m.ID,
			Title:       m.Title,
			Description: m.Description,
			Time:        m.Time,
			Target:      tc.Target,
			CancelURL:   channel.CancelLink(cfg.BaseURL, m.ID, cfg.CloseToken),
		})
		elapsed := time.Since(start)
		if err != nil {
			e.fail(ctx, m, key, string(tc.Kind), err, elapsed, rep)
			continue
		}
		rep.Sent++
		e.record(ctx, m, key, mind.StatusSuccess)
		e.log.Info("reminder sent",
			logx.String("mind", m.ID),
			logx.String("key", key),
			logx.String("kind", string(tc.Kind)),
		)
		e.bus.Publish(eventbus.Event{Type: eventbus.DispatchSent, Data: eventbus.Dispatch{
			MindID: m.ID, Key: key, Kind: string(tc.Kind), Elapsed: elapsed,
		}})
	}
}

func (e *Engine) fail(ctx context.Context, m *mind.Mind, key, kind string, cause error, elapsed time.Duration, rep *Report) {
	rep.Failed++
	e.record(ctx, m, key, mind.StatusFail)
	e.log.Warn("reminder dispatch failed",
		logx.String("mind", m.ID),
		logx.String("key", key),
		logx.String("kind", kind),
		logx.Err(cause),
	)
	e.bus.Publish(eventbus.Event{Type: eventbus.DispatchFailed, Data: eventbus.Dispatch{
		MindID: m.ID, Key: key, Kind: kind, Reason: cause.Error(), Elapsed: elapsed,
	}})
}

func (e *Engine) record(ctx context.Context, m *mind.Mind, key string, status mind.Status) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Outcome(ctx, m, key, status); err != nil {
		e.log.Error("history write failed",
			logx.String("mind", m.ID),
			logx.String("key", key),
			logx.Err(err),
		)
	}
}

// fallback marks every enabled reminder's every key as failed. Its own
// errors are logged only.
func (e *Engine) fallback(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic in tick fallback", logx.Any("panic", r))
		}
	}()
	set, _, err := e.repo.LoadMinds(ctx)
	if err != nil {
		e.log.Error("fallback: reload minds failed", logx.Err(err))
		return
	}
	for _, m := range set.All() {
		if !m.Enabled {
			continue
		}
		for _, key := range m.Trigger {
			e.record(ctx, m, key, mind.StatusFail)
		}
	}
}

func tickEvent(rep Report, err error) eventbus.Tick {
	t := eventbus.Tick{
		Due:      rep.Due,
		Expired:  rep.Expired,
		Invalid:  rep.Invalid,
		Sent:     rep.Sent,
		Failed:   rep.Failed,
		Skipped:  rep.Skipped,
		Panicked: rep.Panicked,
		Elapsed:  rep.Elapsed,
	}
	if err != nil {
		t.Err = err.Error()
	}
	return t
}
