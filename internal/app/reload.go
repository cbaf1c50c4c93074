package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"mindwatch/internal/channel"
	"mindwatch/internal/config"
	"mindwatch/internal/mind"
	logx "mindwatch/pkg/logx"
)

// reloadLoop applies published configs until ctx ends.
func (a *App) reloadLoop(c context.Context, sub chan *config.Config) {
	// Track last applied config to generate a safe diff summary for logx.
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
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
			if newCfg == nil {
				continue
			}
			a.applyConfig(c, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(c context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if slices.Contains(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if oldCfg != nil && (oldCfg.Dispatch.HistoryCap != newCfg.Dispatch.HistoryCap ||
		oldCfg.Dispatch.ManualHistoryCap != newCfg.Dispatch.ManualHistoryCap) {
		a.log.Warn("history caps changed; restart required for changes to take effect")
	}

	// logging first so the rest of the apply logs at the new level
	a.logs.Apply(mapLogConfig(newCfg))

	a.engine.SetConfig(mapDispatchConfig(newCfg))

	if slices.Contains(sections, "channels") {
		a.applySenders(newCfg)
	}
	if slices.Contains(sections, "scheduler") {
		a.applyScheduler(c, newCfg)
	}

	apiCfg, err := mapAPIConfig(newCfg)
	if err != nil {
		a.log.Warn("invalid api config; keeping previous", logx.Err(err))
	} else if err := a.api.Apply(c, apiCfg); err != nil {
		a.log.Error("api restart failed", logx.Err(err))
	}

	a.log.Info("config reloaded", fields...)
}

// applySenders swaps the registry contents for the channels enabled in cfg.
// A construction failure keeps every previous sender.
func (a *App) applySenders(cfg *config.Config) {
	built, err := buildSenders(cfg, a.log)
	if err != nil {
		a.log.Warn("invalid channel config; keeping previous", logx.Err(err))
		return
	}
	keep := make(map[mind.Kind]channel.Sender, len(built))
	for _, s := range built {
		keep[s.Kind()] = s
	}
	for _, k := range a.senders.Kinds() {
		if _, ok := keep[k]; !ok {
			a.senders.Remove(k)
			a.log.Info("channel disabled via config", logx.String("kind", string(k)))
		}
	}
	for _, s := range built {
		a.senders.Set(s)
	}
}

func (a *App) applyScheduler(c context.Context, cfg *config.Config) {
	plan, err := mapSchedulerConfig(cfg)
	if err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
		return
	}
	prev := a.sched.Enabled()
	a.sched.Apply(plan.cfg)
	if err := a.sched.AddSchedule(DispatchJob, plan.schedule, plan.timeout, a.dispatchJob); err != nil {
		a.log.Warn("invalid dispatch schedule; keeping previous", logx.Err(err))
	}

	switch {
	case prev && !plan.cfg.Enabled:
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	case !prev && plan.cfg.Enabled:
		a.log.Info("scheduler enabled via config")
		a.sched.Start(c)
	}
}
