package app

import (
	"fmt"
	"strings"
	"time"

	"mindwatch/internal/api"
	"mindwatch/internal/channel"
	"mindwatch/internal/channel/dingtalk"
	"mindwatch/internal/channel/email"
	"mindwatch/internal/channel/telegram"
	"mindwatch/internal/clock"
	"mindwatch/internal/config"
	"mindwatch/internal/dispatch"
	"mindwatch/internal/history"
	"mindwatch/internal/storage"
	"mindwatch/internal/task/scheduler"
	logx "mindwatch/pkg/logx"
)

const (
	// DispatchJob is the schedule name of the dispatch tick.
	DispatchJob = "dispatch"

	defaultSchedule = "@hourly"
	// A tick is never cut short unless scheduler.timeout asks for it.
	defaultTimeout time.Duration = 0
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		Addr:        strings.TrimSpace(sc.Addr),
		Password:    sc.Password,
		DB:          sc.DB,
		BusyTimeout: busy,
		KeyPrefix:   strings.TrimSpace(sc.KeyPrefix),
	}, nil
}

func mapDispatchConfig(cfg *config.Config) dispatch.Config {
	adv := float64(clock.DefaultAdvanceHours)
	if h := cfg.Dispatch.AdvanceHours; h != nil {
		adv = clock.ClampAdvance(*h)
	}
	return dispatch.Config{
		AdvanceHours: adv,
		CloseToken:   cfg.Dispatch.CloseToken,
		BaseURL:      strings.TrimRight(strings.TrimSpace(cfg.Dispatch.BaseURL), "/"),
	}
}

func historyCaps(cfg *config.Config) (sched, manual int) {
	sched, manual = history.SchedulerCap, history.ManualCap
	if cfg.Dispatch.HistoryCap > 0 {
		sched = cfg.Dispatch.HistoryCap
	}
	if cfg.Dispatch.ManualHistoryCap > 0 {
		manual = cfg.Dispatch.ManualHistoryCap
	}
	return sched, manual
}

// schedulerPlan is the scheduler config plus the dispatch schedule itself.
type schedulerPlan struct {
	cfg        scheduler.Config
	schedule   string
	timeout    time.Duration
	runOnStart bool
}

func mapSchedulerConfig(cfg *config.Config) (schedulerPlan, error) {
	sc := cfg.Scheduler
	timeout, err := config.ParseDurationOrDefault("scheduler.timeout", sc.Timeout, defaultTimeout)
	if err != nil {
		return schedulerPlan{}, err
	}
	schedule := strings.TrimSpace(sc.Schedule)
	if schedule == "" {
		schedule = defaultSchedule
	}
	if _, err := scheduler.ParseSchedule(schedule); err != nil {
		return schedulerPlan{}, fmt.Errorf("scheduler.schedule: %w", err)
	}
	if _, err := clock.LoadZone(sc.Timezone); err != nil {
		return schedulerPlan{}, fmt.Errorf("scheduler.timezone: %w", err)
	}
	hist := sc.HistorySize
	if hist == 0 {
		hist = 50
	}
	return schedulerPlan{
		cfg: scheduler.Config{
			Enabled:     sc.Enabled,
			Timezone:    sc.Timezone,
			HistorySize: hist,
		},
		schedule:   schedule,
		timeout:    timeout,
		runOnStart: sc.RunOnStart,
	}, nil
}

func mapAPIConfig(cfg *config.Config) (api.Config, error) {
	ac := cfg.API
	rt, err := config.ParseDurationField("api.read_timeout", ac.ReadTimeout)
	if err != nil {
		return api.Config{}, err
	}
	wt, err := config.ParseDurationField("api.write_timeout", ac.WriteTimeout)
	if err != nil {
		return api.Config{}, err
	}
	return api.Config{
		Enabled:      ac.Enabled,
		Addr:         strings.TrimSpace(ac.Addr),
		Token:        ac.Token,
		CloseToken:   cfg.Dispatch.CloseToken,
		Pprof:        ac.Pprof,
		ReadTimeout:  rt,
		WriteTimeout: wt,
	}, nil
}

// buildSenders constructs one sender per enabled channel.
func buildSenders(cfg *config.Config, log logx.Logger) ([]channel.Sender, error) {
	ch := cfg.Channels
	var out []channel.Sender

	if ch.Email.Enabled {
		timeout, err := config.ParseDurationField("channels.email.timeout", ch.Email.Timeout)
		if err != nil {
			return nil, err
		}
		// implicit TLS unless the port says otherwise (587/25 speak STARTTLS)
		ssl := ch.Email.Port == 0 || ch.Email.Port == 465 || ch.Email.Port == email.DefaultPort
		if ch.Email.SSL != nil {
			ssl = *ch.Email.SSL
		}
		s, err := email.New(email.Config{
			Host:     strings.TrimSpace(ch.Email.Host),
			Port:     ch.Email.Port,
			Username: ch.Email.Username,
			Password: ch.Email.Password,
			From:     strings.TrimSpace(ch.Email.From),
			SSL:      ssl,
			Timeout:  timeout,
		}, log.With(logx.String("comp", "channel.email")))
		if err != nil {
			return nil, fmt.Errorf("channels.email: %w", err)
		}
		out = append(out, s)
	}

	if ch.DingTalk.Enabled {
		timeout, err := config.ParseDurationField("channels.dingtalk.timeout", ch.DingTalk.Timeout)
		if err != nil {
			return nil, err
		}
		out = append(out, dingtalk.New(dingtalk.Config{
			Timeout:   timeout,
			PerMinute: ch.DingTalk.PerMinute,
		}, log.With(logx.String("comp", "channel.dingtalk"))))
	}

	if ch.Telegram.Enabled {
		timeout, err := config.ParseDurationField("channels.telegram.timeout", ch.Telegram.Timeout)
		if err != nil {
			return nil, err
		}
		s, err := telegram.New(telegram.Config{
			Token:   ch.Telegram.Token,
			Timeout: timeout,
			URL:     strings.TrimSpace(ch.Telegram.APIURL),
		}, log.With(logx.String("comp", "channel.telegram")))
		if err != nil {
			return nil, fmt.Errorf("channels.telegram: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}

// validate runs every mapper so a config that would fail at apply time is
// rejected before it is committed.
func validate(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapAPIConfig(cfg); err != nil {
		return err
	}
	return nil
}
