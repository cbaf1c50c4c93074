package config

import (
	"reflect"
	"sort"
	"strings"

	logx "mindwatch/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and log fields safe to
// emit. Secrets are reported only as *_set booleans.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 24)
	set := func(s string) bool { return strings.TrimSpace(s) != "" }

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.schedule", strings.TrimSpace(newCfg.Scheduler.Schedule)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.timeout", strings.TrimSpace(newCfg.Scheduler.Timeout)),
		)
	}

	od, nd := oldCfg.Dispatch, newCfg.Dispatch
	if !reflect.DeepEqual(od, nd) {
		changed = append(changed, "dispatch")
		adv := -1.0
		if nd.AdvanceHours != nil {
			adv = *nd.AdvanceHours
		}
		attrs = append(attrs,
			logx.Float64("dispatch.advance_hours", adv),
			logx.String("dispatch.base_url", strings.TrimSpace(nd.BaseURL)),
			logx.Bool("dispatch.close_token_set", set(nd.CloseToken)),
			logx.Bool("dispatch.close_token_changed", od.CloseToken != nd.CloseToken),
			logx.Int("dispatch.history_cap", nd.HistoryCap),
		)
	}

	ost, nst := oldCfg.Storage, newCfg.Storage
	if !reflect.DeepEqual(ost, nst) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nst.Driver)),
			logx.Bool("storage.path_set", set(nst.Path)),
			logx.Bool("storage.dsn_set", set(nst.DSN)),
			logx.String("storage.addr", strings.TrimSpace(nst.Addr)),
			logx.String("storage.key_prefix", nst.KeyPrefix),
		)
	}

	oc, nc := oldCfg.Channels, newCfg.Channels
	if !reflect.DeepEqual(oc, nc) {
		changed = append(changed, "channels")
		attrs = append(attrs,
			logx.Bool("channels.email", nc.Email.Enabled),
			logx.String("channels.email.host", strings.TrimSpace(nc.Email.Host)),
			logx.Bool("channels.email.password_set", set(nc.Email.Password)),
			logx.Bool("channels.dingtalk", nc.DingTalk.Enabled),
			logx.Bool("channels.telegram", nc.Telegram.Enabled),
			logx.Bool("channels.telegram.token_set", set(nc.Telegram.Token)),
		)
	}

	if !reflect.DeepEqual(oldCfg.API, newCfg.API) {
		changed = append(changed, "api")
		attrs = append(attrs,
			logx.Bool("api.enabled", newCfg.API.Enabled),
			logx.String("api.addr", strings.TrimSpace(newCfg.API.Addr)),
			logx.Bool("api.token_set", set(newCfg.API.Token)),
			logx.Bool("api.pprof", newCfg.API.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
