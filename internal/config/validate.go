package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"

	logx "mindwatch/pkg/logx"
)

var storageDrivers = map[string]bool{
	"":         true, // memory
	"memory":   true,
	"file":     true,
	"sqlite":   true,
	"redis":    true,
	"postgres": true,
}

// Validate checks cross-field rules the JSON decoder cannot express.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if lv := strings.TrimSpace(c.Logging.Level); lv != "" && !logx.ValidLevel(lv) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lv))
	}
	if _, err := ParseDurationField("scheduler.timeout", c.Scheduler.Timeout); err != nil {
		errs = append(errs, err)
	}
	if c.Scheduler.HistorySize < 0 {
		errs = append(errs, errors.New("scheduler.history_size must be >= 0"))
	}

	if h := c.Dispatch.AdvanceHours; h != nil && (math.IsNaN(*h) || *h < 0) {
		errs = append(errs, errors.New("dispatch.advance_hours must be >= 0"))
	}
	if c.Dispatch.HistoryCap < 0 || c.Dispatch.ManualHistoryCap < 0 {
		errs = append(errs, errors.New("dispatch history caps must be >= 0"))
	}
	if b := strings.TrimSpace(c.Dispatch.BaseURL); b != "" {
		if u, err := url.Parse(b); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("dispatch.base_url: %q is not an absolute URL", b))
		}
	}

	drv := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if !storageDrivers[drv] {
		errs = append(errs, fmt.Errorf("storage.driver: unsupported %q", c.Storage.Driver))
	}
	switch drv {
	case "file", "sqlite":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path required for %s", drv))
		}
	case "redis":
		if strings.TrimSpace(c.Storage.Addr) == "" {
			errs = append(errs, errors.New("storage.addr required for redis"))
		}
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn required for postgres"))
		}
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}

	if e := c.Channels.Email; e.Enabled {
		if strings.TrimSpace(e.Host) == "" {
			errs = append(errs, errors.New("channels.email.host required"))
		}
		if e.Port < 0 || e.Port > 65535 {
			errs = append(errs, fmt.Errorf("channels.email.port out of range: %d", e.Port))
		}
		if _, err := ParseDurationField("channels.email.timeout", e.Timeout); err != nil {
			errs = append(errs, err)
		}
	}
	if d := c.Channels.DingTalk; d.Enabled {
		if _, err := ParseDurationField("channels.dingtalk.timeout", d.Timeout); err != nil {
			errs = append(errs, err)
		}
		if d.PerMinute < 0 {
			errs = append(errs, errors.New("channels.dingtalk.per_minute must be >= 0"))
		}
	}
	if t := c.Channels.Telegram; t.Enabled {
		if strings.TrimSpace(t.Token) == "" {
			errs = append(errs, errors.New("channels.telegram.token required (or MINDWATCH_TELEGRAM_TOKEN)"))
		}
		if _, err := ParseDurationField("channels.telegram.timeout", t.Timeout); err != nil {
			errs = append(errs, err)
		}
	}

	if c.API.Enabled {
		if strings.TrimSpace(c.API.Token) == "" {
			errs = append(errs, errors.New("api.token required when api is enabled (or MINDWATCH_API_TOKEN)"))
		}
		for _, f := range []struct{ path, raw string }{
			{"api.read_timeout", c.API.ReadTimeout},
			{"api.write_timeout", c.API.WriteTimeout},
		} {
			if _, err := ParseDurationField(f.path, f.raw); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
