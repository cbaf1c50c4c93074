package config

// Config is the on-disk service configuration. Durations are Go duration
// strings ("10s", "1m") parsed at the app boundary.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Storage   StorageConfig   `json:"storage"`
	Channels  ChannelsConfig  `json:"channels"`
	API       APIConfig       `json:"api"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls when dispatch ticks fire.
//
// Schedule accepts cron ("0 * * * *", "@hourly"), a Go duration ("30m") or an
// HH:MM interval ("01:00"). Empty means "@hourly".
type SchedulerConfig struct {
	Enabled     bool   `json:"enabled"`
	Schedule    string `json:"schedule,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Timeout     string `json:"timeout,omitempty"`
	RunOnStart  bool   `json:"run_on_start,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

// DispatchConfig is threaded into every tick.
//
// AdvanceHours is a pointer so an omitted value (default 3) differs from an
// explicit 0 ("overdue only").
type DispatchConfig struct {
	AdvanceHours     *float64 `json:"advance_hours,omitempty"`
	CloseToken       string   `json:"close_token,omitempty"` // do not log
	BaseURL          string   `json:"base_url,omitempty"`
	HistoryCap       int      `json:"history_cap,omitempty"`
	ManualHistoryCap int      `json:"manual_history_cap,omitempty"`
}

// StorageConfig selects the document store driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./mindwatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`     // file, sqlite
	DSN         string `json:"dsn,omitempty"`      // postgres (do not log)
	Addr        string `json:"addr,omitempty"`     // redis
	Password    string `json:"password,omitempty"` // redis (do not log)
	DB          int    `json:"db,omitempty"`       // redis
	BusyTimeout string `json:"busy_timeout,omitempty"`
	KeyPrefix   string `json:"key_prefix,omitempty"`
}

type ChannelsConfig struct {
	Email    EmailConfig    `json:"email"`
	DingTalk DingTalkConfig `json:"dingtalk"`
	Telegram TelegramConfig `json:"telegram"`
}

type EmailConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // do not log
	From     string `json:"from,omitempty"`
	SSL      *bool  `json:"ssl,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type DingTalkConfig struct {
	Enabled   bool   `json:"enabled"`
	Timeout   string `json:"timeout,omitempty"`
	PerMinute int    `json:"per_minute,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"` // do not log
	Timeout string `json:"timeout,omitempty"`
	APIURL  string `json:"api_url,omitempty"`
}

// APIConfig controls the management HTTP API.
//
// Prefer binding to localhost and fronting it with a proxy. Token guards every
// route except /healthz and the cancellation link.
type APIConfig struct {
	Enabled      bool   `json:"enabled"`
	Addr         string `json:"addr,omitempty"`  // default: "127.0.0.1:8080"
	Token        string `json:"token,omitempty"` // do not log
	Pprof        bool   `json:"pprof,omitempty"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}
