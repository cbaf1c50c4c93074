package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "MINDWATCH"

// envOverlay holds secrets and deployment knobs that may come from the
// environment instead of the config file. Empty values leave the file alone.
type envOverlay struct {
	CloseToken    string `envconfig:"CLOSE_TOKEN"`
	APIToken      string `envconfig:"API_TOKEN"`
	AdvanceH      string `envconfig:"ADVANCE_H"`
	BaseURL       string `envconfig:"BASE_URL"`
	SMTPPassword  string `envconfig:"SMTP_PASSWORD"`
	TelegramToken string `envconfig:"TELEGRAM_TOKEN"`
	StorageDSN    string `envconfig:"STORAGE_DSN"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
}

// ApplyEnv overlays MINDWATCH_* variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	var ov envOverlay
	if err := envconfig.Process(EnvPrefix, &ov); err != nil {
		return fmt.Errorf("env: %w", err)
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Dispatch.CloseToken, ov.CloseToken)
	set(&cfg.API.Token, ov.APIToken)
	set(&cfg.Dispatch.BaseURL, ov.BaseURL)
	set(&cfg.Channels.Email.Password, ov.SMTPPassword)
	set(&cfg.Channels.Telegram.Token, ov.TelegramToken)
	set(&cfg.Storage.DSN, ov.StorageDSN)
	set(&cfg.Storage.Password, ov.RedisPassword)

	if s := strings.TrimSpace(ov.AdvanceH); s != "" {
		h, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("env %s_ADVANCE_H: invalid number %q", EnvPrefix, s)
		}
		cfg.Dispatch.AdvanceHours = &h
	}
	return nil
}

// LoadDotEnv loads the given .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}
