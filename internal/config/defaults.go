package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

var DefaultSymbols = []string{"AAPL", "MSFT", "AMZN", "GOOGL", "TSLA", "META", "NVDA", "INTC"}

const (
	DefaultIntervalHours = 2
	DefaultSchedule      = "2h"
	DefaultSelfPing      = "14m"
	DefaultStoragePath   = "./user_data.json"
	DefaultHealthAddr    = ":8080"
	DefaultWebhookListen = ":8443"
)

// ApplyEnv overlays deployment environment variables onto cfg.
//
//	TELEGRAM_BOT_TOKEN  telegram.token
//	PORT                health.addr (":PORT"), enables the health server
//	SELF_PING_URL       health.self_ping_url
//	WEBHOOK_URL         telegram.webhook_url
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv("TELEGRAM_BOT_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		cfg.Health.Addr = ":" + v
		cfg.Health.Enabled = true
	}
	if v := strings.TrimSpace(getenv("SELF_PING_URL")); v != "" {
		cfg.Health.SelfPingURL = v
	}
	if v := strings.TrimSpace(getenv("WEBHOOK_URL")); v != "" {
		cfg.Telegram.WebhookURL = v
	}
}

// Normalize fills zero values with defaults and uppercases symbols in place.
func Normalize(cfg *Config) {
	if len(cfg.Defaults.Symbols) == 0 {
		cfg.Defaults.Symbols = append([]string(nil), DefaultSymbols...)
	}
	for i, s := range cfg.Defaults.Symbols {
		cfg.Defaults.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	if cfg.Defaults.IntervalHours <= 0 {
		cfg.Defaults.IntervalHours = DefaultIntervalHours
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "file"
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if strings.TrimSpace(cfg.Quotes.Source) == "" {
		cfg.Quotes.Source = "yahoo"
	}
	if strings.TrimSpace(cfg.Dispatch.Schedule) == "" {
		cfg.Dispatch.Schedule = DefaultSchedule
	}
	if strings.TrimSpace(cfg.Health.Addr) == "" {
		cfg.Health.Addr = DefaultHealthAddr
	}
	if strings.TrimSpace(cfg.Health.ProbeSymbol) == "" {
		cfg.Health.ProbeSymbol = "AAPL"
	}
	if strings.TrimSpace(cfg.Health.SelfPingSchedule) == "" {
		cfg.Health.SelfPingSchedule = DefaultSelfPing
	}
	if cfg.Telegram.WebhookEnabled() && strings.TrimSpace(cfg.Telegram.WebhookListen) == "" {
		cfg.Telegram.WebhookListen = DefaultWebhookListen
	}
}

// Validate reports every problem it finds, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token: required (or set TELEGRAM_BOT_TOKEN)"))
	}
	if g := strings.TrimSpace(cfg.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("telegram.group_log: not a chat id: %q", g))
		}
	}
	if w := strings.TrimSpace(cfg.Telegram.WebhookURL); w != "" {
		if u, err := url.Parse(w); err != nil || u.Scheme != "https" || u.Host == "" {
			errs = append(errs, fmt.Errorf("telegram.webhook_url: must be an https url: %q", w))
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file", "json", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown %q", cfg.Storage.Driver))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Quotes.Source)) {
	case "", "yahoo":
	case "static":
		if len(cfg.Quotes.Static) == 0 {
			errs = append(errs, errors.New("quotes.static: required when source is static"))
		}
	default:
		errs = append(errs, fmt.Errorf("quotes.source: unknown %q", cfg.Quotes.Source))
	}
	if cfg.Quotes.RetryAttempts < 0 {
		errs = append(errs, errors.New("quotes.retry_attempts: must be >= 0"))
	}
	if h := cfg.Defaults.IntervalHours; h < 0 || h > 24 {
		errs = append(errs, fmt.Errorf("defaults.interval_hours: %d out of range 1..24", h))
	}

	durations := map[string]string{
		"telegram.poll_timeout":    cfg.Telegram.PollTimeout,
		"storage.busy_timeout":     cfg.Storage.BusyTimeout,
		"quotes.timeout":           cfg.Quotes.Timeout,
		"quotes.retry_base":        cfg.Quotes.RetryBase,
		"dispatch.send_timeout":    cfg.Dispatch.SendTimeout,
		"ratelimit.cooldown":       cfg.RateLimit.Cooldown,
		"ratelimit.ttl":            cfg.RateLimit.TTL,
		"health.self_ping_timeout": cfg.Health.SelfPingTimeout,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DispatchEnabled defaults to true when omitted.
func (c DispatchConfig) DispatchEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// DropPendingUpdates defaults to true when omitted.
func (c TelegramConfig) DropPendingUpdates() bool {
	return c.DropPending == nil || *c.DropPending
}

// WebhookEnabled reports whether updates arrive by webhook instead of polling.
func (c TelegramConfig) WebhookEnabled() bool {
	return strings.TrimSpace(c.WebhookURL) != ""
}

// GroupLogChatID returns the parsed group_log id (0 if unset or invalid).
func (c TelegramConfig) GroupLogChatID() int64 {
	id, _ := strconv.ParseInt(strings.TrimSpace(c.GroupLog), 10, 64)
	return id
}
