package app

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"stockbot/internal/commands"
	"stockbot/internal/config"
	"stockbot/internal/health"
	"stockbot/internal/notifier"
	"stockbot/internal/quote"
	"stockbot/internal/ratelimit"
	"stockbot/internal/scheduler"
	"stockbot/internal/storage"
	"stockbot/internal/subscription"
	telegram "stockbot/internal/transport/telegram/adapter"
	logx "stockbot/pkg/logx"
)

const (
	jobDispatch = "dispatch"
	jobSelfPing = "selfping"

	dispatchJobTimeout = 30 * time.Minute
)

func mapTelegramConfig(cfg *config.Config) telegram.Config {
	t := cfg.Telegram
	return telegram.Config{
		Token:         t.Token,
		PollTimeout:   config.DurationOr(t.PollTimeout, 10*time.Second),
		DropPending:   t.DropPendingUpdates(),
		WebhookURL:    strings.TrimSpace(t.WebhookURL),
		WebhookListen: t.WebhookListen,
		WebhookSecret: t.WebhookSecret,
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled:    l.File.Enabled,
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
			MaxAgeDays: l.File.MaxAgeDays,
			Compress:   l.File.Compress,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled && cfg.Telegram.GroupLogChatID() != 0,
			ChatID:     cfg.Telegram.GroupLogChatID(),
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "file", "json":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapDefaults(cfg *config.Config) subscription.Defaults {
	return subscription.Defaults{
		Symbols:       append([]string(nil), cfg.Defaults.Symbols...),
		IntervalHours: cfg.Defaults.IntervalHours,
	}
}

// mapQuoteSource builds the configured Source. client is used by the Yahoo source.
func mapQuoteSource(cfg *config.Config, client *http.Client) (quote.Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Quotes.Source)) {
	case "", "yahoo":
		return quote.NewYahooSource(client), nil
	case "static":
		syms := make([]string, 0, len(cfg.Quotes.Static))
		for s := range cfg.Quotes.Static {
			syms = append(syms, s)
		}
		sort.Strings(syms)
		raws := make([]quote.RawQuote, 0, len(syms))
		for _, s := range syms {
			q := cfg.Quotes.Static[s]
			raws = append(raws, quote.StaticQuote(s, q.Name, q.Price, q.PreviousClose, q.Currency))
		}
		return quote.NewStaticSource(raws), nil
	default:
		return nil, fmt.Errorf("unknown quotes.source: %s", cfg.Quotes.Source)
	}
}

func mapProviderOptions(cfg *config.Config, log logx.Logger) []quote.Option {
	q := cfg.Quotes
	return []quote.Option{
		quote.WithLogger(log),
		quote.WithTimeout(config.DurationOr(q.Timeout, quote.DefaultTimeout)),
		quote.WithRetry(q.RetryAttempts, config.DurationOr(q.RetryBase, quote.DefaultBase)),
		quote.WithMaxBatch(q.MaxBatch),
	}
}

func mapRateLimitConfig(cfg *config.Config) ratelimit.Config {
	return ratelimit.Config{
		Cooldown:   config.DurationOr(cfg.RateLimit.Cooldown, ratelimit.DefaultCooldown),
		TTL:        config.DurationOr(cfg.RateLimit.TTL, ratelimit.DefaultTTL),
		MaxEntries: cfg.RateLimit.MaxEntries,
	}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{
		RatePerSec:  cfg.Notifier.RatePerSec,
		Burst:       cfg.Notifier.Burst,
		SendTimeout: config.DurationOr(cfg.Dispatch.SendTimeout, 0),
		HistorySize: cfg.Notifier.HistorySize,
	}
}

func mapCommandOptions(cfg *config.Config) commands.Options {
	opts := commands.Options{RestrictUpdateStocks: cfg.Admin.RestrictUpdateStocks}
	if ps, err := scheduler.ParseSchedule(cfg.Dispatch.Schedule); err == nil {
		opts.Cadence = ps.Describe()
	}
	return opts
}

func mapHealthConfig(cfg *config.Config) health.Config {
	return health.Config{Enabled: cfg.Health.Enabled, Addr: cfg.Health.Addr}
}

// validate is the reload gate: config.Validate plus the schedule strings.
func validate(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := scheduler.ParseSchedule(cfg.Dispatch.Schedule); err != nil {
		return fmt.Errorf("dispatch.schedule: %w", err)
	}
	if cfg.Health.SelfPingURL != "" {
		if _, err := scheduler.ParseSchedule(cfg.Health.SelfPingSchedule); err != nil {
			return fmt.Errorf("health.self_ping_schedule: %w", err)
		}
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	if cfg.Telegram.WebhookEnabled() && cfg.Health.Enabled &&
		strings.TrimSpace(cfg.Telegram.WebhookListen) == strings.TrimSpace(cfg.Health.Addr) {
		return fmt.Errorf("telegram.webhook_listen: %q is already used by health.addr", cfg.Health.Addr)
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}
