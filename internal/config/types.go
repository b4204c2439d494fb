package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("500ms", "10s", "2h").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Quotes    QuotesConfig    `json:"quotes"`
	Defaults  DefaultsConfig  `json:"defaults"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	RateLimit RateLimitConfig `json:"ratelimit"`
	Notifier  NotifierConfig  `json:"notifier"`
	Health    HealthConfig    `json:"health"`
	Admin     AdminConfig     `json:"admin"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

type TelegramConfig struct {
	// Token may be left empty and supplied via TELEGRAM_BOT_TOKEN.
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id receiving the Telegram log sink.
	GroupLog    string `json:"group_log"`
	PollTimeout string `json:"poll_timeout"`
	DropPending *bool  `json:"drop_pending,omitempty"`
	// WebhookURL switches updates from long polling to a webhook at
	// <webhook_url>/<token>. Must be https.
	WebhookURL    string `json:"webhook_url,omitempty"`
	WebhookListen string `json:"webhook_listen,omitempty"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the subscription state backend.
//
//	"storage": { "driver": "file", "path": "./user_data.json" }
//	"storage": { "driver": "sqlite", "path": "./stockbot.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// QuotesConfig configures the quote source and the resilience policy around it.
type QuotesConfig struct {
	// Source is "yahoo" (default) or "static".
	Source        string                 `json:"source"`
	Timeout       string                 `json:"timeout"`
	RetryAttempts int                    `json:"retry_attempts"`
	RetryBase     string                 `json:"retry_base"`
	MaxBatch      int                    `json:"max_batch"`
	Static        map[string]StaticQuote `json:"static,omitempty"`
}

type StaticQuote struct {
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	PreviousClose float64 `json:"previous_close"`
	Currency      string  `json:"currency,omitempty"`
}

// DefaultsConfig seeds the global default symbol list at startup.
type DefaultsConfig struct {
	Symbols       []string `json:"symbols"`
	IntervalHours int      `json:"interval_hours"`
}

type DispatchConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
	// Schedule accepts cron, @every, a bare duration or HH:MM.
	Schedule    string `json:"schedule"`
	Workers     int    `json:"workers"`
	SendTimeout string `json:"send_timeout"`
}

type RateLimitConfig struct {
	Cooldown   string `json:"cooldown"`
	TTL        string `json:"ttl"`
	MaxEntries int    `json:"max_entries"`
}

type NotifierConfig struct {
	RatePerSec  int `json:"rate_per_sec"`
	Burst       int `json:"burst"`
	HistorySize int `json:"history_size"`
}

type HealthConfig struct {
	Enabled     bool   `json:"enabled"`
	Addr        string `json:"addr"`
	ProbeSymbol string `json:"probe_symbol"`

	SelfPingURL      string `json:"self_ping_url,omitempty"`
	SelfPingSchedule string `json:"self_ping_schedule,omitempty"`
	SelfPingTimeout  string `json:"self_ping_timeout,omitempty"`
}

type AdminConfig struct {
	// RestrictUpdateStocks limits /updatestocks to telegram.owner_user_ids.
	RestrictUpdateStocks bool `json:"restrict_updatestocks"`
}

type SchedulerConfig struct {
	Timezone string `json:"timezone,omitempty"`
}
