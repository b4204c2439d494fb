package config

import (
	"reflect"
	"strings"

	logx "stockbot/pkg/logx"
)

// SummarizeConfigChange lists the top-level sections that differ and returns
// log fields describing the new values. Secrets are reported as set/unset only.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed []string
	var attrs []logx.Field
	mark := func(section string, fields ...logx.Field) {
		changed = append(changed, section)
		attrs = append(attrs, fields...)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if strings.TrimSpace(ot.Token) != strings.TrimSpace(nt.Token) ||
		ot.PollTimeout != nt.PollTimeout ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) ||
		ot.GroupLog != nt.GroupLog ||
		ot.DropPendingUpdates() != nt.DropPendingUpdates() ||
		ot.WebhookURL != nt.WebhookURL ||
		ot.WebhookListen != nt.WebhookListen ||
		ot.WebhookSecret != nt.WebhookSecret {
		mark("telegram",
			logx.Bool("telegram.token_changed", strings.TrimSpace(ot.Token) != strings.TrimSpace(nt.Token)),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", nt.GroupLog != ""),
			logx.Bool("telegram.webhook", nt.WebhookEnabled()),
		)
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		mark("storage",
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}
	if !reflect.DeepEqual(oldCfg.Quotes, newCfg.Quotes) {
		mark("quotes",
			logx.String("quotes.source", newCfg.Quotes.Source),
			logx.String("quotes.timeout", newCfg.Quotes.Timeout),
		)
	}
	if !reflect.DeepEqual(oldCfg.Defaults, newCfg.Defaults) {
		mark("defaults", logx.Strs("defaults.symbols", newCfg.Defaults.Symbols))
	}
	if !reflect.DeepEqual(oldCfg.Dispatch, newCfg.Dispatch) {
		mark("dispatch",
			logx.String("dispatch.schedule", newCfg.Dispatch.Schedule),
			logx.Bool("dispatch.enabled", newCfg.Dispatch.DispatchEnabled()),
			logx.Int("dispatch.workers", newCfg.Dispatch.Workers),
		)
	}
	if oldCfg.RateLimit != newCfg.RateLimit {
		mark("ratelimit", logx.String("ratelimit.cooldown", newCfg.RateLimit.Cooldown))
	}
	if oldCfg.Notifier != newCfg.Notifier {
		mark("notifier", logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec))
	}
	if oldCfg.Health != newCfg.Health {
		mark("health",
			logx.Bool("health.enabled", newCfg.Health.Enabled),
			logx.String("health.addr", newCfg.Health.Addr),
			logx.Bool("health.self_ping", newCfg.Health.SelfPingURL != ""),
		)
	}
	if oldCfg.Admin != newCfg.Admin {
		mark("admin", logx.Bool("admin.restrict_updatestocks", newCfg.Admin.RestrictUpdateStocks))
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		mark("scheduler", logx.String("scheduler.timezone", newCfg.Scheduler.Timezone))
	}
	return changed, attrs
}

// RequiresRestart reports sections whose change only takes effect after restart.
func RequiresRestart(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "telegram", "storage", "quotes", "defaults", "ratelimit", "scheduler":
			out = append(out, s)
		}
	}
	return out
}
