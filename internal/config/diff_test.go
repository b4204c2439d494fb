package config

import (
	"reflect"
	"testing"
)

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{Telegram: TelegramConfig{Token: "a"}}
	Normalize(oldCfg)
	newCfg := &Config{Telegram: TelegramConfig{Token: "a"}}
	Normalize(newCfg)

	if changed, _ := SummarizeConfigChange(oldCfg, newCfg); len(changed) != 0 {
		t.Fatalf("identical configs reported changes: %v", changed)
	}

	newCfg.Dispatch.Schedule = "1h"
	newCfg.Logging.Level = "debug"
	newCfg.Telegram.Token = "b"
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if want := []string{"telegram", "logging", "dispatch"}; !reflect.DeepEqual(changed, want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	if len(attrs) == 0 {
		t.Fatal("expected log attrs")
	}
	if got := RequiresRestart(changed); !reflect.DeepEqual(got, []string{"telegram"}) {
		t.Fatalf("RequiresRestart = %v", got)
	}
}
