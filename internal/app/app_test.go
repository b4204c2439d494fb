package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stockbot/internal/config"
	kit "stockbot/internal/transport"
)

type sentMsg struct {
	chat int64
	text string
}

type loopAdapter struct {
	mu  sync.Mutex
	out chan<- kit.Update
	got chan sentMsg
}

func newLoopAdapter() *loopAdapter { return &loopAdapter{got: make(chan sentMsg, 64)} }

func (a *loopAdapter) Start(_ context.Context, out chan<- kit.Update) error {
	a.mu.Lock()
	a.out = out
	a.mu.Unlock()
	return nil
}

func (a *loopAdapter) Stop(context.Context) error { return nil }

func (a *loopAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	a.got <- sentMsg{chat: to.ChatID, text: text}
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (a *loopAdapter) say(from int64, text string) {
	a.mu.Lock()
	out := a.out
	a.mu.Unlock()
	out <- kit.Update{Message: &kit.Message{ChatID: from, FromID: from, Text: text}}
}

func (a *loopAdapter) next(t *testing.T) sentMsg {
	t.Helper()
	select {
	case m := <-a.got:
		return m
	case <-time.After(3 * time.Second):
		t.Fatal("no message sent")
		return sentMsg{}
	}
}

func writeConfig(t *testing.T, dir string, mutate func(m map[string]any)) string {
	t.Helper()
	m := map[string]any{
		"telegram": map[string]any{"token": "test-token", "owner_user_ids": []int64{42}},
		"logging":  map[string]any{"level": "error"},
		"storage":  map[string]any{"driver": "file", "path": filepath.Join(dir, "user_data.json")},
		"quotes": map[string]any{
			"source":         "static",
			"retry_attempts": 1,
			"retry_base":     "1ms",
			"static": map[string]any{
				"AAPL": map[string]any{"name": "Apple Inc.", "price": 150, "previous_close": 145, "currency": "USD"},
				"MSFT": map[string]any{"name": "Microsoft Corporation", "price": 400, "previous_close": 410},
			},
		},
		"defaults": map[string]any{"symbols": []string{"AAPL", "MSFT"}},
		"dispatch": map[string]any{"schedule": "2h"},
	}
	if mutate != nil {
		mutate(m)
	}
	b, err := json.Marshal(m)
	require.NoError(t, err)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func startApp(t *testing.T) (*App, *loopAdapter, string) {
	t.Helper()
	dir := t.TempDir()
	path := writeConfig(t, dir, nil)
	cfgm := config.NewConfigManager(path)
	cfgm.SetEnv(func(string) string { return "" })
	cfg, err := cfgm.Load()
	require.NoError(t, err)

	ad := newLoopAdapter()
	a, err := build(cfgm, cfg, ad, nil)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopAppStop)
	})
	return a, ad, dir
}

func TestAppAnswersCommandsAndDispatches(t *testing.T) {
	a, ad, dir := startApp(t)

	// Arrange
	ad.say(1001, "/start")
	require.Contains(t, ad.next(t).text, "receive updates every 2 hours")

	// Act
	ad.say(1001, "/check AAPL")
	check := ad.next(t)
	require.True(t, a.RunDispatchNow())
	update := ad.next(t)

	// Assert
	require.Equal(t, "📈 Apple Inc. (AAPL)\nPrice: USD 150.00\nChange: +5.00 (+3.45%)", check.text)
	require.EqualValues(t, 1001, update.chat)
	require.True(t, strings.HasPrefix(update.text, "📊 Stock Price Update\n\n"))
	require.Contains(t, update.text, "📉 Microsoft Corporation (MSFT)")

	b, err := os.ReadFile(filepath.Join(dir, "user_data.json"))
	require.NoError(t, err)
	require.Contains(t, string(b), `"subscribed_stocks"`)

	require.Eventually(t, func() bool {
		rep, ok := a.disp.Last()
		return ok && rep.Sent == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAppApplyReloadsAccessAndCadence(t *testing.T) {
	a, ad, _ := startApp(t)
	oldCfg := a.cfgm.Get()

	newCfg := *oldCfg
	newCfg.Admin.RestrictUpdateStocks = true
	newCfg.Dispatch.Schedule = "6h"
	a.apply(context.Background(), oldCfg, &newCfg)

	ad.say(1001, "/updatestocks AAPL")
	require.Equal(t, "You are not allowed to use this command.", ad.next(t).text)
	ad.say(1001, "/help")
	require.Contains(t, ad.next(t).text, "receive updates every 6 hours")

	var spec string
	for _, s := range a.sched.Snapshot() {
		if s.Name == jobDispatch {
			spec = s.Spec
		}
	}
	require.Equal(t, "@every 6h0m0s", spec)
}

func TestAppApplyDisablesDispatch(t *testing.T) {
	a, _, _ := startApp(t)
	oldCfg := a.cfgm.Get()

	off := false
	newCfg := *oldCfg
	newCfg.Dispatch.Enabled = &off
	a.apply(context.Background(), oldCfg, &newCfg)

	require.False(t, a.RunDispatchNow())
}
