package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "stockbot/internal/runtime/supervisor"
	kit "stockbot/internal/transport"
	logx "stockbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// DropPending skips updates queued while the bot was offline.
	DropPending bool
	// WebhookURL, when set, replaces long polling with a webhook served on
	// WebhookListen and registered at <WebhookURL>/<Token>.
	WebhookURL    string
	WebhookListen string
	WebhookSecret string
}

func (c Config) webhook() bool { return strings.TrimSpace(c.WebhookURL) != "" }

// Mode is "webhook" or "polling".
func (c Config) Mode() string {
	if c.webhook() {
		return "webhook"
	}
	return "polling"
}

func newPoller(cfg Config) tele.Poller {
	if cfg.webhook() {
		return &tele.Webhook{
			Listen:      cfg.WebhookListen,
			DropUpdates: cfg.DropPending,
			SecretToken: cfg.WebhookSecret,
			Endpoint: &tele.WebhookEndpoint{
				PublicURL: strings.TrimRight(strings.TrimSpace(cfg.WebhookURL), "/") + "/" + cfg.Token,
			},
		}
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &tele.LongPoller{Timeout: timeout}
}

// Adapter is a Telegram connection built on telebot, fed by long polling or
// a webhook.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // chan<- kit.Update
	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	droppedUpdates atomic.Uint64

	menuMu   sync.Mutex
	menuHash uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: newPoller(cfg),
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)

	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		a.forward(kit.Update{Message: &kit.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			ThreadID:     m.ThreadID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			Text:         m.Text,
		}})
		return nil
	})
	return a, nil
}

func (a *Adapter) forward(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.droppedUpdates.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(false))
	sup := a.sup
	a.runMu.Unlock()

	if !a.cfg.webhook() {
		// getUpdates is refused while a webhook from an earlier run is registered.
		if err := a.bot.RemoveWebhook(); err != nil {
			a.log.Warn("removing stale webhook failed", logx.Err(err))
		}
		if a.cfg.DropPending {
			if err := a.dropPending(ctx); err != nil {
				a.log.Warn("dropping pending updates failed", logx.Err(err))
			}
		}
	}

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := a.droppedUpdates.Swap(0); n > 0 {
				a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// telebot's Start blocks until Stop; restart it if it returns early.
	mode := a.cfg.Mode()
	sup.GoRestart0("telebot."+mode, func(c context.Context) {
		a.log.Info("updates started", logx.String("mode", mode))
		a.bot.Start()
		a.log.Info("updates stopped", logx.String("mode", mode))
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

// dropPending acknowledges everything queued server-side so the poller starts fresh.
func (a *Adapter) dropPending(ctx context.Context) error {
	raw, err := a.bot.Raw("getUpdates", map[string]any{"offset": -1, "timeout": 0})
	if err != nil {
		return err
	}
	var resp struct {
		Result []struct {
			ID int `json:"update_id"`
		} `json:"result"`
	}
	if err := jsonUnmarshal(raw, &resp); err != nil {
		return err
	}
	if n := len(resp.Result); n > 0 {
		last := resp.Result[n-1].ID
		if _, err := a.bot.Raw("getUpdates", map[string]any{"offset": last + 1, "timeout": 0}); err != nil {
			return err
		}
		a.log.Info("pending updates dropped", logx.Int("last_update_id", last))
	}
	return ctx.Err()
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", a.droppedUpdates.Load()))
	sup.Cancel()
	go a.bot.Stop()

	// getUpdates may still be mid long-poll; do not hold shutdown for it.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}
