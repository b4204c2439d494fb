package notifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"stockbot/internal/eventbus"
	kit "stockbot/internal/transport"
	logx "stockbot/pkg/logx"
)

var (
	ErrBadUser   = errors.New("notifier: user id is not a chat id")
	ErrEmptyText = errors.New("notifier: empty text")
)

const (
	EventSent   = "notifier.sent"
	EventFailed = "notifier.failed"
)

// Service is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log, bus: bus}
	s.applyLocked(cfg)
	return s
}

// Apply swaps the rate limit and send timeout. Sends already waiting keep the
// old limiter.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RatePerSec
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 300
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
}

// Deliver sends text to userID. It waits for the shared rate limiter, bounds
// the send with the configured timeout and makes exactly one attempt.
func (s *Service) Deliver(ctx context.Context, userID, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(userID), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrBadUser, userID)
	}

	s.mu.Lock()
	lim := s.limiter
	timeout := s.cfg.SendTimeout
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	_, err = s.adapter.SendText(cctx, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{DisablePreview: true})
	cancel()

	now := time.Now()
	item := HistoryItem{At: now, UserID: userID, Bytes: len(text)}
	ev := DeliveryEvent{UserID: userID, At: now}
	typ := EventSent
	if err != nil {
		item.Error = err.Error()
		ev.Error = err.Error()
		typ = EventFailed
		s.log.Debug("deliver failed", logx.String("user_id", userID), logx.Err(err))
	}
	s.appendHistory(item)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
	}
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", userID, err)
	}
	return nil
}

// Snapshot returns recent deliveries, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(it HistoryItem) {
	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}
