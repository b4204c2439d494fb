// Package commands implements the bot's chat commands on top of the
// subscription store and the quote provider.
package commands

import (
	"context"
	"strings"
	"sync"
	"time"

	"stockbot/internal/quote"
	"stockbot/internal/storage"
	"stockbot/internal/subscription"
	"stockbot/internal/transport/telegram/router"
	logx "stockbot/pkg/logx"
)

const (
	checkTimeout  = 45 * time.Second
	updateTimeout = 90 * time.Second
	// validateWorkers bounds concurrent symbol lookups in /updatestocks.
	validateWorkers = 4
)

// Quotes is the read side of quote.Provider used by /check.
type Quotes interface {
	GetOne(ctx context.Context, symbol string) (quote.Snapshot, error)
	GetMany(ctx context.Context, symbols []string) map[string]quote.Snapshot
}

type SymbolValidator interface {
	Valid(ctx context.Context, symbol string) bool
}

type Auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

type Deps struct {
	Store     *subscription.Store
	Quotes    Quotes
	Validator SymbolValidator
	// Audit is optional.
	Audit Auditor
	Log   logx.Logger
	Now   func() time.Time
}

type Options struct {
	// Cadence completes "receive updates ..." in the welcome text, e.g. "every 2 hours".
	Cadence string
	// RestrictUpdateStocks makes /updatestocks owner-only.
	RestrictUpdateStocks bool
}

// Set is the command set. Apply may be called concurrently with handlers.
type Set struct {
	deps Deps

	mu   sync.RWMutex
	opts Options
}

func New(deps Deps, opts Options) *Set {
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Set{deps: deps, opts: normalizeOptions(opts)}
}

func normalizeOptions(o Options) Options {
	if strings.TrimSpace(o.Cadence) == "" {
		o.Cadence = "every 2 hours"
	}
	return o
}

// Apply swaps options. Callers re-register Commands when the access mode changes.
func (s *Set) Apply(opts Options) {
	s.mu.Lock()
	s.opts = normalizeOptions(opts)
	s.mu.Unlock()
}

func (s *Set) options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// Commands returns the registry in menu order.
func (s *Set) Commands() []router.Command {
	updateAccess := router.AccessEveryone
	if s.options().RestrictUpdateStocks {
		updateAccess = router.AccessOwnerOnly
	}
	return []router.Command{
		{Name: "start", Description: "Show the welcome message", Usage: "/start", Handle: s.cmdStart},
		{Name: "subscribe", Description: "Subscribe to a stock (e.g., /subscribe AAPL)", Usage: "/subscribe SYMBOL", Handle: s.cmdSubscribe},
		{Name: "unsubscribe", Description: "Unsubscribe from a stock", Usage: "/unsubscribe SYMBOL", Handle: s.cmdUnsubscribe},
		{Name: "check", Description: "Check current stock price", Usage: "/check SYMBOL", RateLimited: true, Timeout: checkTimeout, Handle: s.cmdCheck},
		{Name: "list", Description: "List all your subscribed stocks", Usage: "/list", Handle: s.cmdList},
		{Name: "frequency", Description: "Set notification frequency", Usage: "/frequency HOURS", Handle: s.cmdFrequency},
		{Name: "updatestocks", Description: "Update the default stock list", Usage: "/updatestocks SYMBOL1 SYMBOL2 ...", Access: updateAccess, Timeout: updateTimeout, Handle: s.cmdUpdateStocks},
		{Name: "help", Description: "Show this help message", Usage: "/help", Handle: s.cmdStart},
	}
}

// helpBlock lists every command the way the welcome text shows it.
func (s *Set) helpBlock() string {
	cmds := s.Commands()
	lines := make([]string, 0, len(cmds))
	for _, c := range cmds {
		if c.Name == "start" {
			continue
		}
		lines = append(lines, c.Usage+" - "+c.Description)
	}
	return strings.Join(lines, "\n")
}
