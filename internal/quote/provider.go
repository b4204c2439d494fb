package quote

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/singleflight"

	logx "stockbot/pkg/logx"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultAttempts = 3
	DefaultBase     = 500 * time.Millisecond
	DefaultMaxBatch = 50
)

// Provider wraps a Source with timeouts, retries, batching and coalescing.
// It holds no cache: identical concurrent requests share one in-flight call
// and nothing outlives it.
type Provider struct {
	src      Source
	log      logx.Logger
	timeout  time.Duration
	attempts uint
	base     time.Duration
	maxDelay time.Duration
	maxBatch int
	now      func() time.Time

	sf singleflight.Group
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(log logx.Logger) Option { return func(p *Provider) { p.log = log } }

// WithTimeout bounds each Source call.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithRetry sets the total attempt count and the first backoff step.
func WithRetry(attempts int, base time.Duration) Option {
	return func(p *Provider) {
		if attempts > 0 {
			p.attempts = uint(attempts)
		}
		if base > 0 {
			p.base = base
		}
	}
}

// WithMaxBatch caps how many symbols go into one Source call.
func WithMaxBatch(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxBatch = n
		}
	}
}

// NewProvider wraps src with the default timeout, retry and batch settings.
func NewProvider(src Source, opts ...Option) *Provider {
	p := &Provider{
		src:      src,
		timeout:  DefaultTimeout,
		attempts: DefaultAttempts,
		base:     DefaultBase,
		maxBatch: DefaultMaxBatch,
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	p.maxDelay = p.base << 4
	return p
}

func (p *Provider) SourceName() string { return p.src.Name() }

// GetOne returns a fresh snapshot for symbol. Transport failures are retried
// with exponential backoff; a symbol the source does not know, or one without
// a usable price, fails at once. Every failure wraps ErrUnavailable.
func (p *Provider) GetOne(ctx context.Context, symbol string) (Snapshot, error) {
	sym := normalize(symbol)
	if sym == "" {
		return Snapshot{}, fmt.Errorf("%w: empty symbol", ErrUnavailable)
	}
	v, err, _ := p.sf.Do("one:"+sym, func() (any, error) {
		return retry.DoWithData(func() (Snapshot, error) {
			raws, err := p.fetch(ctx, []string{sym})
			if err != nil {
				return Snapshot{}, err
			}
			raw, ok := findRaw(raws, sym)
			if !ok {
				return Snapshot{}, retry.Unrecoverable(fmt.Errorf("%w: %s", ErrNotFound, sym))
			}
			s, err := NewSnapshot(raw, p.now())
			if err != nil {
				return Snapshot{}, retry.Unrecoverable(err)
			}
			return s, nil
		}, p.retryOpts(ctx, sym)...)
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s: %w", ErrUnavailable, sym, err)
	}
	return v.(Snapshot), nil
}

// GetMany fetches symbols in batches of at most maxBatch and returns the
// snapshots that could be built. Incomplete quotes and failed batches are
// logged and omitted; the map is never nil.
func (p *Provider) GetMany(ctx context.Context, symbols []string) map[string]Snapshot {
	syms := dedup(symbols)
	out := make(map[string]Snapshot, len(syms))
	for chunk := range slices.Chunk(syms, p.maxBatch) {
		if ctx.Err() != nil {
			break
		}
		key := "many:" + strings.Join(chunk, ",")
		v, err, shared := p.sf.Do(key, func() (any, error) {
			return retry.DoWithData(func() ([]RawQuote, error) {
				return p.fetch(ctx, chunk)
			}, p.retryOpts(ctx, key)...)
		})
		if err != nil {
			p.log.Warn("quote batch failed",
				logx.String("source", p.src.Name()),
				logx.Strs("symbols", chunk),
				logx.Err(err),
			)
			continue
		}
		if shared {
			p.log.Trace("quote batch coalesced", logx.Int("symbols", len(chunk)))
		}
		now := p.now()
		for _, raw := range v.([]RawQuote) {
			sym := normalize(raw.Symbol)
			if !slices.Contains(chunk, sym) {
				continue
			}
			raw.Symbol = sym
			s, err := NewSnapshot(raw, now)
			if err != nil {
				p.log.Warn("quote dropped", logx.String("symbol", sym), logx.Err(err))
				continue
			}
			out[sym] = s
		}
	}
	return out
}

// HasPrice makes one unretried lookup and reports whether the source knows
// symbol with a non-zero market price.
func (p *Provider) HasPrice(ctx context.Context, symbol string) (bool, error) {
	sym := normalize(symbol)
	v, err, _ := p.sf.Do("probe:"+sym, func() (any, error) {
		return p.fetch(ctx, []string{sym})
	})
	if err != nil {
		return false, err
	}
	raw, ok := findRaw(v.([]RawQuote), sym)
	return ok && !raw.Price.IsZero(), nil
}

func (p *Provider) fetch(ctx context.Context, symbols []string) ([]RawQuote, error) {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	raws, err := p.src.Fetch(cctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("%s fetch: %w", p.src.Name(), err)
	}
	return raws, nil
}

func (p *Provider) retryOpts(ctx context.Context, what string) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.Delay(p.base),
		retry.MaxDelay(p.maxDelay),
		retry.MaxJitter(p.base / 2),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.log.Debug("quote fetch retry",
				logx.String("source", p.src.Name()),
				logx.String("request", what),
				logx.Int("attempt", int(n)+1),
				logx.Err(err),
			)
		}),
	}
}

func findRaw(raws []RawQuote, sym string) (RawQuote, bool) {
	for _, r := range raws {
		if normalize(r.Symbol) == sym {
			return r, true
		}
	}
	return RawQuote{}, false
}

func normalize(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

func dedup(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = normalize(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
