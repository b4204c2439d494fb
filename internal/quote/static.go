package quote

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// StaticSource serves quotes from a fixed table. It backs offline runs
// and tests.
type StaticSource struct {
	mu     sync.RWMutex
	quotes map[string]RawQuote
}

func NewStaticSource(quotes []RawQuote) *StaticSource {
	s := &StaticSource{quotes: make(map[string]RawQuote, len(quotes))}
	for _, q := range quotes {
		s.Set(q)
	}
	return s
}

// StaticQuote builds a RawQuote from float prices.
func StaticQuote(symbol, name string, price, previousClose float64, currency string) RawQuote {
	return RawQuote{
		Symbol:        strings.ToUpper(symbol),
		LongName:      name,
		Price:         decimal.NewFromFloat(price),
		PreviousClose: decimal.NewFromFloat(previousClose),
		Currency:      currency,
	}
}

func (s *StaticSource) Name() string { return "static" }

// Set adds or replaces one quote.
func (s *StaticSource) Set(q RawQuote) {
	q.Symbol = strings.ToUpper(strings.TrimSpace(q.Symbol))
	s.mu.Lock()
	s.quotes[q.Symbol] = q
	s.mu.Unlock()
}

func (s *StaticSource) Fetch(ctx context.Context, symbols []string) ([]RawQuote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RawQuote, 0, len(symbols))
	for _, sym := range symbols {
		if q, ok := s.quotes[strings.ToUpper(sym)]; ok {
			q.AsOf = now
			out = append(out, q)
		}
	}
	return out, nil
}
