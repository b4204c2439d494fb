package quote

import (
	"context"
	"net/http"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/equity"
	"github.com/shopspring/decimal"
)

// YahooSource reads equity quotes from Yahoo Finance via finance-go.
type YahooSource struct{}

// NewYahooSource installs client as finance-go's HTTP client when non-nil.
// finance-go keeps that client in package state.
func NewYahooSource(client *http.Client) *YahooSource {
	if client != nil {
		finance.SetHTTPClient(client)
	}
	return &YahooSource{}
}

func (y *YahooSource) Name() string { return "yahoo" }

// Fetch runs one batched equity lookup. finance-go takes no context, so the
// call runs in its own goroutine and Fetch returns early on ctx expiry.
func (y *YahooSource) Fetch(ctx context.Context, symbols []string) ([]RawQuote, error) {
	type result struct {
		quotes []RawQuote
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		var out []RawQuote
		iter := equity.List(symbols)
		for iter.Next() {
			if e := iter.Equity(); e != nil {
				out = append(out, fromEquity(e))
			}
		}
		ch <- result{quotes: out, err: iter.Err()}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.quotes, r.err
	}
}

func fromEquity(e *finance.Equity) RawQuote {
	q := RawQuote{
		Symbol:        e.Symbol,
		ShortName:     e.ShortName,
		LongName:      e.LongName,
		Price:         decimal.NewFromFloat(e.RegularMarketPrice),
		PreviousClose: decimal.NewFromFloat(e.RegularMarketPreviousClose),
		Currency:      e.CurrencyID,
		MarketCap:     e.MarketCap,
		Volume:        int64(e.RegularMarketVolume),
	}
	if e.RegularMarketTime > 0 {
		q.AsOf = time.Unix(int64(e.RegularMarketTime), 0)
	}
	return q
}
