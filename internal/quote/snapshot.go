package quote

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "USD"

var (
	// ErrUnavailable means no quote could be obtained right now.
	ErrUnavailable = errors.New("quote unavailable")
	// ErrIncomplete means the provider answered without a usable price or previous close.
	ErrIncomplete = errors.New("quote incomplete")
	// ErrNotFound means the provider answered without the requested symbol.
	ErrNotFound = errors.New("symbol not found")
)

var hundred = decimal.NewFromInt(100)

// RawQuote is one symbol as returned by a Source. Zero prices mean "missing".
type RawQuote struct {
	Symbol        string
	ShortName     string
	LongName      string
	Price         decimal.Decimal
	PreviousClose decimal.Decimal
	Currency      string
	MarketCap     int64
	Volume        int64
	AsOf          time.Time
}

// Snapshot is a point-in-time quote with derived change fields.
type Snapshot struct {
	Symbol        string
	Name          string
	Price         decimal.Decimal
	PreviousClose decimal.Decimal
	Change        decimal.Decimal
	ChangePercent decimal.Decimal
	Currency      string
	MarketCap     *int64
	Volume        *int64
	AsOf          time.Time
}

// Up reports a non-negative change. A flat price counts as up.
func (s Snapshot) Up() bool { return !s.Change.IsNegative() }

// NewSnapshot derives a Snapshot from a raw quote. It fails with ErrIncomplete
// when the price or previous close is missing or zero.
func NewSnapshot(raw RawQuote, now time.Time) (Snapshot, error) {
	if raw.Price.IsZero() {
		return Snapshot{}, fmt.Errorf("%w: %s: missing price", ErrIncomplete, raw.Symbol)
	}
	if raw.PreviousClose.IsZero() {
		return Snapshot{}, fmt.Errorf("%w: %s: missing previous close", ErrIncomplete, raw.Symbol)
	}

	change := raw.Price.Sub(raw.PreviousClose)
	s := Snapshot{
		Symbol:        raw.Symbol,
		Name:          raw.LongName,
		Price:         raw.Price,
		PreviousClose: raw.PreviousClose,
		Change:        change,
		ChangePercent: change.Div(raw.PreviousClose).Mul(hundred),
		Currency:      raw.Currency,
		AsOf:          raw.AsOf,
	}
	if s.Name == "" {
		s.Name = raw.ShortName
	}
	if s.Name == "" {
		s.Name = raw.Symbol
	}
	if s.Currency == "" {
		s.Currency = DefaultCurrency
	}
	if raw.MarketCap > 0 {
		v := raw.MarketCap
		s.MarketCap = &v
	}
	if raw.Volume > 0 {
		v := raw.Volume
		s.Volume = &v
	}
	if s.AsOf.IsZero() {
		s.AsOf = now
	}
	return s, nil
}
