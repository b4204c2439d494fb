package dispatch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"stockbot/internal/quote"
)

// Kind selects the header of a batch message.
type Kind int

const (
	OnDemand Kind = iota
	Scheduled
)

func (k Kind) header() string {
	if k == Scheduled {
		return "📊 Stock Price Update"
	}
	return "📊 Current Stock Prices"
}

// FormatSnapshot renders one quote as three lines:
//
//	📈 Apple Inc. (AAPL)
//	Price: USD 150.00
//	Change: +5.00 (+3.45%)
func FormatSnapshot(s quote.Snapshot) string {
	emoji, sign := "📉", ""
	if s.Up() {
		emoji, sign = "📈", "+"
	}
	return fmt.Sprintf("%s %s (%s)\nPrice: %s %s\nChange: %s%s (%s%s%%)",
		emoji, s.Name, s.Symbol,
		s.Currency, s.Price.StringFixed(2),
		sign, fixed2(s.Change),
		sign, fixed2(s.ChangePercent),
	)
}

// fixed2 keeps the minus sign on small losses that round to zero.
func fixed2(d decimal.Decimal) string {
	out := d.StringFixed(2)
	if d.IsNegative() && !strings.HasPrefix(out, "-") {
		out = "-" + out
	}
	return out
}

// FormatBatch renders a header, a blank line and one block per snapshot,
// ordered by symbol.
func FormatBatch(kind Kind, snaps map[string]quote.Snapshot) string {
	syms := make([]string, 0, len(snaps))
	for sym := range snaps {
		syms = append(syms, sym)
	}
	sort.Strings(syms)

	var b strings.Builder
	b.WriteString(kind.header())
	b.WriteString("\n\n")
	for i, sym := range syms {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatSnapshot(snaps[sym]))
	}
	return b.String()
}
