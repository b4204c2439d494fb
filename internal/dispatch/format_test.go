package dispatch_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stockbot/internal/dispatch"
	"stockbot/internal/quote"
)

func snap(t *testing.T, sym, name string, price, prev float64) quote.Snapshot {
	t.Helper()
	s, err := quote.NewSnapshot(quote.StaticQuote(sym, name, price, prev, "USD"), time.Now())
	require.NoError(t, err)
	return s
}

func TestFormatSnapshot(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		snap quote.Snapshot
		want string
	}{
		{
			name: "up",
			snap: snap(t, "AAPL", "Apple Inc.", 150, 145),
			want: "📈 Apple Inc. (AAPL)\nPrice: USD 150.00\nChange: +5.00 (+3.45%)",
		},
		{
			name: "down",
			snap: snap(t, "TSLA", "Tesla, Inc.", 190.5, 200),
			want: "📉 Tesla, Inc. (TSLA)\nPrice: USD 190.50\nChange: -9.50 (-4.75%)",
		},
		{
			name: "tiny loss keeps its sign",
			snap: snap(t, "X", "X", 100, 100.001),
			want: "📉 X (X)\nPrice: USD 100.00\nChange: -0.00 (-0.00%)",
		},
		{
			name: "flat counts as up",
			snap: snap(t, "INTC", "Intel", 30, 30),
			want: "📈 Intel (INTC)\nPrice: USD 30.00\nChange: +0.00 (+0.00%)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, dispatch.FormatSnapshot(tt.snap))
		})
	}
}

func TestFormatBatchOrdersBySymbol(t *testing.T) {
	t.Parallel()

	snaps := map[string]quote.Snapshot{
		"MSFT": snap(t, "MSFT", "Microsoft", 310, 300),
		"AAPL": snap(t, "AAPL", "Apple Inc.", 150, 145),
	}

	got := dispatch.FormatBatch(dispatch.Scheduled, snaps)
	want := "📊 Stock Price Update\n\n" +
		"📈 Apple Inc. (AAPL)\nPrice: USD 150.00\nChange: +5.00 (+3.45%)\n\n" +
		"📈 Microsoft (MSFT)\nPrice: USD 310.00\nChange: +10.00 (+3.33%)"
	require.Equal(t, want, got)

	require.Contains(t, dispatch.FormatBatch(dispatch.OnDemand, snaps), "📊 Current Stock Prices\n\n")
}
