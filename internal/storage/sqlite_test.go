package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	logx "stockbot/pkg/logx"
)

func nopLog() logx.Logger { return logx.Nop() }

// goose keeps package-level state, so sqlite tests do not run in parallel.
func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "stockbot.db")
	st, err := Open(Config{Driver: "sqlite", Path: path}, nopLog())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	empty, err := st.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, empty)

	in := Snapshot{
		"100": {Symbols: []string{"NVDA", "AAPL", "MSFT"}, IntervalHours: 4},
		"200": {Symbols: []string{}, IntervalHours: 1},
	}
	require.NoError(t, st.Save(ctx, in))
	out, err := st.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, in, out, "insertion order of symbols must survive")

	// Save replaces, it does not merge.
	require.NoError(t, st.Save(ctx, Snapshot{"200": {Symbols: []string{"INTC"}, IntervalHours: 2}}))
	out, err = st.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, Snapshot{"200": {Symbols: []string{"INTC"}, IntervalHours: 2}}, out)
}

func TestSQLiteStoreReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stockbot.db")
	ctx := context.Background()

	st, err := Open(Config{Driver: "sqlite3", Path: path}, nopLog())
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, Snapshot{"1": {Symbols: []string{"AAPL"}, IntervalHours: 2}}))
	require.NoError(t, st.AppendAudit(ctx, AuditEntry{ActorID: 1, Action: "updatestocks", OK: true}))
	require.NoError(t, st.Close())

	st, err = Open(Config{Driver: "sqlite", Path: path}, nopLog())
	require.NoError(t, err)
	defer st.Close()
	out, err := st.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"AAPL"}, out["1"].Symbols)
}
