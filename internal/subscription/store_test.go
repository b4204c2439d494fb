package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"stockbot/internal/storage"
	logx "stockbot/pkg/logx"
)

var testDefaults = Defaults{Symbols: []string{"AAPL", "MSFT"}, IntervalHours: 2}

// memBackend is a storage.Store that keeps the last saved snapshot.
type memBackend struct {
	mu      sync.Mutex
	saved   storage.Snapshot
	saves   int
	loadErr error
	saveErr error
	initial storage.Snapshot
}

func (m *memBackend) Load(context.Context) (storage.Snapshot, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.initial == nil {
		return storage.Snapshot{}, nil
	}
	return m.initial.Clone(), nil
}

func (m *memBackend) Save(_ context.Context, snap storage.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = snap.Clone()
	return nil
}

func (m *memBackend) AppendAudit(context.Context, storage.AuditEntry) error { return nil }
func (m *memBackend) Close() error                                          { return nil }

func newStore(t *testing.T) (*Store, *memBackend) {
	t.Helper()
	b := &memBackend{}
	return Open(context.Background(), b, testDefaults, logx.Nop()), b
}

func TestGetOrCreateSeedsDefaultsAndPersists(t *testing.T) {
	t.Parallel()

	s, b := newStore(t)
	u := s.GetOrCreate(context.Background(), "1")

	require.Equal(t, []string{"AAPL", "MSFT"}, u.Symbols)
	require.Equal(t, 2, u.IntervalHours)
	require.Equal(t, 1, b.saves)
	require.Equal(t, storage.UserRecord{Symbols: []string{"AAPL", "MSFT"}, IntervalHours: 2}, b.saved["1"])

	// Second call does not create or save again.
	s.GetOrCreate(context.Background(), "1")
	require.Equal(t, 1, b.saves)
}

func TestSubscribeTwice(t *testing.T) {
	t.Parallel()

	s, b := newStore(t)
	ctx := context.Background()

	first, err := s.Subscribe(ctx, "1", "tsla")
	require.NoError(t, err)
	second, err := s.Subscribe(ctx, "1", "TSLA")
	require.NoError(t, err)

	require.True(t, first)
	require.False(t, second)
	require.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, s.Symbols(ctx, "1"))
	require.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, b.saved["1"].Symbols)
}

func TestUnsubscribeTwice(t *testing.T) {
	t.Parallel()

	s, b := newStore(t)
	ctx := context.Background()

	first, err := s.Unsubscribe(ctx, "1", "aapl")
	require.NoError(t, err)
	second, err := s.Unsubscribe(ctx, "1", "AAPL")
	require.NoError(t, err)

	require.True(t, first)
	require.False(t, second)
	require.Equal(t, []string{"MSFT"}, b.saved["1"].Symbols)
}

func TestSetIntervalClampsLowerBoundOnly(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)
	ctx := context.Background()

	cases := []struct{ in, want int }{{0, 1}, {-5, 1}, {1, 1}, {24, 24}, {25, 25}}
	for _, tc := range cases {
		got, err := s.SetInterval(ctx, "1", tc.in)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
		require.Equal(t, tc.want, s.Interval(ctx, "1"))
	}
}

func TestApplyNewDefaultsIsMonotonic(t *testing.T) {
	t.Parallel()

	s, b := newStore(t)
	ctx := context.Background()
	_, _ = s.Unsubscribe(ctx, "1", "AAPL")
	_, _ = s.Subscribe(ctx, "2", "INTC")
	before := map[string][]string{"1": s.Symbols(ctx, "1"), "2": s.Symbols(ctx, "2")}
	savesBefore := b.saves

	require.NoError(t, s.ApplyNewDefaults(ctx, []string{"nvda", "AAPL", "nvda", " "}))

	require.Equal(t, savesBefore+1, b.saves, "one flush for the whole pass")
	for id, old := range before {
		now := s.Symbols(ctx, id)
		for _, sym := range old {
			require.Contains(t, now, sym, "user %s lost %s", id, sym)
		}
		require.Contains(t, now, "NVDA")
		require.Contains(t, now, "AAPL")
	}
	require.Equal(t, []string{"MSFT", "NVDA", "AAPL"}, s.Symbols(ctx, "1"))
	require.Equal(t, []string{"NVDA", "AAPL"}, s.Defaults().Symbols)

	// New users pick up the new defaults.
	require.Equal(t, []string{"NVDA", "AAPL"}, s.GetOrCreate(ctx, "3").Symbols)
}

func TestApplyNewDefaultsEmptyListKeepsUsers(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)
	ctx := context.Background()
	s.GetOrCreate(ctx, "1")
	require.NoError(t, s.ApplyNewDefaults(ctx, nil))
	require.Equal(t, []string{"AAPL", "MSFT"}, s.Symbols(ctx, "1"))
}

func TestListUsersAndAllSymbols(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)
	ctx := context.Background()
	for _, id := range []string{"30", "10", "20"} {
		s.GetOrCreate(ctx, id)
	}
	_, _ = s.Subscribe(ctx, "20", "GOOGL")

	require.Equal(t, []string{"10", "20", "30"}, s.ListUsers())
	require.Equal(t, []string{"AAPL", "GOOGL", "MSFT"}, s.AllSubscribedSymbols())
}

func TestLoadFailureDegradesToEmpty(t *testing.T) {
	t.Parallel()

	b := &memBackend{loadErr: storage.ErrCorrupt}
	s := Open(context.Background(), b, testDefaults, logx.Nop())

	require.True(t, s.Degraded())
	require.Empty(t, s.ListUsers())
	// Still usable.
	require.Equal(t, []string{"AAPL", "MSFT"}, s.GetOrCreate(context.Background(), "1").Symbols)
}

func TestLoadRestoresUsers(t *testing.T) {
	t.Parallel()

	b := &memBackend{initial: storage.Snapshot{"9": {Symbols: []string{"meta"}, IntervalHours: 6}}}
	s := Open(context.Background(), b, testDefaults, logx.Nop())

	require.False(t, s.Degraded())
	u, ok := s.Lookup("9")
	require.True(t, ok)
	require.Equal(t, []string{"META"}, u.Symbols)
	require.Equal(t, 6, u.IntervalHours)
}

func TestLoadReplacesOutOfRangeIntervals(t *testing.T) {
	t.Parallel()

	b := &memBackend{initial: storage.Snapshot{
		"1": {Symbols: []string{"AAPL"}, IntervalHours: -4},
		"2": {Symbols: []string{"AAPL"}, IntervalHours: 0},
		"3": {Symbols: []string{"AAPL"}, IntervalHours: 1},
	}}
	s := Open(context.Background(), b, testDefaults, logx.Nop())

	tests := map[string]int{"1": testDefaults.IntervalHours, "2": testDefaults.IntervalHours, "3": 1}
	for id, want := range tests {
		u, ok := s.Lookup(id)
		require.True(t, ok, id)
		require.Equal(t, want, u.IntervalHours, id)
	}
}

func TestSaveFailureKeepsMemoryState(t *testing.T) {
	t.Parallel()

	s, b := newStore(t)
	ctx := context.Background()
	s.GetOrCreate(ctx, "1")
	b.saveErr = errors.New("disk full")

	added, err := s.Subscribe(ctx, "1", "AMZN")
	require.True(t, added)
	require.Error(t, err)
	require.Contains(t, s.Symbols(ctx, "1"), "AMZN")
}

func TestStoreWithFileBackend(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	cfg := storage.Config{Driver: "file", Path: "/state/user_data.json", Fs: fsys}
	ctx := context.Background()

	backend, err := storage.Open(cfg, logx.Nop())
	require.NoError(t, err)
	s := Open(ctx, backend, testDefaults, logx.Nop())
	_, err = s.Subscribe(ctx, "5", "nflx")
	require.NoError(t, err)
	_, err = s.SetInterval(ctx, "5", 0)
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	backend, err = storage.Open(cfg, logx.Nop())
	require.NoError(t, err)
	defer backend.Close()
	reopened := Open(ctx, backend, testDefaults, logx.Nop())
	u, ok := reopened.Lookup("5")
	require.True(t, ok)
	require.Equal(t, []string{"AAPL", "MSFT", "NFLX"}, u.Symbols)
	require.Equal(t, 1, u.IntervalHours)
}

func TestConcurrentMutations(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)
	ctx := context.Background()
	syms := []string{"A", "B", "C", "D", "E", "F", "G", "H"}

	var wg sync.WaitGroup
	for _, sym := range syms {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.Subscribe(ctx, "1", sym)
		}()
		go func() {
			defer wg.Done()
			_ = s.ListUsers()
			_ = s.AllSubscribedSymbols()
		}()
	}
	wg.Wait()

	got := s.Symbols(ctx, "1")
	require.Len(t, got, len(testDefaults.Symbols)+len(syms))
}
