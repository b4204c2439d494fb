package subscription

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"stockbot/internal/storage"
	logx "stockbot/pkg/logx"
)

type record struct {
	symbols  []string
	interval int
}

// Store is the in-memory subscription state backed by a storage.Store.
// It is safe for concurrent use.
type Store struct {
	backend storage.Store
	log     logx.Logger

	mu       sync.Mutex
	users    map[string]*record
	defaults Defaults
	degraded bool
}

// Open loads persisted users. A load failure does not fail Open: the store
// starts empty, logs the error and reports Degraded.
func Open(ctx context.Context, backend storage.Store, defaults Defaults, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	if defaults.IntervalHours < MinIntervalHours {
		defaults.IntervalHours = MinIntervalHours
	}
	s := &Store{
		backend:  backend,
		log:      log,
		users:    map[string]*record{},
		defaults: Defaults{Symbols: normalizeList(defaults.Symbols), IntervalHours: defaults.IntervalHours},
	}

	snap, err := backend.Load(ctx)
	if err != nil {
		s.degraded = true
		s.log.Error("loading subscriptions failed; starting empty", logx.Err(err), logx.Bool("corrupt", errors.Is(err, storage.ErrCorrupt)))
		return s
	}
	for id, r := range snap {
		interval := r.IntervalHours
		if interval < MinIntervalHours {
			s.log.Warn("stored interval out of range; using default", logx.String("user_id", id), logx.Int("interval", interval), logx.Int("default", s.defaults.IntervalHours))
			interval = s.defaults.IntervalHours
		}
		s.users[id] = &record{symbols: normalizeList(r.Symbols), interval: interval}
	}
	s.log.Info("subscriptions loaded", logx.Int("users", len(s.users)))
	return s
}

// Degraded reports whether the initial load failed and the store started empty.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// GetOrCreate returns the user, creating it from the current defaults if absent.
func (s *Store) GetOrCreate(ctx context.Context, userID string) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, _ := s.getOrCreateLocked(ctx, userID)
	return toUser(userID, r)
}

func (s *Store) getOrCreateLocked(ctx context.Context, userID string) (*record, error) {
	if r, ok := s.users[userID]; ok {
		return r, nil
	}
	r := &record{
		symbols:  append([]string(nil), s.defaults.Symbols...),
		interval: s.defaults.IntervalHours,
	}
	s.users[userID] = r
	s.log.Info("user created", logx.String("user_id", userID), logx.Int("symbols", len(r.symbols)))
	return r, s.flushLocked(ctx)
}

// Subscribe adds symbol to the user's set. It reports whether it was newly added.
func (s *Store) Subscribe(ctx context.Context, userID, symbol string) (bool, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getOrCreateLocked(ctx, userID)
	if slices.Contains(r.symbols, symbol) {
		return false, err
	}
	r.symbols = append(r.symbols, symbol)
	return true, s.flushLocked(ctx)
}

// Unsubscribe removes symbol from the user's set. It reports whether it was present.
func (s *Store) Unsubscribe(ctx context.Context, userID, symbol string) (bool, error) {
	symbol = NormalizeSymbol(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getOrCreateLocked(ctx, userID)
	i := slices.Index(r.symbols, symbol)
	if i < 0 {
		return false, err
	}
	r.symbols = slices.Delete(r.symbols, i, i+1)
	return true, s.flushLocked(ctx)
}

// SetInterval stores hours clamped to at least MinIntervalHours and returns
// the stored value.
func (s *Store) SetInterval(ctx context.Context, userID string, hours int) (int, error) {
	hours = max(hours, MinIntervalHours)
	s.mu.Lock()
	defer s.mu.Unlock()

	r, _ := s.getOrCreateLocked(ctx, userID)
	r.interval = hours
	return hours, s.flushLocked(ctx)
}

// Interval returns the user's stored notification interval in hours.
func (s *Store) Interval(ctx context.Context, userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, _ := s.getOrCreateLocked(ctx, userID)
	return r.interval
}

// Symbols returns a copy of the user's symbols in subscription order.
func (s *Store) Symbols(ctx context.Context, userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, _ := s.getOrCreateLocked(ctx, userID)
	return append([]string(nil), r.symbols...)
}

// Lookup returns the user without creating it.
func (s *Store) Lookup(userID string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.users[userID]
	if !ok {
		return User{}, false
	}
	return toUser(userID, r), true
}

// ListUsers returns a sorted snapshot of all user ids.
func (s *Store) ListUsers() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// AllSubscribedSymbols returns the sorted union of every user's symbols.
func (s *Store) AllSubscribedSymbols() []string {
	s.mu.Lock()
	set := map[string]struct{}{}
	for _, r := range s.users {
		for _, sym := range r.symbols {
			set[sym] = struct{}{}
		}
	}
	s.mu.Unlock()

	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Defaults returns a copy of the current global defaults.
func (s *Store) Defaults() Defaults {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaults.clone()
}

// ApplyNewDefaults replaces the default symbol list and adds any missing
// default to every existing user. Symbols are never removed from a user.
// State is flushed once after the full pass.
func (s *Store) ApplyNewDefaults(ctx context.Context, symbols []string) error {
	symbols = normalizeList(symbols)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.defaults.Symbols = symbols
	added := 0
	for _, r := range s.users {
		for _, sym := range symbols {
			if !slices.Contains(r.symbols, sym) {
				r.symbols = append(r.symbols, sym)
				added++
			}
		}
	}
	s.log.Info("default symbols updated", logx.Strs("defaults", symbols), logx.Int("users", len(s.users)), logx.Int("added", added))
	return s.flushLocked(ctx)
}

func (s *Store) flushLocked(ctx context.Context) error {
	snap := make(storage.Snapshot, len(s.users))
	for id, r := range s.users {
		snap[id] = storage.UserRecord{Symbols: append([]string{}, r.symbols...), IntervalHours: r.interval}
	}
	if err := s.backend.Save(ctx, snap); err != nil {
		s.log.Error("saving subscriptions failed", logx.Err(err), logx.Int("users", len(snap)))
		return fmt.Errorf("save subscriptions: %w", err)
	}
	return nil
}

func toUser(id string, r *record) User {
	return User{ID: id, Symbols: append([]string(nil), r.symbols...), IntervalHours: r.interval}
}
