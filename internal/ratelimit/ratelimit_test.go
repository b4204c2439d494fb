package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestAdmitCooldownAndExpiry(t *testing.T) {
	t.Parallel()

	steps := []struct {
		at   time.Duration
		want bool
	}{
		{0, true},
		{1 * time.Second, false},
		{4 * time.Second, true},
		{61 * time.Second, true},
	}
	l := New(Config{})
	for _, s := range steps {
		if got := l.Admit("u1", t0.Add(s.at)); got != s.want {
			t.Fatalf("Admit(t0+%s) = %v, want %v", s.at, got, s.want)
		}
	}
}

func TestRejectDoesNotRefresh(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	if !l.Admit("u1", t0) {
		t.Fatal("first command rejected")
	}
	// Rejected attempts in between must not push the window forward.
	for _, d := range []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond, 2900 * time.Millisecond} {
		if l.Admit("u1", t0.Add(d)) {
			t.Fatalf("Admit(t0+%s) accepted inside cooldown", d)
		}
	}
	if !l.Admit("u1", t0.Add(3*time.Second)) {
		t.Fatal("Admit(t0+3s) rejected at cooldown boundary")
	}
}

func TestExpiryUsesLastAcceptedTime(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	l.Admit("u1", t0)
	refreshed := t0.Add(4 * time.Second)
	if !l.Admit("u1", refreshed) {
		t.Fatal("refresh rejected")
	}
	// Just inside the cooldown of the refreshed entry, far from t0.
	if l.Admit("u1", refreshed.Add(2900*time.Millisecond)) {
		t.Fatal("cooldown measured from the first entry instead of the refreshed one")
	}
	// 61s after the refreshed entry the entry has expired.
	if !l.Admit("u1", refreshed.Add(61*time.Second)) {
		t.Fatal("expired entry still rejects")
	}
}

func TestUsersAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	if !l.Admit("u1", t0) || !l.Admit("u2", t0) {
		t.Fatal("distinct users share a gate")
	}
	if l.Admit("u1", t0.Add(time.Second)) {
		t.Fatal("u1 admitted inside cooldown")
	}
}

func TestMaxEntriesBoundsMemory(t *testing.T) {
	t.Parallel()

	l := New(Config{MaxEntries: 10})
	for i := range 50 {
		l.Admit(fmt.Sprintf("u%d", i), t0)
	}
	if n := l.Len(); n != 10 {
		t.Fatalf("Len = %d, want 10", n)
	}
}

func TestAdmitConcurrent(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit("same", t0) {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if accepted != 1 {
		t.Fatalf("accepted = %d, want 1", accepted)
	}
}
