// Package ratelimit gates user-initiated commands with a per-user cooldown.
package ratelimit

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultCooldown   = 3 * time.Second
	DefaultTTL        = 60 * time.Second
	DefaultMaxEntries = 1000
)

// Limiter remembers the last accepted command time per user. A command inside
// the cooldown is rejected and does not move the timestamp; entries older than
// the TTL count as absent.
//
// The expirable LRU bounds memory. Expiry is also checked against the caller's
// clock so Admit is deterministic for a given sequence of times.
type Limiter struct {
	cooldown time.Duration
	ttl      time.Duration

	mu   sync.Mutex
	last *expirable.LRU[string, time.Time]
}

type Config struct {
	Cooldown   time.Duration
	TTL        time.Duration
	MaxEntries int
}

func New(cfg Config) *Limiter {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	return &Limiter{
		cooldown: cfg.Cooldown,
		ttl:      cfg.TTL,
		last:     expirable.NewLRU[string, time.Time](cfg.MaxEntries, nil, cfg.TTL),
	}
}

// Admit reports whether userID may run a command at now.
func (l *Limiter) Admit(userID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.last.Peek(userID); ok {
		if age := now.Sub(prev); age < l.ttl && age < l.cooldown {
			return false
		}
	}
	l.last.Add(userID, now)
	return true
}

// Len is the number of users currently tracked.
func (l *Limiter) Len() int { return l.last.Len() }
