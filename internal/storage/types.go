package storage

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/afero"
)

var (
	ErrClosed = errors.New("storage closed")
	// ErrCorrupt wraps decode failures of persisted state.
	ErrCorrupt = errors.New("storage: persisted state is corrupt")
)

// Config configures storage.
//
// Driver values:
//   - "file" (or "json"): JSON document at Path
//   - "sqlite" (or "sqlite3"): SQLite database at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means 5s
	// Fs backs the file driver. Nil means the OS filesystem.
	Fs afero.Fs
}

// UserRecord is the persisted form of one user.
type UserRecord struct {
	Symbols       []string `json:"subscribed_stocks"`
	IntervalHours int      `json:"notification_frequency"`
}

// Snapshot maps user id to its record.
type Snapshot map[string]UserRecord

// Clone deep-copies s so callers can hand it to a backend outside their lock.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, r := range s {
		out[id] = UserRecord{Symbols: append([]string(nil), r.Symbols...), IntervalHours: r.IntervalHours}
	}
	return out
}

// AuditEntry records an operator action.
type AuditEntry struct {
	At            time.Time `json:"at"`
	ActorID       int64     `json:"actor_id"`
	ActorUsername string    `json:"actor_username,omitempty"`
	ChatID        int64     `json:"chat_id"`
	Action        string    `json:"action"`
	Target        string    `json:"target,omitempty"`
	OK            bool      `json:"ok"`
	Error         string    `json:"error,omitempty"`
	MetaJSON      string    `json:"meta,omitempty"`
}

// Store is the persistence API the subscription store and admin commands use.
type Store interface {
	// Load returns the persisted users. A missing database yields an empty
	// snapshot; undecodable data yields an error wrapping ErrCorrupt.
	Load(ctx context.Context) (Snapshot, error)
	// Save replaces all persisted users with snap.
	Save(ctx context.Context, snap Snapshot) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}
