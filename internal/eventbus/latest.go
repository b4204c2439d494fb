package eventbus

import (
	"context"
	"sync"
)

// Latest keeps the most recent event of each type seen on a bus.
type Latest struct {
	mu   sync.RWMutex
	last map[string]Event
}

func NewLatest() *Latest { return &Latest{last: map[string]Event{}} }

// Run records events until ctx ends.
func (l *Latest) Run(ctx context.Context, bus Bus) {
	ch, unsub := bus.Subscribe(32)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			l.mu.Lock()
			l.last[e.Type] = e
			l.mu.Unlock()
		}
	}
}

func (l *Latest) Get(typ string) (Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.last[typ]
	return e, ok
}
