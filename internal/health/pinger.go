package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	logx "stockbot/pkg/logx"
)

const DefaultPingTimeout = 10 * time.Second

// Pinger requests its own public URL.
type Pinger struct {
	client *http.Client
	log    logx.Logger

	mu      sync.RWMutex
	url     string
	timeout time.Duration
}

func NewPinger(client *http.Client, log logx.Logger) *Pinger {
	if client == nil {
		client = &http.Client{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pinger{client: client, log: log, timeout: DefaultPingTimeout}
}

// Apply sets the target; an empty url disables pinging.
func (p *Pinger) Apply(url string, timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	p.mu.Lock()
	p.url = strings.TrimSpace(url)
	p.timeout = timeout
	p.mu.Unlock()
}

func (p *Pinger) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url != ""
}

// Ping issues one GET. Failures are logged and returned, never retried.
func (p *Pinger) Ping(ctx context.Context) error {
	p.mu.RLock()
	url, timeout := p.url, p.timeout
	p.mu.RUnlock()
	if url == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("self-ping request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Warn("self-ping failed", logx.String("url", url), logx.Err(err))
		return fmt.Errorf("self-ping: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		p.log.Warn("self-ping failed", logx.String("url", url), logx.Int("status", resp.StatusCode))
		return fmt.Errorf("self-ping: unexpected status %d", resp.StatusCode)
	}
	p.log.Info("self-ping ok", logx.String("url", url))
	return nil
}
