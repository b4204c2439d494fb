package health

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"stockbot/internal/dispatch"
	"stockbot/internal/eventbus"
	"stockbot/internal/storage"
	logx "stockbot/pkg/logx"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	probeTimeout = 10 * time.Second
)

// StateReader reads persisted subscription state. storage.Store satisfies it.
type StateReader interface {
	Load(ctx context.Context) (storage.Snapshot, error)
}

type PriceChecker interface {
	HasPrice(ctx context.Context, symbol string) (bool, error)
}

// Report is the JSON body of GET /.
type Report struct {
	Status    string `json:"status"`
	Database  string `json:"database,omitempty"`
	API       string `json:"api,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`

	LastDispatch *dispatch.CycleReport `json:"last_dispatch,omitempty"`
}

type Checker struct {
	state       StateReader
	prices      PriceChecker
	latest      *eventbus.Latest
	probeSymbol string
	log         logx.Logger
	now         func() time.Time
}

// NewChecker builds a checker. latest may be nil.
func NewChecker(state StateReader, prices PriceChecker, latest *eventbus.Latest, probeSymbol string, log logx.Logger) *Checker {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(probeSymbol) == "" {
		probeSymbol = "AAPL"
	}
	return &Checker{state: state, prices: prices, latest: latest, probeSymbol: probeSymbol, log: log, now: time.Now}
}

// Check reads the state store and looks up the probe symbol. A state read
// failure is unhealthy; a failed price lookup only degrades.
func (c *Checker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	rep := Report{Timestamp: c.now().UTC().Format(time.RFC3339)}
	if _, err := c.state.Load(ctx); err != nil {
		c.log.Error("health check: state read failed", logx.Err(err))
		rep.Status = StatusUnhealthy
		rep.Error = err.Error()
		return rep
	}
	rep.Database = "connected"

	ok, err := c.prices.HasPrice(ctx, c.probeSymbol)
	switch {
	case err != nil:
		c.log.Warn("health check: quote probe failed", logx.String("symbol", c.probeSymbol), logx.Err(err))
		rep.API = "error"
	case !ok:
		c.log.Warn("health check: quote probe returned no price", logx.String("symbol", c.probeSymbol))
		rep.API = "error"
	default:
		rep.API = "connected"
	}
	rep.Status = StatusHealthy
	if rep.API != "connected" {
		rep.Status = StatusDegraded
	}

	if c.latest != nil {
		if e, ok := c.latest.Get(dispatch.EventCycle); ok {
			if cr, ok := e.Data.(dispatch.CycleReport); ok {
				rep.LastDispatch = &cr
			}
		}
	}
	return rep
}

func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rep := c.Check(r.Context())
	code := http.StatusOK
	if rep.Status == StatusUnhealthy {
		code = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(rep)
}
