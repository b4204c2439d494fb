package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stockbot/internal/dispatch"
	"stockbot/internal/eventbus"
	"stockbot/internal/health"
	"stockbot/internal/storage"
	logx "stockbot/pkg/logx"
)

type stateFunc func(context.Context) (storage.Snapshot, error)

func (f stateFunc) Load(ctx context.Context) (storage.Snapshot, error) { return f(ctx) }

type priceFunc func(context.Context, string) (bool, error)

func (f priceFunc) HasPrice(ctx context.Context, s string) (bool, error) { return f(ctx, s) }

var (
	stateOK  = stateFunc(func(context.Context) (storage.Snapshot, error) { return storage.Snapshot{}, nil })
	priceOK  = priceFunc(func(context.Context, string) (bool, error) { return true, nil })
	priceErr = priceFunc(func(context.Context, string) (bool, error) { return false, errors.New("upstream down") })
)

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, body
}

func TestHealthStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		state    health.StateReader
		prices   health.PriceChecker
		code     int
		status   string
		api      any
		database any
	}{
		{"healthy", stateOK, priceOK, http.StatusOK, "healthy", "connected", "connected"},
		{"degraded on provider error", stateOK, priceErr, http.StatusOK, "degraded", "error", "connected"},
		{"degraded on missing price", stateOK, priceFunc(func(context.Context, string) (bool, error) { return false, nil }), http.StatusOK, "degraded", "error", "connected"},
		{"unhealthy on state error", stateFunc(func(context.Context) (storage.Snapshot, error) {
			return nil, storage.ErrCorrupt
		}), priceOK, http.StatusInternalServerError, "unhealthy", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := health.NewChecker(tt.state, tt.prices, nil, "", logx.Nop())

			code, body := get(t, health.Router(c), "/")

			require.Equal(t, tt.code, code)
			require.Equal(t, tt.status, body["status"])
			require.Equal(t, tt.api, body["api"])
			require.Equal(t, tt.database, body["database"])
			require.NotEmpty(t, body["timestamp"])
			if tt.status == "unhealthy" {
				require.Contains(t, body["error"], "corrupt")
			}
		})
	}
}

func TestProbeUsesConfiguredSymbol(t *testing.T) {
	t.Parallel()
	var seen atomic.Value
	c := health.NewChecker(stateOK, priceFunc(func(_ context.Context, s string) (bool, error) {
		seen.Store(s)
		return true, nil
	}), nil, "MSFT", logx.Nop())

	rep := c.Check(context.Background())

	require.Equal(t, health.StatusHealthy, rep.Status)
	require.Equal(t, "MSFT", seen.Load())
}

func TestReportIncludesLastDispatch(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	latest := eventbus.NewLatest()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go latest.Run(ctx, bus)

	c := health.NewChecker(stateOK, priceOK, latest, "AAPL", logx.Nop())
	rep := dispatch.CycleReport{ID: "c1", Users: 3, Sent: 2, Skipped: 1}
	require.Eventually(t, func() bool {
		bus.Publish(eventbus.Event{Type: dispatch.EventCycle, Time: time.Now(), Data: rep})
		return c.Check(context.Background()).LastDispatch != nil
	}, 2*time.Second, 10*time.Millisecond)

	_, body := get(t, health.Router(c), "/healthz")
	last, ok := body["last_dispatch"].(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 2, last["sent"])
}

func TestRouterRejectsOtherMethodsAndPaths(t *testing.T) {
	t.Parallel()
	r := health.Router(health.NewChecker(stateOK, priceOK, nil, "", logx.Nop()))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerApplyLifecycle(t *testing.T) {
	t.Parallel()
	s := health.NewServer(health.NewChecker(stateOK, priceOK, nil, "", logx.Nop()), logx.Nop())
	ctx := context.Background()

	require.NoError(t, s.Apply(ctx, health.Config{Enabled: true, Addr: "127.0.0.1:0"}))
	addr := s.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Apply(ctx, health.Config{Enabled: false}))
	require.Empty(t, s.Addr())
}

func TestPinger(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	var code atomic.Int32
	code.Store(http.StatusOK)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(code.Load()))
	}))
	defer ts.Close()

	p := health.NewPinger(ts.Client(), logx.Nop())
	require.False(t, p.Enabled())
	require.NoError(t, p.Ping(context.Background()), "disabled pinger is a no-op")
	require.Zero(t, hits.Load())

	p.Apply(ts.URL, time.Second)
	require.True(t, p.Enabled())
	require.NoError(t, p.Ping(context.Background()))

	code.Store(http.StatusServiceUnavailable)
	require.ErrorContains(t, p.Ping(context.Background()), "503")
	require.EqualValues(t, 2, hits.Load())
}

func TestPingerTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	p := health.NewPinger(ts.Client(), logx.Nop())
	p.Apply(ts.URL, 50*time.Millisecond)

	require.Error(t, p.Ping(context.Background()))
}
