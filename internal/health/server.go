package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	logx "stockbot/pkg/logx"
)

type Config struct {
	Enabled bool
	Addr    string
}

// Server manages the lifecycle of the health HTTP listener.
type Server struct {
	mu      sync.Mutex
	log     logx.Logger
	handler http.Handler
	srv     *http.Server
	ln      net.Listener
	addr    string
}

func NewServer(h http.Handler, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{log: log, handler: h}
}

// Router exposes GET / and GET /healthz.
func Router(h http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/", h).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/healthz", h).Methods(http.MethodGet, http.MethodHead)
	return r
}

// Apply starts or stops the listener according to cfg. A changed address
// restarts it.
func (s *Server) Apply(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !cfg.Enabled {
		s.stopLocked(ctx)
		return nil
	}
	if s.srv != nil && s.addr == cfg.Addr {
		return nil
	}
	s.stopLocked(ctx)
	return s.startLocked(cfg)
}

func (s *Server) startLocked(cfg Config) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		s.log.Warn("health listen failed", logx.String("addr", cfg.Addr), logx.Err(err))
		return err
	}
	srv := &http.Server{
		Handler:           Router(s.handler),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	s.srv, s.ln, s.addr = srv, ln, cfg.Addr
	actual := ln.Addr().String()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("health server error", logx.String("addr", actual), logx.Err(err))
		}
	}()
	s.log.Info("health endpoint enabled", logx.String("addr", actual))
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Server) stopLocked(ctx context.Context) {
	if s.srv == nil {
		return
	}
	srv, ln := s.srv, s.ln
	s.srv, s.ln = nil, nil
	addr := s.addr
	s.addr = ""

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("health shutdown error", logx.String("addr", addr), logx.Err(err))
	}
	_ = ln.Close()
	s.log.Info("health endpoint disabled", logx.String("addr", addr))
}

// Addr reports the bound address if running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}
