// Package api serves the management HTTP API: reminder and trigger CRUD,
// history, the one-click cancellation link, manual ticks and health.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"mindwatch/internal/clock"
	"mindwatch/internal/history"
	"mindwatch/internal/mind"
	"mindwatch/internal/runtime/supervisor"
	"mindwatch/internal/task/scheduler"
	logx "mindwatch/pkg/logx"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultAddr = "127.0.0.1:8080"
	maxBody     = 1 << 20
)

// Config is the hot-reloadable part of the server. Changing Addr or Pprof
// restarts the listener; token changes apply to the next request.
type Config struct {
	Enabled      bool
	Addr         string
	Token        string
	CloseToken   string
	Pprof        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 60 * time.Second
	}
	return c
}

// Store is the document access the handlers need.
type Store interface {
	LoadMinds(ctx context.Context) (*mind.Set, bool, error)
	SaveMinds(ctx context.Context, set *mind.Set) error
	LoadTriggers(ctx context.Context) (mind.Triggers, bool, error)
	SaveTriggers(ctx context.Context, t mind.Triggers) error
	LoadHistory(ctx context.Context) (mind.History, bool, error)
	SaveHistory(ctx context.Context, h mind.History) error
}

// Runner triggers and inspects scheduled jobs.
type Runner interface {
	RunNow(ctx context.Context, name string) error
	Snapshot() scheduler.Snapshot
}

type Options struct {
	Store Store
	// Recorder is used for manual history inserts and clears. Nil builds
	// one over Store with history.ManualCap.
	Recorder *history.Recorder
	Runner   Runner
	// Job is the schedule name POST /api/run triggers.
	Job      string
	Clock    clock.Clock
	Gatherer prometheus.Gatherer
	// Workers, when set, adds supervised goroutine stats to GET /api/status.
	Workers  func() []supervisor.Stats
	Log      logx.Logger
}

type Server struct {
	opts Options
	log  logx.Logger

	cmu sync.RWMutex
	cfg Config

	mu   sync.Mutex
	srv  *http.Server
	ln   net.Listener
	addr string
	mode Config
}

func New(cfg Config, opts Options) *Server {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.Recorder == nil && opts.Store != nil {
		opts.Recorder = history.NewRecorder(opts.Store, history.ManualCap, opts.Clock.Now)
	}
	return &Server{
		opts: opts,
		log:  opts.Log.With(logx.String("comp", "api")),
		cfg:  cfg.withDefaults(),
	}
}

func (s *Server) config() Config {
	s.cmu.RLock()
	defer s.cmu.RUnlock()
	return s.cfg
}

// Apply stores cfg and starts, stops or restarts the listener to match it.
func (s *Server) Apply(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()
	s.cmu.Lock()
	s.cfg = cfg
	s.cmu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !cfg.Enabled {
		s.stopLocked(ctx)
		return nil
	}
	if s.srv != nil && s.mode.Addr == cfg.Addr && s.mode.Pprof == cfg.Pprof &&
		s.mode.ReadTimeout == cfg.ReadTimeout && s.mode.WriteTimeout == cfg.WriteTimeout {
		return nil
	}
	s.stopLocked(ctx)
	return s.startLocked(cfg)
}

func (s *Server) startLocked(cfg Config) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	s.srv = srv
	s.ln = ln
	s.addr = ln.Addr().String()
	s.mode = cfg

	addr := s.addr
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("api server error", logx.String("addr", addr), logx.Err(err))
		}
	}()
	s.log.Info("api listening", logx.String("addr", addr), logx.Bool("pprof", cfg.Pprof))
	return nil
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Server) stopLocked(ctx context.Context) {
	if s.srv == nil {
		return
	}
	srv, addr := s.srv, s.addr
	s.srv, s.ln, s.addr = nil, nil, ""

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("api shutdown error", logx.String("addr", addr), logx.Err(err))
		_ = srv.Close()
	}
	s.log.Info("api stopped", logx.String("addr", addr))
}

// Addr reports the bound address while running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) now() string {
	return clock.Stamp(s.opts.Clock.Now())
}
