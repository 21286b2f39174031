// Package devserver implements a local stand-in for the voice backend. It
// speaks the same WebSocket protocol the client engine expects and serves
// the preference REST API on top of a [prefs.Store], so the full client
// stack can be exercised end to end without any speech models behind it.
//
// Every utterance gets the same canned assistant reply and a short synthetic
// tone as spoken audio; the point is wire fidelity, not conversation.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/MihirPatel5/WhisperBrain/internal/health"
	"github.com/MihirPatel5/WhisperBrain/internal/observe"
	"github.com/MihirPatel5/WhisperBrain/pkg/prefs"
)

const (
	// defaultReply is served when no canned reply is configured.
	defaultReply = "I heard you loud and clear."

	// shutdownTimeout bounds the graceful drain of in-flight HTTP requests.
	shutdownTimeout = 10 * time.Second
)

// Config carries the knobs for a development server.
type Config struct {
	// CannedReply is the assistant text returned for every utterance.
	// Empty selects a default.
	CannedReply string

	// RPS is the sustained per-connection rate of inbound WebSocket
	// messages; Burst is the token-bucket capacity. RPS zero disables
	// rate limiting.
	RPS   float64
	Burst int

	// Store persists the preference document behind the REST API.
	// Required.
	Store prefs.Store

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Metrics defaults to the process-wide instrument set.
	Metrics *observe.Metrics
}

// Server is the development backend. Construct it with New, mount it via
// Handler, or run it directly with Serve.
type Server struct {
	reply   string
	limit   rate.Limit
	burst   int
	store   prefs.Store
	log     *slog.Logger
	metrics *observe.Metrics

	mu    sync.Mutex
	conns map[string]*conversation

	// handlers tracks hijacked WebSocket handlers, which http.Server.Shutdown
	// does not wait for.
	handlers sync.WaitGroup
}

// New validates cfg and returns a ready Server.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("devserver: Config.Store is required")
	}
	if cfg.CannedReply == "" {
		cfg.CannedReply = defaultReply
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Server{
		reply:   cfg.CannedReply,
		limit:   rate.Limit(cfg.RPS),
		burst:   cfg.Burst,
		store:   cfg.Store,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// Handler returns the full route table. The voice socket is mounted outside
// the HTTP middleware because the WebSocket upgrade needs the raw
// ResponseWriter for hijacking.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/preferences", s.handleGetPrefs)
	api.HandleFunc("POST /api/preferences", s.handleUpdatePrefs)
	api.HandleFunc("POST /api/preferences/reset", s.handleResetPrefs)
	api.HandleFunc("GET /api/preferences/{category}/{key}", s.handleGetPrefValue)

	health.New(health.Checker{Name: "prefs", Check: s.checkStore}).Register(api)
	api.Handle("GET /metrics", promhttp.Handler())

	root := http.NewServeMux()
	root.HandleFunc("GET /voice", s.handleVoice)
	root.Handle("/", observe.Middleware(s.metrics)(api))
	return root
}

// Serve listens on addr until ctx is cancelled, then drains gracefully.
// WebSocket sessions are released by the cancellation itself: every request
// context derives from ctx, so blocked reads fail and handlers unwind.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.log.Info("development server listening", "addr", addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("devserver: listen on %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(drainCtx); err != nil {
			return fmt.Errorf("devserver: shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	s.handlers.Wait()
	return err
}

// ActiveSessions reports the number of connected voice sessions.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(c *conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		s.conns = make(map[string]*conversation)
	}
	s.conns[c.sessionID] = c
}

func (s *Server) untrack(c *conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c.sessionID)
}

// checkStore probes the preference store for the readiness endpoint. An
// empty store is healthy; only a failing backend is not.
func (s *Server) checkStore(ctx context.Context) error {
	if _, err := s.store.Load(ctx); err != nil && !errors.Is(err, prefs.ErrNotFound) {
		return err
	}
	return nil
}
