package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/sigslot/internal/events"
	"github.com/mattjoyce/sigslot/internal/faults"
	"github.com/mattjoyce/sigslot/internal/probe"
	"github.com/mattjoyce/sigslot/internal/rtos"
	"github.com/mattjoyce/sigslot/internal/signal"
)

// EngineStats exposes registry and pool usage. *signal.Context satisfies it.
type EngineStats interface {
	Stats() signal.Stats
}

// ThreadLister reports the run loops of the service.
type ThreadLister interface {
	Infos() []rtos.ThreadInfo
}

// ProbeLister reports probe delivery counters. *probe.Scheduler satisfies it.
type ProbeLister interface {
	Stats() []probe.Stats
}

// FaultLister reads persisted dispatch faults. *faults.Store satisfies it.
type FaultLister interface {
	List(ctx context.Context, limit int) ([]faults.Record, error)
	Count(ctx context.Context) (int, error)
}

// RecorderStats reports the fault recorder's counters.
type RecorderStats interface {
	Stats() faults.Stats
}

// EventSource is the live event feed. *events.Hub satisfies it.
type EventSource interface {
	SnapshotSince(lastID int64) []events.Event
	Subscribe() (<-chan events.Event, func())
}

// Threads adapts a slice of run loops to ThreadLister.
type Threads []*rtos.Thread

func (t Threads) Infos() []rtos.ThreadInfo {
	out := make([]rtos.ThreadInfo, 0, len(t))
	for _, th := range t {
		out = append(out, th.Info())
	}
	return out
}

// Config holds API server configuration
type Config struct {
	Listen  string
	Service string
}

// Deps are the components the server reports on. Faults and Recorder may be
// nil when fault persistence is disabled.
type Deps struct {
	Engine   EngineStats
	Threads  ThreadLister
	Probes   ProbeLister
	Faults   FaultLister
	Recorder RecorderStats
	Events   EventSource
}

// Server represents the HTTP diagnostics server
type Server struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, deps Deps, logger *slog.Logger) *Server {
	if deps.Threads == nil {
		deps.Threads = Threads(nil)
	}
	if deps.Events == nil {
		deps.Events = events.NewHub(1)
	}
	return &Server{
		config:    config,
		deps:      deps,
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server and blocks until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		// No write timeout: /events streams for as long as the client stays.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/stats", s.handleStats)
	r.Get("/threads", s.handleThreads)
	r.Get("/probes", s.handleProbes)
	r.Get("/faults", s.handleFaults)
	r.Get("/events", s.handleEvents)

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
