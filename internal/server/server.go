package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ivkov/inboxtriage/internal/audit"
	"github.com/ivkov/inboxtriage/internal/instrumentation"
	"github.com/ivkov/inboxtriage/internal/triage"
)

const (
	// DefaultAddr is the default listen address for the REST API.
	DefaultAddr = ":8080"

	// DefaultReadHeaderTimeout bounds how long a client may take to send headers.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful shutdown.
	DefaultShutdownTimeout = 30 * time.Second

	// defaultStatsWindow is the reporting window when the request names none.
	defaultStatsWindow = 24 * time.Hour
)

// CycleRunner runs one triage cycle over the mailbox.
type CycleRunner interface {
	RunCycle(ctx context.Context) (triage.CycleResult, error)
}

// RecordStore reads the delivery audit log.
type RecordStore interface {
	ListRecent(ctx context.Context, category string, limit int) ([]audit.Record, error)
	Stats(ctx context.Context, since time.Time) (audit.Stats, error)
}

// Server is the REST API for triggering cycles and browsing results.
type Server struct {
	runner  CycleRunner
	records RecordStore
	auth    AuthConfig

	addr    string
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	health  *HealthChecker

	httpServer *http.Server
	// cycleRunning rejects concurrent process-batch requests.
	cycleRunning atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics enables request metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates the REST API server.
func NewServer(runner CycleRunner, records RecordStore, auth AuthConfig, opts ...Option) *Server {
	s := &Server{
		runner:  runner,
		records: records,
		auth:    auth,
		addr:    DefaultAddr,
		logger:  slog.Default(),
		health:  NewHealthChecker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.auth.TokenTTL <= 0 {
		s.auth.TokenTTL = time.Hour
	}
	return s
}

// Handler returns the routed HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/token", s.instrument("/token", s.TokenHandler()))
	mux.Handle("/api/v1/emails/process-batch",
		s.instrument("/api/v1/emails/process-batch", s.requireAuth(s.ProcessBatchHandler())))
	mux.Handle("/api/v1/emails/records",
		s.instrument("/api/v1/emails/records", s.requireAuth(s.RecordsHandler())))
	mux.Handle("/api/v1/dashboard/stats",
		s.instrument("/api/v1/dashboard/stats", s.requireAuth(s.StatsHandler())))

	s.health.RegisterHealthEndpoints(mux)

	return mux
}

// Start runs the HTTP server until Shutdown is called. Blocking.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	s.health.SetReady(true)
	s.logger.Info("starting API server", "addr", s.addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting new requests and drains in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// instrument records request count and duration per route.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Context(), r.Method, route, sw.status, time.Since(start))
		}
	})
}

// statusWriter captures the response status code for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// errorResponse is the JSON body for error replies.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
