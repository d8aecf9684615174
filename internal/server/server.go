package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/ytget/yt-audio/internal/jobs"
)

// HTTP server defaults
const (
	DefaultBatchWorkers = 3
	ReadHeaderTimeout   = 10 * time.Second
	IdleTimeout         = 120 * time.Second
	MaxRequestBodyBytes = 1 << 20
	HealthMessage       = "yt-audio API is running"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and lifecycle logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCORSOrigins sets the allowed CORS origins; "*" allows any origin
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithBatchWorkers sets the per-batch concurrency used when a batch request
// does not specify max_workers
func WithBatchWorkers(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.batchWorkers = n
		}
	}
}

// WithStream mounts a websocket handler at /ws
func WithStream(h http.Handler) Option {
	return func(s *Server) {
		s.stream = h
	}
}

// Server is the HTTP front end of the job service.
type Server struct {
	svc          *jobs.Service
	logger       *slog.Logger
	corsOrigins  []string
	batchWorkers int
	stream       http.Handler

	httpServer *http.Server
}

// New creates a server listening on addr
func New(addr string, svc *jobs.Service, opts ...Option) *Server {
	s := &Server{
		svc:          svc,
		logger:       slog.Default(),
		corsOrigins:  []string{"*"},
		batchWorkers: DefaultBatchWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		IdleTimeout:       IdleTimeout,
	}
	return s
}

// Handler returns the routed handler with CORS, panic recovery and request logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/download", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/download/batch", s.handleCreateBatch).Methods(http.MethodPost)
	r.HandleFunc("/download/playlist", s.handleCreatePlaylist).Methods(http.MethodPost)
	r.HandleFunc("/downloads", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/downloads/{id}", s.handleGet).Methods(http.MethodGet)
	if s.stream != nil {
		r.Handle("/ws", s.stream).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	var h http.Handler = r
	h = handlers.CORS(
		handlers.AllowedOrigins(s.corsOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
	)(h)
	h = handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
	return h
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.logger.Info("http request",
		"method", p.Request.Method,
		"path", p.URL.Path,
		"status", p.StatusCode,
		"size", p.Size,
		"duration", time.Since(p.TimeStamp),
	)
}

// recoveryLogger adapts slog to handlers.RecoveryHandlerLogger
type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("panic while serving request", "panic", fmt.Sprint(v...))
}
