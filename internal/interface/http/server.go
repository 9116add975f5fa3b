// Package http exposes the training session lifecycle and the promotion
// review workflow as a JSON REST API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sharpmind/trainer-hub/internal/interface/http/handlers"
	"github.com/sharpmind/trainer-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout bounds the handler context of API requests.
	RequestTimeout time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	// MaxBodyBytes - maximum size of request bodies.
	MaxBodyBytes int64

	// AllowedOrigins - allowed origins for CORS. Empty disables CORS.
	AllowedOrigins []string

	// RateLimitPerMinute - requests per minute per client (0 = disabled).
	RateLimitPerMinute int

	// APIKeyHeader - header name for API key authentication.
	APIKeyHeader string

	// Version is reported by the root and health endpoints.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        60 * time.Second,
		RequestTimeout:     20 * time.Second,
		MaxHeaderBytes:     1 << 20, // 1 MB
		MaxBodyBytes:       64 << 10,
		RateLimitPerMinute: 600,
		APIKeyHeader:       "X-API-Key",
		Version:            "dev",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker reports service health.
type HealthChecker interface {
	Check(ctx context.Context) handlers.HealthStatus
}

// Dependencies contains everything the HTTP handlers call into.
// CriteriaAdmin, Jobs, DeadLetters, Health and Auth are optional.
type Dependencies struct {
	Sessions      SessionService
	Reviews       ReviewService
	Annotator     AnnotateService
	Analysis      AnalysisService
	Decisions     DecisionQueries
	Criteria      CriteriaQuery
	CriteriaAdmin CriteriaAdmin
	Jobs          JobRunner
	DeadLetters   DeadLetters

	Health HealthChecker
	Auth   *handlers.APIKeyAuth
	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     chi.Router
	logger     *logger.Logger

	rateLimiter *rateLimiter

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		router: chi.NewRouter(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	s.logger = s.logger.With(logger.Component("http"))

	if config.RateLimitPerMinute > 0 {
		s.rateLimiter = newRateLimiter(config.RateLimitPerMinute, time.Minute)
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

// Handler returns the root handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(s.loggingMiddleware, s.recoveryMiddleware)
	r.Use(handlers.SecurityHeadersMiddleware)
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", s.config.APIKeyHeader, "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
			MaxAge:         300,
		}))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/live", s.handleLive)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1
	// ─────────────────────────────────────────────────────────────────────────
	r.Route("/api/v1", func(api chi.Router) {
		if s.deps.Auth != nil {
			api.Use(s.deps.Auth.Middleware)
		}
		if s.rateLimiter != nil {
			api.Use(s.rateLimitMiddleware)
		}
		if s.config.RequestTimeout > 0 {
			api.Use(middleware.Timeout(s.config.RequestTimeout))
		}
		if s.config.MaxBodyBytes > 0 {
			api.Use(handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes))
		}

		api.Route("/sessions", func(sr chi.Router) {
			sr.Use(handlers.NoCacheMiddleware)
			sr.Post("/", s.handleCreateSession)
			sr.Get("/", s.handleListActive)
			sr.Route("/{sessionID}", func(one chi.Router) {
				one.Get("/", s.handleGetStatus)
				one.Get("/exercise", s.handleGetExercise)
				one.Post("/answers", s.handleSubmitAnswer)
				one.Post("/skip", s.handleSkip)
				one.Post("/hints", s.handleRequestHint)
				one.Post("/pause", s.handlePause)
				one.Post("/resume", s.handleResume)
				one.Post("/complete", s.handleComplete)
				one.Put("/notes", s.handleAnnotate)
				one.Get("/analysis", s.handleAnalysis)
			})
		})

		api.Route("/promotions", func(pr chi.Router) {
			pr.Get("/pending", s.handlePendingDecisions)
			pr.Get("/{decisionID}", s.handleGetDecision)
			pr.Post("/{decisionID}/review", s.handleReviewDecision)
		})
		api.Get("/students/{studentID}/promotions", s.handlePromotionHistory)
		api.Get("/criteria/{curriculum}/{level}", s.handleGetCriteria)

		if s.deps.CriteriaAdmin != nil {
			api.Put("/admin/criteria", s.handleReplaceCriteria)
		}
		if s.deps.Jobs != nil {
			api.Get("/admin/jobs", s.handleListJobs)
			api.Post("/admin/jobs/{jobName}/run", s.handleRunJob)
		}
		if s.deps.DeadLetters != nil {
			api.Get("/admin/dead-letters", s.handleListDeadLetters)
			api.Post("/admin/dead-letters/retry", s.handleRetryDeadLetters)
		}
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// loggingMiddleware logs all HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		reqLogger := s.logger.WithRequestID(middleware.GetReqID(r.Context()))
		next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context(), reqLogger)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []logger.Field{
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.StatusCode(status),
			logger.Latency(time.Since(start)),
			logger.String("ip", r.RemoteAddr),
		}
		if status >= http.StatusInternalServerError {
			reqLogger.Warn("http request", fields...)
			return
		}
		reqLogger.Info("http request", fields...)
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.FromContext(r.Context()).Error("panic recovered",
					logger.Any("error", rec),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
				)
				writeError(w, r, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware limits requests per API key, or per IP without one.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(s.config.APIKeyHeader)
		if key == "" {
			key = r.RemoteAddr
		}
		if !s.rateLimiter.Allow(key, time.Now()) {
			w.Header().Set("Retry-After", "60")
			writeError(w, r, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Count     int       `json:"count,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	writeJSONWithMeta(w, r, status, data, nil)
}

func writeJSONWithMeta(w http.ResponseWriter, r *http.Request, status int, data interface{}, meta *ResponseMeta) {
	if meta == nil {
		meta = &ResponseMeta{}
	}
	meta.Timestamp = time.Now().UTC()
	meta.Version = "v1"

	writeEnvelope(w, status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      meta,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeEnvelope(w, status, JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func writeEnvelope(w http.ResponseWriter, status int, body JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON decodes an optional JSON body into dst. An empty body leaves
// dst untouched.
func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// rateLimiter is a sliding window counter per client key. Stale keys are
// dropped lazily once the map grows past sweepThreshold.
type rateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

const sweepThreshold = 10000

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

func (rl *rateLimiter) Allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	windowStart := now.Add(-rl.window)
	if len(rl.requests) > sweepThreshold {
		rl.sweep(windowStart)
	}

	valid := prune(rl.requests[key], windowStart)
	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}
	rl.requests[key] = append(valid, now)
	return true
}

func (rl *rateLimiter) sweep(windowStart time.Time) {
	for key, requests := range rl.requests {
		if valid := prune(requests, windowStart); len(valid) == 0 {
			delete(rl.requests, key)
		} else {
			rl.requests[key] = valid
		}
	}
}

func prune(requests []time.Time, windowStart time.Time) []time.Time {
	i := 0
	for i < len(requests) && !requests[i].After(windowStart) {
		i++
	}
	return requests[i:]
}
