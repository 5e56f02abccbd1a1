package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spendlog/internal/log"
	"spendlog/internal/services"
	"spendlog/internal/view"
)

const requestIDHeader = "X-Request-ID"

// Server is the JSON API. It owns one list view and one stats view over the
// service's record store; handlers set their inputs and read the result
// under a per-view lock so concurrent requests never see each other's
// filters.
type Server struct {
	http.Server
	svc    *services.RecordService
	logger *log.Logger

	listMu sync.Mutex
	list   *view.List

	statsMu sync.Mutex
	stats   *view.Stats

	highlightLimit decimal.Decimal
	currency       string
	now            func() time.Time

	rateLimit    int
	rateWindow   time.Duration
	rateLimiter  *rateLimiter
	metrics      securityMetrics
	shutdownOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithHighlightLimit sets the amount above which rows are flagged.
func WithHighlightLimit(limit decimal.Decimal) Option {
	return func(s *Server) { s.highlightLimit = limit }
}

func WithCurrency(code string) Option {
	return func(s *Server) { s.currency = code }
}

// WithClock replaces time.Now for default record dates.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithRateLimit caps mutating requests per client IP within window.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(s *Server) {
		s.rateLimit = limit
		s.rateWindow = window
	}
}

// NewServer configures routes and views, returning a ready-to-run server.
func NewServer(addr string, svc *services.RecordService, opts ...Option) *Server {
	s := &Server{
		svc:            svc,
		highlightLimit: decimal.NewFromInt(500),
		currency:       "EUR",
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Discard()
	}
	s.logger = s.logger.WithComponent(log.ComponentHTTP)
	s.rateLimiter = newRateLimiter(s.rateLimit, s.rateWindow)

	s.list = view.NewList(svc.Store())
	s.stats = view.NewStats(svc.Store())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /api/expenses/{id}", s.handleGetExpense)
	mux.HandleFunc("PUT /api/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	var handler http.Handler = s.withSecurityHeaders(mux)
	handler = log.RequestIDMiddleware(requestIDOf)(handler)
	handler = log.Middleware(s.logger)(handler)
	handler = withRequestID(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Security returns the current security counters.
func (s *Server) Security() SecuritySnapshot {
	return s.metrics.snapshot()
}

// Shutdown stops background routines, detaches the views and shuts the
// HTTP server down. It runs once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
		s.list.Close()
		s.stats.Close()
	})
	return shutdownErr
}

// withRequestID reuses an incoming request ID or assigns a new one, and
// echoes it on the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sanitizeInput(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = generateRequestID()
		}
		r.Header.Set(requestIDHeader, id)
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func requestIDOf(r *http.Request) string {
	return r.Header.Get(requestIDHeader)
}

// withSecurityHeaders adds security headers, rate limits mutating requests
// and logs each completed request.
func (s *Server) withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		clientIP := extractClientIP(r)
		logger := log.FromContext(ctx)

		if detectSuspiciousRequest(r, &s.metrics) {
			logger.WarnContext(ctx, "Suspicious request",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		if isMutating(r.Method) && !s.rateLimiter.allow(clientIP, &s.metrics) {
			rw.Header().Set("Retry-After", "60")
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded", "").Write(rw)
		} else {
			next.ServeHTTP(rw, r)
		}

		log.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse().Data(struct {
		Status   string           `json:"status"`
		Records  int              `json:"records"`
		Security SecuritySnapshot `json:"security"`
	}{
		Status:   "ready",
		Records:  len(s.svc.ListRecords()),
		Security: s.Security(),
	}).Write(w)
}
