package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vickym250/jnschool/internal/core"
	"github.com/vickym250/jnschool/internal/log"
	"github.com/vickym250/jnschool/internal/metrics"
	"github.com/vickym250/jnschool/internal/middleware/ratelimit"
	"github.com/vickym250/jnschool/internal/middleware/security"
	"github.com/vickym250/jnschool/internal/middleware/trace"
	"github.com/vickym250/jnschool/internal/services"
)

// Deps are the collaborators the API serves.
type Deps struct {
	Admission *services.AdmissionService
	Fees      *services.FeeService
	Registry  *services.Registry
	Policy    core.OverpaymentPolicy

	Logger             *log.Logger
	Metrics            *metrics.Metrics
	RateLimitPerMinute int

	// Ready reports whether the backing store can serve requests. Nil means
	// always ready.
	Ready func(context.Context) error
	Clock func() time.Time
}

type Server struct {
	http.Server

	admission *services.AdmissionService
	fees      *services.FeeService
	registry  *services.Registry
	policy    core.OverpaymentPolicy
	metrics   *metrics.Metrics
	ready     func(context.Context) error
	now       func() time.Time

	validator *requestValidator
	limiter   *ratelimit.Limiter
	detector  *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	now := d.Clock
	if now == nil {
		now = time.Now
	}

	s := &Server{
		admission: d.Admission,
		fees:      d.Fees,
		registry:  d.Registry,
		policy:    d.Policy,
		metrics:   d.Metrics,
		ready:     d.Ready,
		now:       now,
		validator: newRequestValidator(),
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: d.RateLimitPerMinute}),
		detector:  security.NewDetector(),
	}

	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, trace.Route(h))
	}

	handle("GET /healthz", handleHealth)
	handle("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", trace.Route(s.metrics.Handler()))

	handle("POST /api/admissions", s.handleAdmit)
	handle("GET /api/registry/next", s.handleRegistryPeek)
	handle("POST /api/allocations/preview", s.handleAllocationPreview)

	handle("GET /api/students", s.handleListStudents)
	handle("GET /api/students/{id}", s.handleGetStudent)
	handle("PUT /api/students/{id}", s.handleUpdateStudent)
	handle("DELETE /api/students/{id}", s.handleDeleteStudent)
	handle("POST /api/students/{id}/readmissions", s.handleReadmit)
	handle("GET /api/students/{id}/ledger", s.handleLedger)
	handle("POST /api/students/{id}/fees/{session}/{month}/confirm", s.handleConfirmMonth)
	handle("GET /api/students/{id}/receipts/{session}/{month}", s.handleReceipt)

	handle("GET /api/overview", s.handleOverview)
	handle("GET /api/words", s.handleWords)

	handle("POST /api/parents", s.handleCreateParent)
	handle("GET /api/parents", s.handleListParents)
	handle("GET /api/parents/{id}", s.handleGetParent)

	tracer := trace.NewMiddleware(s.detector.ExtractClientIP, logger.WithComponent(log.ComponentHTTP), s.metrics)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)(h)
	h = s.detector.Middleware(func(*http.Request) { s.metrics.Flagged("suspicious") })(h)
	h = headers.Middleware(h)
	h = log.RequestIDMiddleware(trace.RequestID)(h)
	h = tracer.Middleware(h)
	h = log.ComponentMiddleware(log.ComponentHTTP)(h)
	h = log.Middleware(logger)(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.Flagged("rate_limit")
	slog.WarnContext(r.Context(), "Rate limit exceeded",
		"client_ip", s.detector.ExtractClientIP(r), "method", r.Method, "path", r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded, try again later").Write(w)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			slog.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "NOT_READY", "store unavailable").Write(w)
			return
		}
	}
	NewJSONResponse(map[string]string{"status": "ready"}).Write(w)
}
