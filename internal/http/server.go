package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"khorcha/internal/auth"
	"khorcha/internal/core"
	applog "khorcha/internal/log"
	"khorcha/internal/middleware/ratelimit"
	"khorcha/internal/middleware/security"
	"khorcha/internal/middleware/trace"
)

// ExpenseService is what the API needs from the record store adapter.
type ExpenseService interface {
	Subscribe(ctx context.Context, userID string, fn func(core.Snapshot)) (func(), error)
	Snapshot(ctx context.Context, userID string) (core.Snapshot, error)
	Create(ctx context.Context, userID string, e core.Expense) (core.Expense, error)
	Update(ctx context.Context, userID, id string, patch core.Patch) (core.Expense, error)
	Delete(ctx context.Context, userID, id string) error
}

// Server serves the expense API.
type Server struct {
	http.Server

	service ExpenseService
	tokens  *auth.TokenService
	ready   func(ctx context.Context) error
	now     func() time.Time
	logger  *applog.Logger
	streams *streamRegistry

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	heartbeat   time.Duration
	closing     chan struct{}
	closeOnce   sync.Once
	startedAt   time.Time
	liveStreams int64
	commands    int64
}

type Option func(*Server)

// WithTokens sets the token service used to authenticate API requests.
func WithTokens(ts *auth.TokenService) Option {
	return func(s *Server) { s.tokens = ts }
}

// WithReadiness sets the check behind /readyz.
func WithReadiness(ready func(ctx context.Context) error) Option {
	return func(s *Server) { s.ready = ready }
}

// WithClock replaces time.Now for dashboards, defaults and exports.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRateLimit sets the per-client request budget.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) {
		s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: perMinute})
	}
}

// WithHeartbeat sets how often an idle stream sends a keep-alive comment.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) { s.heartbeat = d }
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, svc ExpenseService, opts ...Option) *Server {
	s := &Server{
		service:   svc,
		tokens:    auth.NewTokenService("", 0),
		ready:     func(context.Context) error { return nil },
		now:       time.Now,
		logger:    applog.Default(applog.ComponentHTTP),
		heartbeat: 25 * time.Second,
		closing:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.rateLimiter == nil {
		s.rateLimiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}
	s.startedAt = s.now()
	s.streams = newStreamRegistry()
	s.securityDetector = security.NewDetector(s.logger.WithComponent(applog.ComponentSecurity))
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, s.logger.WithComponent(applog.ComponentTrace))

	api := http.NewServeMux()
	api.HandleFunc("GET /api/dashboard", s.handleDashboard)
	api.HandleFunc("GET /api/stream", s.handleStream)
	api.HandleFunc("POST /api/stream/{id}/params", s.handleStreamParams)
	api.HandleFunc("POST /api/stream/{id}/page", s.handleStreamPage)
	api.HandleFunc("POST /api/stream/{id}/clear", s.handleStreamClear)
	api.HandleFunc("GET /api/export.csv", s.handleExport)
	api.HandleFunc("GET /api/expenses/new", s.handleNewExpense)
	api.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	api.HandleFunc("PATCH /api/expenses/{id}", s.handleUpdateExpense)
	api.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	authed := auth.Middleware(s.tokens, s.logger.WithComponent(applog.ComponentAuth))(security.NoStore(api))
	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, nil)(authed)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.Handle("/api/", limited)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.traceMiddleware.Middleware(s.securityDetector.Middleware(headers.Middleware(mux))),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.Server.RegisterOnShutdown(func() {
		s.closeOnce.Do(func() { close(s.closing) })
	})
	return s
}

// Shutdown stops accepting connections, waits for in-flight requests and
// stops the rate limiter. Open streams are told to end first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	err := s.Server.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("Shutdown deadline reached, closing remaining connections")
		return s.Server.Close()
	}
	return err
}

// ListenAndServe runs the server until Shutdown. A clean shutdown is not an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.Addr)
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) userID(r *http.Request) string {
	id, _ := auth.UserFromContext(r.Context())
	return id
}

// log returns the request-scoped logger, which carries the request id.
func (s *Server) log(r *http.Request) *applog.Logger {
	return applog.FromContextOr(r.Context(), s.logger)
}

func (s *Server) countCommand() {
	atomic.AddInt64(&s.commands, 1)
}
