package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/middleware/security"
	"expensetracker/internal/middleware/trace"
	"expensetracker/internal/storage"
	appweb "expensetracker/web"
)

// ExpenseService is what the handlers need from the service layer.
// services.ExpenseService implements it.
type ExpenseService interface {
	CreateExpense(ctx context.Context, in core.ExpenseInput) (core.Expense, error)
	DeleteExpense(ctx context.Context, id int64) error
	ListExpenses(ctx context.Context, opts storage.ListOptions) ([]core.Expense, error)
	CategoryTotals(ctx context.Context, r core.DateRange) ([]core.CategoryTotal, error)
	DailyTotals(ctx context.Context, r core.DateRange) ([]core.DailyTotal, error)
	Overview(ctx context.Context, days int) (core.Overview, error)
	Window(days int) core.DateRange
	WindowDays() int
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes a Server. Zero values fall back to defaults.
type Options struct {
	ListLimit          int
	RateLimitPerMinute int
	Logger             *applog.Logger
	Clock              func() time.Time
}

type Server struct {
	http.Server
	templates *template.Template
	expenses  ExpenseService
	pinger    Pinger
	logger    *applog.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	listLimit    int
	now          func() time.Time
	startedAt    time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, svc ExpenseService, pinger Pinger, opts Options) *Server {
	if opts.ListLimit <= 0 {
		opts.ListLimit = storage.DefaultListLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	rlConfig := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		rlConfig.RequestsPerMinute = opts.RateLimitPerMinute
	}

	s := &Server{
		expenses:  svc,
		pinger:    pinger,
		logger:    logger,
		limiter:   ratelimit.NewLimiter(rlConfig),
		detector:  security.NewDetector(),
		listLimit: opts.ListLimit,
		now:       opts.Clock,
		startedAt: time.Now(),
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.tracer = trace.NewMiddleware(s.detector.ClientIP)

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	s.Server = http.Server{
		Addr:           addr,
		Handler:        s.routes(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.tracer.Handler)
	r.Use(applog.Middleware(s.logger, applog.ComponentHTTP, trace.GetRequestID))
	r.Use(s.detector.Middleware)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(s.limiter.Middleware(s.detector.ClientIP))

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.With(security.StaticAssetMiddleware(3600)).Handle("/static/*", static)
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Post("/expenses", s.handleCreateExpense)
	r.Delete("/expenses/{id}", s.handleDeleteExpense)
	r.Post("/expenses/{id}/delete", s.handleDeleteExpense)

	// UI partials
	r.Get("/ui/expenses", s.handleExpensesTable)
	r.Get("/ui/charts", s.handleCharts)

	r.Route("/api", func(r chi.Router) {
		r.Use(jsonAPI)
		r.Get("/expenses", s.handleAPIListExpenses)
		r.Post("/expenses", s.handleCreateExpense)
		r.Delete("/expenses/{id}", s.handleDeleteExpense)
		r.Get("/summary/categories", s.handleAPICategoryTotals)
		r.Get("/summary/daily", s.handleAPIDailyTotals)
	})

	return r
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	switch {
	case s.pinger == nil:
		checks["database"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	default:
		if err := s.pinger.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness ping failed", applog.FieldError, err)
			checks["database"] = "failed: " + err.Error()
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.limiter.ActiveClients(),
		"hits":           s.limiter.Hits(),
	}
	checks["security"] = map[string]interface{}{
		"suspicious_requests": s.detector.SuspiciousRequests(),
	}
	checks["requests_total"] = s.tracer.TotalRequests()

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}
