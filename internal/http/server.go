package http

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"kicho/internal/core"
	"kicho/internal/ledger"
	"kicho/internal/log"
	"kicho/internal/metrics"
	"kicho/internal/middleware/ratelimit"
	"kicho/internal/middleware/security"
	"kicho/internal/middleware/trace"
	"kicho/internal/services"
	"kicho/internal/storage"
	appweb "kicho/web"
)

// TransactionManager is the write and lookup side of transactions.
type TransactionManager interface {
	Create(ctx context.Context, ownerID string, t core.Transaction) (core.Transaction, error)
	Update(ctx context.Context, ownerID, id string, t core.Transaction) (core.Transaction, error)
	Delete(ctx context.Context, ownerID, id string) error
	Get(ctx context.Context, ownerID, id string) (core.Transaction, error)
	List(ctx context.Context, ownerID string, f storage.TransactionFilter) ([]core.Transaction, error)
}

// LedgerReader computes ledgers. *services.LedgerService implements it.
type LedgerReader interface {
	Summary(ctx context.Context, ownerID string, fiscalYear int) (services.Summary, error)
	AccountLedger(ctx context.Context, ownerID string, accountID int64, fiscalYear int) (core.Account, []ledger.Line, error)
	FiscalYears(ctx context.Context, ownerID string) ([]int, error)
}

// AccountLister lists the chart of accounts.
type AccountLister interface {
	ListAccounts(ctx context.Context) ([]core.Account, error)
}

// Options wires the server. Ready may be nil.
type Options struct {
	Transactions   TransactionManager
	Ledger         LedgerReader
	Accounts       AccountLister
	Ready          func(ctx context.Context) error
	Tokens         map[string]string
	Calendar       core.FiscalCalendar
	RateLimitRPM   int
	MetricsEnabled bool
	Logger         *log.Logger
}

type Server struct {
	http.Server
	templates *template.Template

	transactions TransactionManager
	ledger       LedgerReader
	accounts     AccountLister
	ready        func(ctx context.Context) error
	calendar     core.FiscalCalendar
	now          func() time.Time

	rateLimiter  *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, opts Options) (*Server, error) {
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}
	clientIP, err := security.NewClientIP()
	if err != nil {
		return nil, err
	}
	if len(opts.Tokens) == 0 {
		logger.Warn("No auth tokens configured, every API request will be rejected")
	}

	s := &Server{
		templates:    t,
		transactions: opts.Transactions,
		ledger:       opts.Ledger,
		accounts:     opts.Accounts,
		ready:        opts.Ready,
		calendar:     opts.Calendar,
		now:          time.Now,
		rateLimiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitRPM}),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(log.Middleware(logger, func(r *http.Request) string {
		return middleware.GetReqID(r.Context())
	}))
	r.Use(trace.NewMiddleware(logger, clientIP.Extract).Middleware)
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed")
	})

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	if opts.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler())
	}

	limited := s.rateLimiter.Middleware(clientIP.Extract, func(w http.ResponseWriter, r *http.Request) {
		metrics.HTTPRateLimited.Inc()
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, clientIP.Extract(r), "path", r.URL.Path)
		writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded. Please try again later.")
	})

	r.With(CookieAuthMiddleware(opts.Tokens)).Get("/ledger", s.handleLedgerPage)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(opts.Tokens))

		r.Route("/api", func(r chi.Router) {
			r.Get("/accounts", s.handleListAccounts)

			r.Get("/transactions", s.handleListTransactions)
			r.With(limited).Post("/transactions", s.handleCreateTransaction)
			r.Get("/transactions/{id}", s.handleGetTransaction)
			r.With(limited).Put("/transactions/{id}", s.handleUpdateTransaction)
			r.With(limited).Delete("/transactions/{id}", s.handleDeleteTransaction)

			r.Get("/ledger", s.handleLedger)
			r.Get("/ledger/accounts/{accountID}", s.handleAccountLedger)
		})
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	return s, nil
}

// Shutdown gracefully shuts down the server and its rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err.Error())
			writeJSONError(w, http.StatusServiceUnavailable, "not_ready", "storage unavailable")
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
