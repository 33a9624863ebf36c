package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	applog "budgetapp/internal/log"
	"budgetapp/internal/middleware/ratelimit"
	"budgetapp/internal/middleware/security"
	"budgetapp/internal/middleware/trace"
	"budgetapp/internal/services"
)

// Services are the operations the API exposes.
type Services struct {
	Users        *services.UserService
	Accounts     *services.AccountService
	Transactions *services.TransactionService
	Budgets      *services.BudgetService
	Dashboard    *services.DashboardService
}

// Options tune the server; zero values pick the defaults.
type Options struct {
	Logger         *applog.Logger
	RequestTimeout time.Duration
	// RequestsPerMinute limits writes per caller.
	RequestsPerMinute int
	// Location is the calendar used for month and day boundaries. Default UTC.
	Location *time.Location
	Now      func() time.Time
}

// Server is the JSON API server.
type Server struct {
	http.Server

	users        *services.UserService
	accounts     *services.AccountService
	transactions *services.TransactionService
	budgets      *services.BudgetService
	dashboard    *services.DashboardService

	limiter      *ratelimit.Limiter
	ips          *security.IPResolver
	tracer       *trace.Middleware
	loc          *time.Location
	now          func() time.Time
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc Services, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.ForComponent(applog.ComponentHTTP)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 7 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		users:        svc.Users,
		accounts:     svc.Accounts,
		transactions: svc.Transactions,
		budgets:      svc.Budgets,
		dashboard:    svc.Dashboard,
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute}),
		ips:          security.NewIPResolver(),
		loc:          opts.Location,
		now:          opts.Now,
	}
	s.tracer = trace.NewMiddleware(opts.Logger, s.ips.ClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /api/categories", handleCategories)
	mux.HandleFunc("POST /api/users", s.handleEnsureUser)
	mux.HandleFunc("GET /api/accounts", s.handleListAccounts)
	mux.HandleFunc("POST /api/accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /api/accounts/{id}", s.handleGetAccount)
	mux.HandleFunc("DELETE /api/accounts/{id}", s.handleDeleteAccount)
	mux.HandleFunc("PUT /api/accounts/{id}/default", s.handleSetDefault)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("POST /api/transactions/bulk-delete", s.handleBulkDelete)
	mux.HandleFunc("GET /api/budget", s.handleGetBudget)
	mux.HandleFunc("PUT /api/budget", s.handleSetBudget)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)

	limited := s.limiter.Middleware(s.rateKey, isWrite, func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, r, http.StatusTooManyRequests, "rate limit exceeded, retry later")
	})
	timeout := http.TimeoutHandler(mux, opts.RequestTimeout, `{"error":"request timed out"}`)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.tracer.Middleware(security.Headers(limited(timeout))),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// rateKey buckets callers by identity, falling back to the client address.
func (s *Server) rateKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderUserID)); id != "" {
		return "user:" + id
	}
	return "ip:" + s.ips.ClientIP(r)
}

func isWrite(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// Metrics returns the request counters collected by the tracer.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

// Shutdown stops the limiter and drains the server once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
