// Package http serves the REST surface: entity CRUD under /api, the blob
// sync contract, the insight proxy endpoints, and operational probes.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"finbook/internal/cache"
	"finbook/internal/core"
	"finbook/internal/insights"
	"finbook/internal/log"
	"finbook/internal/middleware/ratelimit"
	"finbook/internal/middleware/security"
	"finbook/internal/middleware/trace"
	"finbook/internal/services"
	"finbook/internal/store"
)

// Server wires handlers, middleware and caches around the ledger service.
type Server struct {
	http.Server

	service *services.LedgerService
	store   store.Store
	advisor *insights.Client
	logger  *log.Logger

	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware

	// Month summaries are the hottest read; cached per user+month and
	// invalidated on every mutation that can change them.
	summaryCache *cache.LRUCache[core.MonthSummary]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, service *services.LedgerService, st store.Store, advisor *insights.Client, logger *log.Logger) *Server {
	s := &Server{
		service:      service,
		store:        st,
		advisor:      advisor,
		logger:       logger.WithComponent(log.ComponentHTTP),
		detector:     security.NewDetector(),
		limiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		summaryCache: cache.NewLRUCache[core.MonthSummary](200, 5*time.Minute),
		cacheManager: cache.NewManager(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)

	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()
	s.routes(mux)

	s.Server = http.Server{
		Addr:    addr,
		Handler: s.middleware(mux),
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// Blob sync contract used by the legacy client.
	mux.HandleFunc("POST /save", s.handleBlobSave)
	mux.HandleFunc("GET /get/{key}", s.handleBlobGet)
	mux.HandleFunc("DELETE /delete/{key}", s.handleBlobDelete)
	mux.HandleFunc("GET /list/{prefix}", s.handleBlobList)
	mux.HandleFunc("POST /save-all", s.handleBlobSaveAll)

	// Insight proxy. Each endpoint answers even when the advisor is down.
	mux.HandleFunc("POST /insights", s.handleInsights)
	mux.HandleFunc("POST /categorize", s.handleCategorize)
	mux.HandleFunc("POST /analyze-health", s.handleAnalyzeHealth)
	mux.HandleFunc("POST /prioritize-goals", s.handlePrioritizeGoals)
	mux.HandleFunc("POST /goal-recommendations", s.handleGoalRecommendations)
	mux.HandleFunc("POST /analyze-spending", s.handleAnalyzeSpending)

	mux.HandleFunc("GET /api/months", s.handleListMonths)
	mux.HandleFunc("POST /api/months", s.handleCreateMonth)
	mux.HandleFunc("DELETE /api/months/{id}", s.handleDeleteMonth)
	mux.HandleFunc("POST /api/months/{id}/activate", s.handleActivateMonth)
	mux.HandleFunc("GET /api/months/{id}/summary", s.handleMonthSummary)
	mux.HandleFunc("POST /api/months/propagate", s.handlePropagate)

	mux.HandleFunc("GET /api/incomes", s.handleListIncomes)
	mux.HandleFunc("POST /api/incomes", s.handleCreateIncome)
	mux.HandleFunc("DELETE /api/incomes/{id}", s.handleDeleteIncome)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("GET /api/budgets", s.handleListBudgets)
	mux.HandleFunc("POST /api/budgets", s.handleSaveBudget)
	mux.HandleFunc("DELETE /api/budgets/{id}", s.handleDeleteBudget)

	mux.HandleFunc("GET /api/debts", s.handleListDebts)
	mux.HandleFunc("POST /api/debts", s.handleSaveDebt)
	mux.HandleFunc("DELETE /api/debts/{id}", s.handleDeleteDebt)
	mux.HandleFunc("POST /api/debts/{id}/payments", s.handleDebtPayment)

	mux.HandleFunc("GET /api/goals", s.handleListGoals)
	mux.HandleFunc("POST /api/goals", s.handleSaveGoal)
	mux.HandleFunc("DELETE /api/goals/{id}", s.handleDeleteGoal)
	mux.HandleFunc("POST /api/goals/{id}/contributions", s.handleGoalContribution)

	mux.HandleFunc("GET /api/recommendations", s.handleListRecommendations)
	mux.HandleFunc("POST /api/recommendations/{id}/read", s.handleMarkRecommendationRead)

	mux.HandleFunc("GET /api/alerts", s.handleListAlerts)
	mux.HandleFunc("POST /api/alerts/{id}/read", s.handleMarkAlertRead)

	mux.HandleFunc("GET /api/scenarios", s.handleListScenarios)
	mux.HandleFunc("POST /api/scenarios", s.handleSaveScenario)
	mux.HandleFunc("GET /api/scenarios/{id}", s.handleGetScenario)
	mux.HandleFunc("DELETE /api/scenarios/{id}", s.handleDeleteScenario)

	mux.HandleFunc("GET /api/profile", s.handleGetProfile)
	mux.HandleFunc("PUT /api/profile", s.handleSaveProfile)

	mux.HandleFunc("POST /api/sample-data", s.handleSampleData)
}

// middleware assembles the chain: tracing outermost, then security headers
// and detection, rate limiting, and the request-scoped logger.
func (s *Server) middleware(next http.Handler) http.Handler {
	handler := log.Middleware(s.logger)(next)

	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
	})(handler)

	detected := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			s.logger.WarnContext(r.Context(), "suspicious request",
				log.FieldPath, r.URL.Path,
				log.FieldClientIP, s.detector.ExtractClientIP(r))
		}
		limited.ServeHTTP(w, r)
	})

	secured := security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(detected)
	return s.tracer.Middleware(secured)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleMetrics exposes operational counters in plain text.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	reqMetrics := s.tracer.GetMetrics()
	secMetrics := s.detector.GetMetrics()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "# HELP finbook_http_requests_total Total HTTP requests handled.\n")
	fmt.Fprintf(w, "finbook_http_requests_total %d\n", reqMetrics.TotalRequests)
	fmt.Fprintf(w, "# HELP finbook_http_response_time_us Last response time in microseconds.\n")
	fmt.Fprintf(w, "finbook_http_response_time_us %d\n", reqMetrics.AverageResponseTime)
	fmt.Fprintf(w, "# HELP finbook_suspicious_requests_total Requests matching attack patterns.\n")
	fmt.Fprintf(w, "finbook_suspicious_requests_total %d\n", secMetrics.SuspiciousRequests)
	fmt.Fprintf(w, "# HELP finbook_ratelimit_clients Clients currently tracked by the rate limiter.\n")
	fmt.Fprintf(w, "finbook_ratelimit_clients %d\n", s.limiter.ActiveClients())
	fmt.Fprintf(w, "# HELP finbook_summary_cache_entries Month summaries currently cached.\n")
	fmt.Fprintf(w, "finbook_summary_cache_entries %d\n", s.summaryCache.Size())
}

func (s *Server) summaryKey(userID string, month core.MonthKey) string {
	return userID + "|" + string(month)
}

// invalidateSummaries drops cached summaries after a mutation. With an empty
// month (debt and goal writes touch every month) the user's whole month list
// is evicted.
func (s *Server) invalidateSummaries(ctx context.Context, userID string, month core.MonthKey) {
	if month != "" {
		s.summaryCache.Delete(s.summaryKey(userID, month))
		return
	}
	months, err := s.store.ListMonths(ctx, userID)
	if err != nil {
		return
	}
	for _, m := range months {
		s.summaryCache.Delete(s.summaryKey(userID, m.ID))
	}
}

// Shutdown stops background cache and limiter goroutines before closing the
// listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
