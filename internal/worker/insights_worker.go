// Package worker rebuilds advisor output in the background: it consumes
// snapshot change messages, refreshes recommendations on a timer as a backup
// for lost messages, and runs the monthly propagation schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"finbook/internal/amqp"
	"finbook/internal/core"
	"finbook/internal/export"
	"finbook/internal/insights"
	"finbook/internal/log"
	"finbook/internal/services"
	"finbook/internal/store"
)

// Config holds worker scheduling configuration.
type Config struct {
	// RefreshInterval is how often every user's recommendations are rebuilt
	// regardless of messages (default: 6h).
	RefreshInterval time.Duration

	// PropagationSpec is the cron spec for automatic month propagation
	// (default: @monthly).
	PropagationSpec string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RefreshInterval: 6 * time.Hour,
		PropagationSpec: "@monthly",
	}
}

// InsightsWorker refreshes stored recommendations from the advisor. The
// advisor client serves local fallbacks when the upstream is down, so a
// refresh always produces a usable recommendation set.
type InsightsWorker struct {
	service *services.LedgerService
	store   store.Store
	advisor *insights.Client
	reports export.ReportWriter
	config  Config
	logger  *log.Logger

	cron *cron.Cron

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewInsightsWorker creates a worker. reports may be nil to disable the
// sheets export.
func NewInsightsWorker(service *services.LedgerService, st store.Store, advisor *insights.Client, reports export.ReportWriter, config Config, logger *log.Logger) *InsightsWorker {
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultConfig().RefreshInterval
	}
	if config.PropagationSpec == "" {
		config.PropagationSpec = DefaultConfig().PropagationSpec
	}
	return &InsightsWorker{
		service: service,
		store:   st,
		advisor: advisor,
		reports: reports,
		config:  config,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// Start begins the refresh loop and the propagation schedule. Returns an
// error if already running.
func (w *InsightsWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("insights worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.cron = cron.New()
	if _, err := w.cron.AddFunc(w.config.PropagationSpec, func() {
		w.runPropagation(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule propagation: %w", err)
	}
	w.cron.Start()

	go w.runLoop(ctx)

	w.logger.InfoContext(ctx, "insights worker started",
		"refresh_interval", w.config.RefreshInterval.String(),
		"propagation_spec", w.config.PropagationSpec)
	return nil
}

// Stop gracefully stops the worker and waits for the loop to drain. The
// running flag is cleared before stopCh closes, so concurrent Stop calls
// cannot close the channel twice.
func (w *InsightsWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}

	select {
	case <-w.doneCh:
		w.logger.InfoContext(ctx, "insights worker stopped")
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "insights worker stop timed out")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the worker loop is active.
func (w *InsightsWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *InsightsWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.RefreshInterval)
	defer ticker.Stop()

	// Full refresh on startup covers messages missed while down.
	w.RefreshAll(ctx)

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RefreshAll(ctx)
		}
	}
}

// HandleSnapshotChanged is the AMQP consumer callback. A failed refresh
// returns the error so the delivery is requeued.
func (w *InsightsWorker) HandleSnapshotChanged(ctx context.Context, msg amqp.SnapshotChangedMessage) error {
	month := core.MonthKey(msg.Month)
	if month.Validate() != nil {
		var err error
		month, err = w.activeMonth(ctx, msg.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// User has no months yet; nothing to refresh.
				return nil
			}
			return err
		}
	}

	w.logger.InfoContext(ctx, "refreshing recommendations",
		log.FieldUserID, msg.UserID,
		log.FieldMonth, string(month),
		"reason", msg.Reason)

	return w.RefreshUser(ctx, msg.UserID, month)
}

// RefreshUser rebuilds one user's recommendation set for a month: snapshot
// the ledger, ask the advisor (insight and health calls run in parallel),
// and swap the stored set.
func (w *InsightsWorker) RefreshUser(ctx context.Context, userID string, month core.MonthKey) error {
	snap, err := w.service.BuildSnapshot(ctx, userID, month)
	if err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}

	var (
		advice []core.Insight
		health core.HealthReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		advice = w.advisor.Insights(gctx, snap)
		return nil
	})
	g.Go(func() error {
		health = w.advisor.AnalyzeHealth(gctx, snap)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	now := time.Now().UTC()
	recs := make([]core.Recommendation, 0, len(advice)+1)
	recs = append(recs, core.Recommendation{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        "health",
		Description: fmt.Sprintf("Financial health score %d/100. %s", health.Score, health.Summary),
		Impact:      healthImpact(health.Score),
		CreatedAt:   now,
	})
	for _, in := range advice {
		recs = append(recs, core.Recommendation{
			ID:          uuid.NewString(),
			UserID:      userID,
			Type:        in.Type,
			Description: in.Description,
			Impact:      in.Impact,
			CreatedAt:   now,
		})
	}

	if err := w.store.ReplaceRecommendations(ctx, userID, recs); err != nil {
		return fmt.Errorf("store recommendations: %w", err)
	}

	w.exportReport(ctx, userID, month)
	return nil
}

// RefreshAll rebuilds recommendations for every known user's active month.
// Per-user failures are logged and skipped so one broken ledger does not
// starve the rest.
func (w *InsightsWorker) RefreshAll(ctx context.Context) {
	users, err := w.store.ListUsers(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to list users for refresh", log.FieldError, err.Error())
		return
	}

	refreshed := 0
	for _, userID := range users {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		month, err := w.activeMonth(ctx, userID)
		if err != nil {
			continue
		}
		if err := w.RefreshUser(ctx, userID, month); err != nil {
			w.logger.WarnContext(ctx, "refresh failed",
				log.FieldUserID, userID,
				log.FieldError, err.Error())
			continue
		}
		refreshed++
	}

	w.logger.InfoContext(ctx, "refresh pass completed",
		log.FieldOperation, log.OpRefresh,
		"users", len(users),
		"refreshed", refreshed)
}

// runPropagation carries every user's ledger into the new month. Users with
// fewer than two months are skipped quietly.
func (w *InsightsWorker) runPropagation(ctx context.Context) {
	users, err := w.store.ListUsers(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to list users for propagation", log.FieldError, err.Error())
		return
	}

	for _, userID := range users {
		result, err := w.service.PropagateAllMonths(ctx, userID)
		switch {
		case errors.Is(err, core.ErrNotEnoughMonths):
			continue
		case err != nil:
			w.logger.ErrorContext(ctx, "scheduled propagation failed",
				log.FieldUserID, userID,
				log.FieldError, err.Error())
		default:
			w.logger.InfoContext(ctx, "scheduled propagation completed",
				log.FieldUserID, userID,
				log.FieldOperation, log.OpPropagate,
				"seeded_entries", result.Seeded)
		}
	}
}

func (w *InsightsWorker) activeMonth(ctx context.Context, userID string) (core.MonthKey, error) {
	months, err := w.store.ListMonths(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(months) == 0 {
		return "", store.ErrNotFound
	}
	for _, m := range months {
		if m.Active {
			return m.ID, nil
		}
	}
	core.SortMonths(months)
	return months[len(months)-1].ID, nil
}

func (w *InsightsWorker) exportReport(ctx context.Context, userID string, month core.MonthKey) {
	if w.reports == nil {
		return
	}
	summary, err := w.service.MonthSummary(ctx, userID, month)
	if err != nil {
		w.logger.WarnContext(ctx, "failed to build summary for export", log.FieldError, err.Error())
		return
	}
	ref, err := w.reports.AppendMonthSummary(ctx, userID, summary)
	if err != nil {
		w.logger.WarnContext(ctx, "sheets export failed",
			log.FieldUserID, userID,
			log.FieldMonth, string(month),
			log.FieldError, err.Error())
		return
	}
	w.logger.DebugContext(ctx, "month report exported",
		log.FieldUserID, userID,
		log.FieldOperation, log.OpExport,
		"ref", ref)
}

func healthImpact(score int) core.Impact {
	switch {
	case score < 40:
		return core.ImpactHigh
	case score < 70:
		return core.ImpactMedium
	default:
		return core.ImpactLow
	}
}
