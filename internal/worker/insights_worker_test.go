package worker

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"finbook/internal/amqp"
	"finbook/internal/core"
	"finbook/internal/insights"
	"finbook/internal/log"
	"finbook/internal/services"
	"finbook/internal/store/memory"
)

type recordedExport struct {
	userID  string
	summary core.MonthSummary
}

type fakeReportWriter struct {
	exports []recordedExport
}

func (f *fakeReportWriter) AppendMonthSummary(ctx context.Context, userID string, summary core.MonthSummary) (string, error) {
	f.exports = append(f.exports, recordedExport{userID: userID, summary: summary})
	return "Reports!A2:G2", nil
}

func newTestWorker(t *testing.T) (*InsightsWorker, *memory.Store, *fakeReportWriter) {
	t.Helper()
	st := memory.New()
	logger := log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	svc := services.NewLedgerService(st, nil, logger)
	advisor := insights.NewClient("", "", time.Second, logger)
	reports := &fakeReportWriter{}
	w := NewInsightsWorker(svc, st, advisor, reports, DefaultConfig(), logger)
	return w, st, reports
}

func seedUser(t *testing.T, st *memory.Store, userID string, month core.MonthKey) {
	t.Helper()
	ctx := context.Background()
	if err := st.UpsertMonth(ctx, core.Month{ID: month, UserID: userID, Name: month.DisplayName(), Active: true}); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveIncome(ctx, core.Income{
		ID: "i1", UserID: userID, Month: month, Source: "Salary",
		AmountCents: 400000, Date: month.Time(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveExpense(ctx, core.Expense{
		ID: "e1", UserID: userID, Month: month, AmountCents: 250000,
		Category: core.CategoryHousing, Date: month.Time(),
	}); err != nil {
		t.Fatal(err)
	}
}

func TestHandleSnapshotChanged_StoresRecommendations(t *testing.T) {
	w, st, reports := newTestWorker(t)
	seedUser(t, st, "u1", "2024-04")
	ctx := context.Background()

	msg := amqp.NewSnapshotChangedMessage("u1", "2024-04", amqp.ReasonEntryChanged)
	if err := w.HandleSnapshotChanged(ctx, msg); err != nil {
		t.Fatalf("HandleSnapshotChanged failed: %v", err)
	}

	recs, err := st.ListRecommendations(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) == 0 {
		t.Fatal("expected stored recommendations")
	}

	var health *core.Recommendation
	for i := range recs {
		if recs[i].Type == "health" {
			health = &recs[i]
		}
	}
	if health == nil {
		t.Fatal("expected a health recommendation")
	}
	if !strings.Contains(health.Description, "/100") {
		t.Errorf("health description missing score: %q", health.Description)
	}

	if len(reports.exports) != 1 {
		t.Fatalf("expected 1 export, got %d", len(reports.exports))
	}
	if reports.exports[0].summary.Month != "2024-04" {
		t.Errorf("exported month = %s, want 2024-04", reports.exports[0].summary.Month)
	}
}

func TestHandleSnapshotChanged_MissingMonthUsesActive(t *testing.T) {
	w, st, _ := newTestWorker(t)
	seedUser(t, st, "u1", "2024-04")

	msg := amqp.NewSnapshotChangedMessage("u1", "", amqp.ReasonEntryChanged)
	if err := w.HandleSnapshotChanged(context.Background(), msg); err != nil {
		t.Fatalf("HandleSnapshotChanged failed: %v", err)
	}

	recs, _ := st.ListRecommendations(context.Background(), "u1")
	if len(recs) == 0 {
		t.Error("expected recommendations for the active month")
	}
}

func TestHandleSnapshotChanged_UnknownUserIsNoop(t *testing.T) {
	w, _, _ := newTestWorker(t)

	msg := amqp.NewSnapshotChangedMessage("ghost", "", amqp.ReasonEntryChanged)
	if err := w.HandleSnapshotChanged(context.Background(), msg); err != nil {
		t.Errorf("unknown user should be a no-op, got %v", err)
	}
}

func TestRefreshUser_ReplacesPreviousSet(t *testing.T) {
	w, st, _ := newTestWorker(t)
	seedUser(t, st, "u1", "2024-04")
	ctx := context.Background()

	if err := w.RefreshUser(ctx, "u1", "2024-04"); err != nil {
		t.Fatal(err)
	}
	first, _ := st.ListRecommendations(ctx, "u1")

	if err := w.RefreshUser(ctx, "u1", "2024-04"); err != nil {
		t.Fatal(err)
	}
	second, _ := st.ListRecommendations(ctx, "u1")

	if len(first) != len(second) {
		t.Errorf("refresh should replace, not append: %d then %d", len(first), len(second))
	}
}

func TestRefreshAll_CoversEveryUser(t *testing.T) {
	w, st, _ := newTestWorker(t)
	seedUser(t, st, "u1", "2024-04")
	seedUser(t, st, "u2", "2024-05")
	ctx := context.Background()

	w.RefreshAll(ctx)

	for _, userID := range []string{"u1", "u2"} {
		recs, err := st.ListRecommendations(ctx, userID)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) == 0 {
			t.Errorf("no recommendations for %s", userID)
		}
	}
}

func TestRunPropagation_SkipsSingleMonthUsers(t *testing.T) {
	w, st, _ := newTestWorker(t)
	ctx := context.Background()

	// u1 has two months and a debt balance to carry.
	seedUser(t, st, "u1", "2024-01")
	if err := st.UpsertMonth(ctx, core.Month{ID: "2024-02", UserID: "u1", Name: "February 2024"}); err != nil {
		t.Fatal(err)
	}
	debt := core.Debt{
		ID: "d1", UserID: "u1", Name: "Loan", PrincipalCents: 50000,
		MonthlyBalances: map[core.MonthKey]int64{"2024-01": 45000},
	}
	core.RecomputeDebt(&debt)
	if err := st.SaveDebt(ctx, debt); err != nil {
		t.Fatal(err)
	}

	// u2 has one month; propagation must skip it without error.
	seedUser(t, st, "u2", "2024-01")

	w.runPropagation(ctx)

	stored, err := st.GetDebt(ctx, "u1", "d1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.MonthlyBalances["2024-02"] != 45000 {
		t.Errorf("balance not propagated: %v", stored.MonthlyBalances)
	}
}

func TestStartStop(t *testing.T) {
	w, _, _ := newTestWorker(t)
	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !w.IsRunning() {
		t.Error("worker should report running")
	}
	if err := w.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if w.IsRunning() {
		t.Error("worker should report stopped")
	}
}

func TestStop_Concurrent(t *testing.T) {
	w, _, _ := newTestWorker(t)
	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Stop(stopCtx); err != nil {
				t.Errorf("Stop failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if w.IsRunning() {
		t.Error("worker should report stopped")
	}
}
