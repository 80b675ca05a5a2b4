package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"finbook/internal/amqp"
	"finbook/internal/core"
	"finbook/internal/log"
	"finbook/internal/store"
	"finbook/internal/store/memory"
)

type capturedPublisher struct {
	messages []amqp.SnapshotChangedMessage
	fail     bool
}

func (p *capturedPublisher) PublishSnapshotChanged(msg amqp.SnapshotChangedMessage) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func newTestService(t *testing.T) (*LedgerService, *memory.Store, *capturedPublisher) {
	t.Helper()
	st := memory.New()
	pub := &capturedPublisher{}
	logger := log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	return NewLedgerService(st, pub, logger), st, pub
}

func date(iso string) time.Time {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRecordDebtPayment_CommitsAndNotifies(t *testing.T) {
	svc, st, pub := newTestService(t)
	ctx := context.Background()

	debt := core.Debt{
		ID:              "d1",
		UserID:          "u1",
		Name:            "Student loan",
		PrincipalCents:  100000,
		MonthlyPayments: map[core.MonthKey]int64{},
	}
	core.RecomputeDebt(&debt)
	if err := st.SaveDebt(ctx, debt); err != nil {
		t.Fatal(err)
	}

	result, err := svc.RecordDebtPayment(ctx, "u1", "d1", 20000, date("2024-01-15"))
	if err != nil {
		t.Fatalf("RecordDebtPayment failed: %v", err)
	}

	if result.Debt.BalanceCents != 80000 {
		t.Errorf("balance = %d, want 80000", result.Debt.BalanceCents)
	}
	if result.Expense.ID == "" {
		t.Error("derived expense should get an id")
	}

	stored, err := st.GetDebt(ctx, "u1", "d1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.MonthlyPayments["2024-01"] != 20000 {
		t.Errorf("stored payment = %d, want 20000", stored.MonthlyPayments["2024-01"])
	}

	expenses, err := st.ListExpenses(ctx, "u1", "2024-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(expenses) != 1 || expenses[0].Category != core.CategoryDebtPayment {
		t.Errorf("expected one debt_payment expense, got %+v", expenses)
	}

	if len(pub.messages) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(pub.messages))
	}
	if pub.messages[0].Reason != amqp.ReasonDebtPayment || pub.messages[0].Month != "2024-01" {
		t.Errorf("unexpected message %+v", pub.messages[0])
	}
}

func TestRecordDebtPayment_MissingDebt(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.RecordDebtPayment(context.Background(), "u1", "ghost", 1000, date("2024-01-15"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordDebtPayment_CascadesLinkedGoal(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	debt := core.Debt{ID: "d1", UserID: "u1", Name: "Card", PrincipalCents: 50000}
	core.RecomputeDebt(&debt)
	if err := st.SaveDebt(ctx, debt); err != nil {
		t.Fatal(err)
	}
	goal := core.Goal{
		ID: "g1", UserID: "u1", Name: "Kill the card",
		Type: core.GoalDebtPayoff, TargetCents: 50000, DebtID: "d1",
	}
	if err := st.SaveGoal(ctx, goal); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.RecordDebtPayment(ctx, "u1", "d1", 50000, date("2024-03-01")); err != nil {
		t.Fatalf("RecordDebtPayment failed: %v", err)
	}

	stored, err := st.GetGoal(ctx, "u1", "g1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.CurrentCents != 50000 || !stored.Completed {
		t.Errorf("goal not cascaded: %+v", stored)
	}

	// Completion raises a goal alert; default profile has the toggle on.
	alerts, err := st.ListAlerts(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, a := range alerts {
		if a.Category == "goal" {
			found = true
		}
	}
	if !found {
		t.Error("expected a goal completion alert")
	}
}

func TestRecordDebtPayment_PublishFailureDoesNotFailRequest(t *testing.T) {
	svc, st, pub := newTestService(t)
	pub.fail = true
	ctx := context.Background()

	debt := core.Debt{ID: "d1", UserID: "u1", Name: "Loan", PrincipalCents: 10000}
	core.RecomputeDebt(&debt)
	if err := st.SaveDebt(ctx, debt); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.RecordDebtPayment(ctx, "u1", "d1", 1000, date("2024-01-10")); err != nil {
		t.Errorf("broker failure should not fail the payment: %v", err)
	}
}

func TestCreateExpense_BudgetOverspendAlert(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	budget := core.Budget{
		ID: "b1", UserID: "u1", Month: "2024-02",
		Category: core.CategoryFood, LimitCents: 30000,
	}
	if err := st.SaveBudget(ctx, budget); err != nil {
		t.Fatal(err)
	}

	under := core.Expense{
		UserID: "u1", AmountCents: 20000,
		Category: core.CategoryFood, Date: date("2024-02-05"),
	}
	if _, err := svc.CreateExpense(ctx, under); err != nil {
		t.Fatal(err)
	}
	alerts, _ := st.ListAlerts(ctx, "u1")
	if len(alerts) != 0 {
		t.Fatalf("no alert expected under budget, got %d", len(alerts))
	}

	over := core.Expense{
		UserID: "u1", AmountCents: 15000,
		Category: core.CategoryFood, Date: date("2024-02-20"),
	}
	if _, err := svc.CreateExpense(ctx, over); err != nil {
		t.Fatal(err)
	}
	alerts, _ = st.ListAlerts(ctx, "u1")
	if len(alerts) != 1 || alerts[0].Category != "budget" {
		t.Fatalf("expected one budget alert, got %+v", alerts)
	}
}

func TestCreateExpense_RespectsNotificationToggle(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	profile := core.UserProfile{
		UserID:        "u1",
		Notifications: map[string]bool{"budget": false, "debt": true, "goal": true},
	}
	if err := st.SaveProfile(ctx, profile); err != nil {
		t.Fatal(err)
	}
	budget := core.Budget{
		ID: "b1", UserID: "u1", Month: "2024-02",
		Category: core.CategoryFood, LimitCents: 1000,
	}
	if err := st.SaveBudget(ctx, budget); err != nil {
		t.Fatal(err)
	}

	ex := core.Expense{
		UserID: "u1", AmountCents: 5000,
		Category: core.CategoryFood, Date: date("2024-02-05"),
	}
	if _, err := svc.CreateExpense(ctx, ex); err != nil {
		t.Fatal(err)
	}

	alerts, _ := st.ListAlerts(ctx, "u1")
	if len(alerts) != 0 {
		t.Errorf("budget alerts disabled, got %d alerts", len(alerts))
	}
}

func TestCreateExpense_DerivesMonthFromDate(t *testing.T) {
	svc, _, _ := newTestService(t)

	ex, err := svc.CreateExpense(context.Background(), core.Expense{
		UserID: "u1", AmountCents: 900,
		Category: core.CategoryOther, Date: date("2024-12-31"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if ex.Month != "2024-12" {
		t.Errorf("month = %s, want 2024-12", ex.Month)
	}
	if ex.ID == "" {
		t.Error("expected generated id")
	}
}

func TestCreateMonth_ActiveStaysExclusive(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	for _, key := range []core.MonthKey{"2024-01", "2024-02"} {
		if _, err := svc.CreateMonth(ctx, core.Month{ID: key, UserID: "u1", Active: true}); err != nil {
			t.Fatalf("CreateMonth(%s) error = %v", key, err)
		}
	}

	months, err := st.ListMonths(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	var active []core.MonthKey
	for _, m := range months {
		if m.Active {
			active = append(active, m.ID)
		}
	}
	if len(active) != 1 || active[0] != "2024-02" {
		t.Errorf("active months = %v, want [2024-02]", active)
	}
}

func TestPropagateAllMonths(t *testing.T) {
	svc, st, pub := newTestService(t)
	ctx := context.Background()

	for _, key := range []core.MonthKey{"2024-01", "2024-02"} {
		if err := st.UpsertMonth(ctx, core.Month{ID: key, UserID: "u1", Name: key.DisplayName()}); err != nil {
			t.Fatal(err)
		}
	}
	debt := core.Debt{
		ID: "d1", UserID: "u1", Name: "Loan", PrincipalCents: 100000,
		MonthlyBalances: map[core.MonthKey]int64{"2024-01": 90000},
	}
	core.RecomputeDebt(&debt)
	if err := st.SaveDebt(ctx, debt); err != nil {
		t.Fatal(err)
	}

	result, err := svc.PropagateAllMonths(ctx, "u1")
	if err != nil {
		t.Fatalf("PropagateAllMonths failed: %v", err)
	}
	if result.Seeded != 1 {
		t.Errorf("Seeded = %d, want 1", result.Seeded)
	}

	stored, err := st.GetDebt(ctx, "u1", "d1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.MonthlyBalances["2024-02"] != 90000 {
		t.Errorf("balance not carried: %v", stored.MonthlyBalances)
	}

	if len(pub.messages) != 1 || pub.messages[0].Reason != amqp.ReasonMonthPropagate {
		t.Errorf("expected propagation message, got %+v", pub.messages)
	}
}

func TestPropagateAllMonths_TooFewMonths(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	if err := st.UpsertMonth(ctx, core.Month{ID: "2024-01", UserID: "u1", Name: "January 2024"}); err != nil {
		t.Fatal(err)
	}

	_, err := svc.PropagateAllMonths(ctx, "u1")
	if !errors.Is(err, core.ErrNotEnoughMonths) {
		t.Errorf("expected ErrNotEnoughMonths, got %v", err)
	}
}

func TestMonthSummary(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	if err := st.SaveIncome(ctx, core.Income{
		ID: "i1", UserID: "u1", Month: "2024-05", Source: "Salary",
		AmountCents: 500000, Date: date("2024-05-01"),
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveExpense(ctx, core.Expense{
		ID: "e1", UserID: "u1", Month: "2024-05", AmountCents: 120000,
		Category: core.CategoryHousing, Date: date("2024-05-03"),
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveBudget(ctx, core.Budget{
		ID: "b1", UserID: "u1", Month: "2024-05",
		Category: core.CategoryHousing, LimitCents: 150000,
	}); err != nil {
		t.Fatal(err)
	}

	summary, err := svc.MonthSummary(ctx, "u1", "2024-05")
	if err != nil {
		t.Fatalf("MonthSummary failed: %v", err)
	}
	if summary.NetCents != 380000 {
		t.Errorf("NetCents = %d, want 380000", summary.NetCents)
	}
	if len(summary.Budgets) != 1 || summary.Budgets[0].SpentCents != 120000 {
		t.Errorf("budget spent not derived: %+v", summary.Budgets)
	}
}

func TestAddGoalContribution_Service(t *testing.T) {
	svc, st, pub := newTestService(t)
	ctx := context.Background()

	goal := core.Goal{
		ID: "g1", UserID: "u1", Name: "Vacation",
		Type: core.GoalSavings, TargetCents: 100000,
	}
	if err := st.SaveGoal(ctx, goal); err != nil {
		t.Fatal(err)
	}

	updated, err := svc.AddGoalContribution(ctx, "u1", "g1", 25000, date("2024-06-10"))
	if err != nil {
		t.Fatalf("AddGoalContribution failed: %v", err)
	}
	if updated.CurrentCents != 25000 {
		t.Errorf("CurrentCents = %d, want 25000", updated.CurrentCents)
	}
	if len(pub.messages) != 1 || pub.messages[0].Reason != amqp.ReasonGoalProgress {
		t.Errorf("expected goal progress message, got %+v", pub.messages)
	}
}

func TestLoadSampleData(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	// A pre-existing active month must lose the flag to the seeded one.
	if err := st.UpsertMonth(ctx, core.Month{ID: "2020-01", UserID: "u1", Name: "January 2020", Active: true}); err != nil {
		t.Fatal(err)
	}

	if err := svc.LoadSampleData(ctx, "u1"); err != nil {
		t.Fatalf("LoadSampleData failed: %v", err)
	}

	months, err := st.ListMonths(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(months) != 4 {
		t.Fatalf("months = %d, want 4 (1 existing + 3 seeded)", len(months))
	}
	var active []core.MonthKey
	for _, m := range months {
		if m.Active {
			active = append(active, m.ID)
		}
	}
	if len(active) != 1 {
		t.Fatalf("active months = %v, want exactly one", active)
	}
	if active[0] == "2020-01" {
		t.Error("seeding should move the active flag off the old month")
	}

	debts, _ := st.ListDebts(ctx, "u1")
	goals, _ := st.ListGoals(ctx, "u1")
	if len(debts) == 0 || len(goals) == 0 {
		t.Error("expected seeded debts and goals")
	}

	linked := false
	for _, g := range goals {
		if g.DebtID != "" {
			linked = true
		}
	}
	if !linked {
		t.Error("expected a goal linked to the seeded debt")
	}

	expenses, _ := st.ListExpenses(ctx, "u1", months[1].ID)
	if len(expenses) == 0 {
		t.Error("expected seeded expenses for the first seeded month")
	}
}
