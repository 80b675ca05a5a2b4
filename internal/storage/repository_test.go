package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"finbook/internal/core"
	"finbook/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	if err := RunMigrations(dbPath); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDebtRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	debt := core.Debt{
		ID:                  "d1",
		UserID:              "u1",
		Name:                "Car loan",
		PrincipalCents:      1000000,
		BalanceCents:        800000,
		MinimumPaymentCents: 20000,
		InterestRate:        4.5,
		Priority:            1,
		MonthlyPayments:     map[core.MonthKey]int64{"2024-01": 200000},
		MonthlyBalances:     map[core.MonthKey]int64{"2024-01": 800000},
		TotalPaidCents:      200000,
		CreatedAt:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := s.SaveDebt(ctx, debt); err != nil {
		t.Fatalf("SaveDebt() error = %v", err)
	}

	got, err := s.GetDebt(ctx, "u1", "d1")
	if err != nil {
		t.Fatalf("GetDebt() error = %v", err)
	}
	if got.Name != debt.Name || got.PrincipalCents != debt.PrincipalCents || got.InterestRate != debt.InterestRate {
		t.Errorf("GetDebt() = %+v, want %+v", got, debt)
	}
	if got.MonthlyPayments["2024-01"] != 200000 {
		t.Errorf("monthlyPayments[2024-01] = %d, want 200000", got.MonthlyPayments["2024-01"])
	}
	if !got.CreatedAt.Equal(debt.CreatedAt) {
		t.Errorf("createdAt = %v, want %v", got.CreatedAt, debt.CreatedAt)
	}

	if _, err := s.GetDebt(ctx, "u1", "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetDebt(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetDebt(ctx, "u2", "d1"); !errors.Is(err, store.ErrNotFound) {
		t.Error("debts must be user scoped")
	}
}

func TestCommitPayment_TransactionRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	debt := core.Debt{ID: "d1", UserID: "u1", Name: "Loan", PrincipalCents: 100000}
	if err := s.SaveDebt(ctx, debt); err != nil {
		t.Fatalf("SaveDebt() error = %v", err)
	}

	res, err := core.ApplyDebtPayment(debt, nil, 20000, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ApplyDebtPayment() error = %v", err)
	}
	res.Expense.ID = "e1"
	// Point the cascade at a goal that does not exist; nothing may land.
	ghost := core.Goal{ID: "ghost", UserID: "u1", Name: "Ghost", Type: core.GoalDebtPayoff, TargetCents: 1, DebtID: "d1"}
	res.Goal = &ghost

	if err := s.CommitPayment(ctx, res); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("CommitPayment() error = %v, want ErrNotFound", err)
	}

	got, err := s.GetDebt(ctx, "u1", "d1")
	if err != nil {
		t.Fatalf("GetDebt() error = %v", err)
	}
	if got.TotalPaidCents != 0 {
		t.Errorf("debt was updated despite rollback: totalPaid = %d", got.TotalPaidCents)
	}
	expenses, err := s.ListExpenses(ctx, "u1", "")
	if err != nil {
		t.Fatalf("ListExpenses() error = %v", err)
	}
	if len(expenses) != 0 {
		t.Errorf("expense was inserted despite rollback: %+v", expenses)
	}
}

func TestCommitPayment_Succeeds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	debt := core.Debt{ID: "d1", UserID: "u1", Name: "Loan", PrincipalCents: 100000}
	goal := core.Goal{ID: "g1", UserID: "u1", Name: "Payoff", Type: core.GoalDebtPayoff, TargetCents: 100000, DebtID: "d1"}
	if err := s.SaveDebt(ctx, debt); err != nil {
		t.Fatalf("SaveDebt() error = %v", err)
	}
	if err := s.SaveGoal(ctx, goal); err != nil {
		t.Fatalf("SaveGoal() error = %v", err)
	}

	res, err := core.ApplyDebtPayment(debt, &goal, 20000, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ApplyDebtPayment() error = %v", err)
	}
	res.Expense.ID = "e1"
	if err := s.CommitPayment(ctx, res); err != nil {
		t.Fatalf("CommitPayment() error = %v", err)
	}

	gotDebt, _ := s.GetDebt(ctx, "u1", "d1")
	if gotDebt.BalanceCents != 80000 {
		t.Errorf("balance = %d, want 80000", gotDebt.BalanceCents)
	}
	gotGoal, _ := s.GetGoal(ctx, "u1", "g1")
	if gotGoal.CurrentCents != 20000 {
		t.Errorf("goal current = %d, want 20000", gotGoal.CurrentCents)
	}
	expenses, _ := s.ListExpenses(ctx, "u1", "2024-01")
	if len(expenses) != 1 || expenses[0].Category != core.CategoryDebtPayment {
		t.Errorf("expected one debt_payment expense, got %+v", expenses)
	}
}

func TestSetActiveMonth_Exclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, key := range []core.MonthKey{"2024-01", "2024-02"} {
		if err := s.UpsertMonth(ctx, core.Month{ID: key, UserID: "u1", Name: key.DisplayName(), Active: key == "2024-01"}); err != nil {
			t.Fatalf("UpsertMonth() error = %v", err)
		}
	}
	if err := s.SetActiveMonth(ctx, "u1", "2024-02"); err != nil {
		t.Fatalf("SetActiveMonth() error = %v", err)
	}

	months, err := s.ListMonths(ctx, "u1")
	if err != nil {
		t.Fatalf("ListMonths() error = %v", err)
	}
	for _, m := range months {
		if m.ID == "2024-02" && !m.Active {
			t.Error("2024-02 should be active")
		}
		if m.ID == "2024-01" && m.Active {
			t.Error("2024-01 should no longer be active")
		}
	}
}

func TestUpsertMonth_ActiveExclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, key := range []core.MonthKey{"2024-01", "2024-02"} {
		if err := s.UpsertMonth(ctx, core.Month{ID: key, UserID: "u1", Name: key.DisplayName(), Active: true}); err != nil {
			t.Fatalf("UpsertMonth() error = %v", err)
		}
	}

	months, err := s.ListMonths(ctx, "u1")
	if err != nil {
		t.Fatalf("ListMonths() error = %v", err)
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

func TestBlobBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveBlobs(ctx, "u1", map[string][]byte{
		"expenses_2024-01": []byte(`[]`),
		"expenses_2024-02": []byte(`[{"x":1}]`),
		"months":           []byte(`[]`),
	}); err != nil {
		t.Fatalf("SaveBlobs() error = %v", err)
	}

	keys, err := s.ListBlobKeys(ctx, "u1", "expenses_")
	if err != nil {
		t.Fatalf("ListBlobKeys() error = %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("len(keys) = %d, want 2", len(keys))
	}

	data, err := s.GetBlob(ctx, "u1", "expenses_2024-02")
	if err != nil || string(data) != `[{"x":1}]` {
		t.Errorf("GetBlob() = %s, %v", data, err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 1 || users[0] != "u1" {
		t.Errorf("users = %v, want [u1]", users)
	}
}

func TestProfileDefaultsAndRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.GetProfile(ctx, "fresh")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if !p.Notifications["budget"] {
		t.Error("default profile should enable budget notifications")
	}

	p.Email = "user@example.com"
	p.Notifications["budget"] = false
	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile() error = %v", err)
	}

	got, err := s.GetProfile(ctx, "fresh")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if got.Email != "user@example.com" || got.Notifications["budget"] {
		t.Errorf("GetProfile() = %+v", got)
	}
}
