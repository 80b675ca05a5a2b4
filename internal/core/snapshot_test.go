package core

import "testing"

func TestBuildSnapshot(t *testing.T) {
	incomes := []Income{
		{Month: "2024-01", Source: "Salary", AmountCents: 500000},
		{Month: "2024-01", Source: "Freelance", AmountCents: 50000},
		{Month: "2024-02", Source: "Salary", AmountCents: 500000}, // other month, ignored
	}
	expenses := []Expense{
		{Month: "2024-01", Category: CategoryFood, AmountCents: 60000},
		{Month: "2024-01", Category: CategoryFood, AmountCents: 20000},
		{Month: "2024-01", Category: CategoryHousing, AmountCents: 150000},
		{Month: "2024-02", Category: CategoryFood, AmountCents: 99999},
	}
	debts := []Debt{
		{Name: "Loan", PrincipalCents: 1000000, BalanceCents: 800000, MinimumPaymentCents: 20000,
			MonthlyBalances: map[MonthKey]int64{"2024-01": 750000}},
		{Name: "Card", PrincipalCents: 100000, BalanceCents: 40000, MinimumPaymentCents: 5000},
		{Name: "Old", PrincipalCents: 50000, PaidOff: true, MinimumPaymentCents: 1000},
	}

	snap := BuildSnapshot("u1", "2024-01", incomes, expenses, debts)

	if snap.IncomeCents != 550000 {
		t.Errorf("income = %d, want 550000", snap.IncomeCents)
	}
	if snap.ExpenseCents != 230000 {
		t.Errorf("expenses = %d, want 230000", snap.ExpenseCents)
	}
	// Month snapshot wins for the loan, live balance for the card, paid-off skipped.
	if snap.DebtBalanceCents != 790000 {
		t.Errorf("debt balance = %d, want 790000", snap.DebtBalanceCents)
	}
	if snap.MinimumPaymentsCents != 25000 {
		t.Errorf("minimum payments = %d, want 25000", snap.MinimumPaymentsCents)
	}

	top, ok := snap.TopCategory()
	if !ok || top.Category != CategoryHousing || top.AmountCents != 150000 {
		t.Errorf("top category = %+v (ok=%v), want housing 150000", top, ok)
	}
}

func TestSnapshot_Ratios(t *testing.T) {
	tests := []struct {
		name        string
		snap        Snapshot
		wantSavings float64
		wantDTI     float64
	}{
		{"normal month", Snapshot{IncomeCents: 500000, ExpenseCents: 375000, MinimumPaymentsCents: 50000}, 0.25, 0.10},
		{"no income no debt", Snapshot{}, 0, 0},
		{"no income with debt", Snapshot{MinimumPaymentsCents: 5000}, 0, 1},
		{"overspent", Snapshot{IncomeCents: 100000, ExpenseCents: 150000}, -0.5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.SavingsRate(); got != tt.wantSavings {
				t.Errorf("SavingsRate() = %v, want %v", got, tt.wantSavings)
			}
			if got := tt.snap.DebtToIncome(); got != tt.wantDTI {
				t.Errorf("DebtToIncome() = %v, want %v", got, tt.wantDTI)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	snap := Snapshot{
		Month:        "2024-01",
		IncomeCents:  500000,
		ExpenseCents: 300000,
		ByCategory: []CategoryAmount{
			{CategoryHousing, 150000},
			{CategoryFood, 150000},
		},
	}
	budgets := []Budget{
		{ID: "b1", Month: "2024-01", Category: CategoryFood, LimitCents: 120000},
		{ID: "b2", Month: "2024-01", Category: CategoryTransport, LimitCents: 50000},
		{ID: "b3", Month: "2024-02", Category: CategoryFood, LimitCents: 120000},
	}

	sum := Summarize(snap, budgets)
	if sum.NetCents != 200000 {
		t.Errorf("net = %d, want 200000", sum.NetCents)
	}
	if len(sum.Budgets) != 2 {
		t.Fatalf("len(budgets) = %d, want 2 (other month excluded)", len(sum.Budgets))
	}
	if sum.Budgets[0].SpentCents != 150000 {
		t.Errorf("food spent = %d, want 150000", sum.Budgets[0].SpentCents)
	}
	if sum.Budgets[1].SpentCents != 0 {
		t.Errorf("transport spent = %d, want 0", sum.Budgets[1].SpentCents)
	}
}
