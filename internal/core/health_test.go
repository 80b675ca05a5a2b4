package core

import (
	"reflect"
	"testing"
)

func TestFallbackHealthScore(t *testing.T) {
	tests := []struct {
		name        string
		savingsRate float64
		dti         float64
		want        int
	}{
		{"healthy saver low debt", 0.25, 0.10, 70},
		{"moderate saver", 0.12, 0.20, 55},
		{"no savings heavy debt", 0.01, 0.45, 25},
		{"overspending heavy debt", -0.10, 0.50, 15},
		{"debt free strong saver", 0.30, 0, 70},
		{"baseline", 0.07, 0.20, 50},
		{"floor", -0.50, 1.0, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FallbackHealthScore(tt.savingsRate, tt.dti); got != tt.want {
				t.Errorf("FallbackHealthScore(%v, %v) = %d, want %d", tt.savingsRate, tt.dti, got, tt.want)
			}
		})
	}
}

func TestFallbackHealthScore_Clamped(t *testing.T) {
	for rate := -2.0; rate <= 2.0; rate += 0.05 {
		for dti := 0.0; dti <= 2.0; dti += 0.05 {
			score := FallbackHealthScore(rate, dti)
			if score < 0 || score > 100 {
				t.Fatalf("FallbackHealthScore(%v, %v) = %d, out of [0,100]", rate, dti, score)
			}
		}
	}
}

func TestFallbackInsights_Deterministic(t *testing.T) {
	snap := Snapshot{
		UserID:               "u1",
		Month:                "2024-01",
		IncomeCents:          500000,
		ExpenseCents:         480000,
		DebtBalanceCents:     2000000,
		MinimumPaymentsCents: 150000,
		ByCategory: []CategoryAmount{
			{CategoryEntertainment, 250000},
			{CategoryFood, 130000},
			{CategoryDebtPayment, 100000},
		},
	}

	first := FallbackInsights(snap)
	second := FallbackInsights(snap)
	if !reflect.DeepEqual(first, second) {
		t.Error("identical snapshots must produce identical insights")
	}
	if len(first) == 0 {
		t.Fatal("expected at least one insight")
	}

	// Low savings rate plus heavy debt must both surface.
	var sawSavings, sawDebt bool
	for _, in := range first {
		switch in.Type {
		case "savings":
			sawSavings = true
		case "debt":
			sawDebt = true
			if in.Impact != ImpactHigh {
				t.Errorf("heavy debt insight impact = %q, want %q", in.Impact, ImpactHigh)
			}
		}
	}
	if !sawSavings {
		t.Error("expected a savings insight for a 4% savings rate")
	}
	if !sawDebt {
		t.Error("expected a debt insight for 30% debt-to-income")
	}
}

func TestFallbackCategory(t *testing.T) {
	tests := []struct {
		description string
		want        ExpenseCategory
	}{
		{"Monthly rent payment", CategoryHousing},
		{"Grocery run at the supermarket", CategoryFood},
		{"Netflix subscription", CategorySubscriptions},
		{"Uber to the airport", CategoryTransport},
		{"Credit card repayment", CategoryDebtPayment},
		{"Pharmacy pickup", CategoryHealthcare},
		{"mystery purchase", CategoryOther},
		{"", CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			if got := FallbackCategory(tt.description); got != tt.want {
				t.Errorf("FallbackCategory(%q) = %q, want %q", tt.description, got, tt.want)
			}
		})
	}
}

func TestFallbackGoalPriorities_Order(t *testing.T) {
	goals := []Goal{
		{ID: "g1", Name: "Vacation", Type: GoalSavings, TargetCents: 100000, Priority: 1},
		{ID: "g2", Name: "Emergency fund", Type: GoalEmergencyFund, TargetCents: 300000, Priority: 3},
		{ID: "g3", Name: "Pay off card", Type: GoalDebtPayoff, TargetCents: 50000, Priority: 2},
		{ID: "g4", Name: "Done already", Type: GoalSavings, TargetCents: 1000, CurrentCents: 1000, Completed: true},
	}

	got := FallbackGoalPriorities(goals)
	wantOrder := []string{"g2", "g3", "g1", "g4"}
	for i, want := range wantOrder {
		if got[i].GoalID != want {
			t.Errorf("rank %d = %s, want %s", i+1, got[i].GoalID, want)
		}
		if got[i].Rank != i+1 {
			t.Errorf("rank field = %d, want %d", got[i].Rank, i+1)
		}
	}
}

func TestFallbackSpendingAreas(t *testing.T) {
	snap := Snapshot{
		ExpenseCents: 100000,
		ByCategory: []CategoryAmount{
			{CategoryHousing, 50000},       // essential, skipped
			{CategoryEntertainment, 30000}, // 30%, flagged
			{CategoryFood, 16000},          // 16%, flagged
			{CategorySubscriptions, 4000},  // 4%, below threshold
		},
	}

	areas := FallbackSpendingAreas(snap)
	if len(areas) != 2 {
		t.Fatalf("len(areas) = %d, want 2: %+v", len(areas), areas)
	}
	if areas[0].Category != CategoryEntertainment || areas[1].Category != CategoryFood {
		t.Errorf("flagged categories = %v, %v", areas[0].Category, areas[1].Category)
	}

	if got := FallbackSpendingAreas(Snapshot{}); got != nil {
		t.Errorf("empty snapshot should flag nothing, got %v", got)
	}
}

func TestFallbackGoalAdvice_MonthlyPlan(t *testing.T) {
	goal := Goal{
		ID:           "g1",
		Name:         "Emergency fund",
		Type:         GoalEmergencyFund,
		TargetCents:  120000,
		CurrentCents: 60000,
		TargetDate:   date("2024-07-01"),
	}
	snap := Snapshot{Month: "2024-01", IncomeCents: 500000, ExpenseCents: 400000}

	advice := FallbackGoalAdvice(goal, snap)
	if len(advice) < 2 {
		t.Fatalf("expected remaining amount plus monthly plan, got %v", advice)
	}
	// 60000 cents over 6 months = 10000/month
	if want := "Contributing 100.00 per month reaches the target on schedule."; advice[1] != want {
		t.Errorf("advice[1] = %q, want %q", advice[1], want)
	}
}
