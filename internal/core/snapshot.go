package core

import "sort"

// CategoryAmount pairs a category with its spend total.
type CategoryAmount struct {
	Category    ExpenseCategory `json:"category"`
	AmountCents int64           `json:"amount_cents"`
}

// Snapshot is the per-month financial picture handed to the advisor and to
// the fallback rules. Everything here is derived from stored entities;
// snapshots are never persisted.
type Snapshot struct {
	UserID               string           `json:"user_id"`
	Month                MonthKey         `json:"month"`
	IncomeCents          int64            `json:"income_cents"`
	ExpenseCents         int64            `json:"expense_cents"`
	DebtBalanceCents     int64            `json:"debt_balance_cents"`
	MinimumPaymentsCents int64            `json:"minimum_payments_cents"`
	ByCategory           []CategoryAmount `json:"by_category"`
}

// BuildSnapshot aggregates one month of a user's ledger. Expenses and
// incomes from other months are ignored; debt balances are taken from the
// month's balance snapshot when present, falling back to the live balance.
func BuildSnapshot(userID string, month MonthKey, incomes []Income, expenses []Expense, debts []Debt) Snapshot {
	snap := Snapshot{UserID: userID, Month: month}

	for _, in := range incomes {
		if in.Month == month {
			snap.IncomeCents += in.AmountCents
		}
	}

	byCategory := make(map[ExpenseCategory]int64)
	for _, ex := range expenses {
		if ex.Month != month {
			continue
		}
		snap.ExpenseCents += ex.AmountCents
		byCategory[ex.Category] += ex.AmountCents
	}
	for cat, amount := range byCategory {
		snap.ByCategory = append(snap.ByCategory, CategoryAmount{Category: cat, AmountCents: amount})
	}
	sort.Slice(snap.ByCategory, func(i, j int) bool {
		if snap.ByCategory[i].AmountCents != snap.ByCategory[j].AmountCents {
			return snap.ByCategory[i].AmountCents > snap.ByCategory[j].AmountCents
		}
		return snap.ByCategory[i].Category < snap.ByCategory[j].Category
	})

	for _, d := range debts {
		if d.PaidOff {
			continue
		}
		if balance, ok := d.MonthlyBalances[month]; ok {
			snap.DebtBalanceCents += balance
		} else {
			snap.DebtBalanceCents += d.BalanceCents
		}
		snap.MinimumPaymentsCents += d.MinimumPaymentCents
	}

	return snap
}

// NetCents is the month's income minus expenses.
func (s Snapshot) NetCents() int64 {
	return s.IncomeCents - s.ExpenseCents
}

// SavingsRate is the fraction of income left after expenses. Zero income
// yields zero; overspending yields a negative rate.
func (s Snapshot) SavingsRate() float64 {
	if s.IncomeCents <= 0 {
		return 0
	}
	return float64(s.NetCents()) / float64(s.IncomeCents)
}

// DebtToIncome is the ratio of minimum debt payments to monthly income.
// Zero income with outstanding debt is treated as fully leveraged.
func (s Snapshot) DebtToIncome() float64 {
	if s.IncomeCents <= 0 {
		if s.MinimumPaymentsCents > 0 {
			return 1
		}
		return 0
	}
	return float64(s.MinimumPaymentsCents) / float64(s.IncomeCents)
}

// TopCategory returns the largest spend category, ok=false when the month
// has no expenses.
func (s Snapshot) TopCategory() (CategoryAmount, bool) {
	if len(s.ByCategory) == 0 {
		return CategoryAmount{}, false
	}
	return s.ByCategory[0], true
}

// MonthSummary is the dashboard view of one month: snapshot totals plus
// budget consumption. Served by the summary endpoint and cached.
type MonthSummary struct {
	Month            MonthKey         `json:"month"`
	IncomeCents      int64            `json:"income_cents"`
	ExpenseCents     int64            `json:"expense_cents"`
	NetCents         int64            `json:"net_cents"`
	SavingsRate      float64          `json:"savings_rate"`
	DebtBalanceCents int64            `json:"debt_balance_cents"`
	ByCategory       []CategoryAmount `json:"by_category"`
	Budgets          []Budget         `json:"budgets"`
}

// Summarize builds the dashboard summary for a month. Budgets get their
// derived spent amounts filled in from the snapshot's category totals.
func Summarize(snap Snapshot, budgets []Budget) MonthSummary {
	summary := MonthSummary{
		Month:            snap.Month,
		IncomeCents:      snap.IncomeCents,
		ExpenseCents:     snap.ExpenseCents,
		NetCents:         snap.NetCents(),
		SavingsRate:      snap.SavingsRate(),
		DebtBalanceCents: snap.DebtBalanceCents,
		ByCategory:       snap.ByCategory,
	}
	spent := make(map[ExpenseCategory]int64, len(snap.ByCategory))
	for _, ca := range snap.ByCategory {
		spent[ca.Category] = ca.AmountCents
	}
	for _, b := range budgets {
		if b.Month != snap.Month {
			continue
		}
		b.SpentCents = spent[b.Category]
		summary.Budgets = append(summary.Budgets, b)
	}
	return summary
}
