package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPaymentExceedsBalance is not raised today (overpayment clamps the
	// balance at zero) but is kept as a sentinel for callers that want to
	// pre-validate amounts against the outstanding balance.
	ErrPaymentExceedsBalance = errors.New("payment exceeds outstanding balance")

	ErrGoalMismatch = errors.New("goal is not linked to this debt")
)

// PaymentResult is the complete outcome of applying one debt payment: the
// updated debt, the cascaded goal (nil when the debt has no linked goal) and
// the derived expense entry. Callers persist all three atomically.
type PaymentResult struct {
	Debt    Debt
	Goal    *Goal
	Expense Expense
}

// ApplyDebtPayment records a payment against a debt for the month containing
// date. Payments in the same month accumulate. The debt's totals are fully
// recomputed from the payment map, the end-of-month balance snapshot is
// updated, and a debt_payment expense dated at the payment date is derived.
// When goal is non-nil it must be linked to the debt via DebtID; the payment
// is cascaded into its monthly progress.
//
// The inputs are not mutated; updated copies are returned.
func ApplyDebtPayment(debt Debt, goal *Goal, amountCents int64, date time.Time) (PaymentResult, error) {
	if amountCents <= 0 {
		return PaymentResult{}, ErrInvalidAmount
	}
	if date.IsZero() {
		return PaymentResult{}, ErrInvalidDate
	}
	if goal != nil && goal.DebtID != debt.ID {
		return PaymentResult{}, ErrGoalMismatch
	}

	month := MonthOf(date)

	updated := debt
	updated.MonthlyPayments = cloneAmounts(debt.MonthlyPayments)
	updated.MonthlyBalances = cloneAmounts(debt.MonthlyBalances)
	updated.MonthlyPayments[month] += amountCents
	RecomputeDebt(&updated)
	updated.MonthlyBalances[month] = updated.BalanceCents

	result := PaymentResult{
		Debt: updated,
		Expense: Expense{
			UserID:      debt.UserID,
			Month:       month,
			AmountCents: amountCents,
			Category:    CategoryDebtPayment,
			Date:        date,
			DebtID:      debt.ID,
			Description: fmt.Sprintf("Payment toward %s", debt.Name),
		},
	}

	if goal != nil {
		g := *goal
		g.MonthlyProgress = cloneAmounts(goal.MonthlyProgress)
		g.MonthlyProgress[month] += amountCents
		RecomputeGoal(&g)
		result.Goal = &g
	}

	return result, nil
}

// RecomputeDebt rebuilds the derived fields from the payment map:
// totalPaid = sum(payments), balance = max(0, principal - totalPaid),
// paidOff follows the balance.
func RecomputeDebt(d *Debt) {
	d.TotalPaidCents = sumCents(d.MonthlyPayments)
	d.BalanceCents = d.PrincipalCents - d.TotalPaidCents
	if d.BalanceCents < 0 {
		d.BalanceCents = 0
	}
	d.PaidOff = d.BalanceCents <= 0
}

// RecomputeGoal rebuilds current = sum(monthlyProgress) and the completed
// flag from the progress map.
func RecomputeGoal(g *Goal) {
	g.CurrentCents = sumCents(g.MonthlyProgress)
	g.Completed = g.CurrentCents >= g.TargetCents
}

// AddGoalContribution records a manual contribution for the month containing
// date and recomputes the goal. The input is not mutated.
func AddGoalContribution(goal Goal, amountCents int64, date time.Time) (Goal, error) {
	if amountCents <= 0 {
		return Goal{}, ErrInvalidAmount
	}
	if date.IsZero() {
		return Goal{}, ErrInvalidDate
	}
	g := goal
	g.MonthlyProgress = cloneAmounts(goal.MonthlyProgress)
	g.MonthlyProgress[MonthOf(date)] += amountCents
	RecomputeGoal(&g)
	return g, nil
}

func cloneAmounts(m map[MonthKey]int64) map[MonthKey]int64 {
	out := make(map[MonthKey]int64, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
