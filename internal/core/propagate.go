package core

import "errors"

// ErrNotEnoughMonths rejects propagation when there is nothing to carry
// forward into.
var ErrNotEnoughMonths = errors.New("propagation requires at least two months")

// PropagationResult carries the updated entity sets plus a count of the
// entries that were seeded, so callers can report and persist the outcome
// as one unit.
type PropagationResult struct {
	Debts  []Debt
	Goals  []Goal
	Seeded int
}

// PropagateMonths carries end-of-month state forward through the given
// months. For every adjacent (current, next) pair, each debt missing a
// balance snapshot for next inherits current's snapshot; each goal missing a
// progress entry for next gets a zero entry so its current amount is
// unchanged. Existing entries always win and are never overwritten.
//
// Months are ordered chronologically by key before walking, so December
// rolls into the following January naturally. Fewer than two months is a
// rejection with no mutation. The inputs are not mutated; updated copies are
// returned.
func PropagateMonths(months []Month, debts []Debt, goals []Goal) (PropagationResult, error) {
	if len(months) < 2 {
		return PropagationResult{}, ErrNotEnoughMonths
	}

	ordered := make([]Month, len(months))
	copy(ordered, months)
	SortMonths(ordered)

	result := PropagationResult{
		Debts: make([]Debt, len(debts)),
		Goals: make([]Goal, len(goals)),
	}
	for i, d := range debts {
		d.MonthlyPayments = cloneAmounts(d.MonthlyPayments)
		d.MonthlyBalances = cloneAmounts(d.MonthlyBalances)
		result.Debts[i] = d
	}
	for i, g := range goals {
		g.MonthlyProgress = cloneAmounts(g.MonthlyProgress)
		result.Goals[i] = g
	}

	for i := 0; i < len(ordered)-1; i++ {
		cur := ordered[i].ID
		next := ordered[i+1].ID

		for j := range result.Debts {
			d := &result.Debts[j]
			if _, ok := d.MonthlyBalances[next]; ok {
				continue
			}
			if balance, ok := d.MonthlyBalances[cur]; ok {
				d.MonthlyBalances[next] = balance
				result.Seeded++
			}
		}
		for j := range result.Goals {
			g := &result.Goals[j]
			if _, ok := g.MonthlyProgress[next]; ok {
				continue
			}
			if _, ok := g.MonthlyProgress[cur]; ok {
				g.MonthlyProgress[next] = 0
				result.Seeded++
			}
		}
	}

	// Seeding never changes payment history or progress sums, but recompute
	// anyway so stored derived fields are consistent after the commit.
	for j := range result.Debts {
		RecomputeDebt(&result.Debts[j])
	}
	for j := range result.Goals {
		RecomputeGoal(&result.Goals[j])
	}

	return result, nil
}
