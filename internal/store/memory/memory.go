// Package memory provides an in-memory Store implementation. It is the
// default backend for local development and the fake used by tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"finbook/internal/core"
	"finbook/internal/store"
)

// Store keeps all data in mutex-guarded maps keyed by user. Entities with
// internal maps (debts, goals) are deep-copied on every read and write so
// callers can never alias stored state.
type Store struct {
	mu sync.RWMutex

	users     map[string]struct{}
	months    map[string]map[core.MonthKey]core.Month
	incomes   map[string]map[string]core.Income
	expenses  map[string]map[string]core.Expense
	budgets   map[string]map[string]core.Budget
	debts     map[string]map[string]core.Debt
	goals     map[string]map[string]core.Goal
	recs      map[string]map[string]core.Recommendation
	alerts    map[string]map[string]core.Alert
	profiles  map[string]core.UserProfile
	scenarios map[string]map[string]core.Scenario
	blobs     map[string]map[string][]byte
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:     make(map[string]struct{}),
		months:    make(map[string]map[core.MonthKey]core.Month),
		incomes:   make(map[string]map[string]core.Income),
		expenses:  make(map[string]map[string]core.Expense),
		budgets:   make(map[string]map[string]core.Budget),
		debts:     make(map[string]map[string]core.Debt),
		goals:     make(map[string]map[string]core.Goal),
		recs:      make(map[string]map[string]core.Recommendation),
		alerts:    make(map[string]map[string]core.Alert),
		profiles:  make(map[string]core.UserProfile),
		scenarios: make(map[string]map[string]core.Scenario),
		blobs:     make(map[string]map[string][]byte),
	}
}

func (s *Store) touchUser(userID string) {
	s.users[userID] = struct{}{}
}

// Months

// UpsertMonth keeps activation exclusive: writing an active month clears the
// flag on the user's other months.
func (s *Store) UpsertMonth(ctx context.Context, m core.Month) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchUser(m.UserID)
	if s.months[m.UserID] == nil {
		s.months[m.UserID] = make(map[core.MonthKey]core.Month)
	}
	if m.Active {
		for key, other := range s.months[m.UserID] {
			if key != m.ID && other.Active {
				other.Active = false
				s.months[m.UserID][key] = other
			}
		}
	}
	s.months[m.UserID][m.ID] = m
	return nil
}

func (s *Store) GetMonth(ctx context.Context, userID string, id core.MonthKey) (core.Month, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.months[userID][id]
	if !ok {
		return core.Month{}, store.ErrNotFound
	}
	return m, nil
}

func (s *Store) ListMonths(ctx context.Context, userID string) ([]core.Month, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Month, 0, len(s.months[userID]))
	for _, m := range s.months[userID] {
		out = append(out, m)
	}
	core.SortMonths(out)
	return out, nil
}

func (s *Store) SetActiveMonth(ctx context.Context, userID string, id core.MonthKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.months[userID][id]; !ok {
		return store.ErrNotFound
	}
	for key, m := range s.months[userID] {
		m.Active = key == id
		s.months[userID][key] = m
	}
	return nil
}

func (s *Store) DeleteMonth(ctx context.Context, userID string, id core.MonthKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.months[userID][id]; !ok {
		return store.ErrNotFound
	}
	delete(s.months[userID], id)
	return nil
}

// Incomes, expenses, budgets

func (s *Store) SaveIncome(ctx context.Context, in core.Income) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchUser(in.UserID)
	if s.incomes[in.UserID] == nil {
		s.incomes[in.UserID] = make(map[string]core.Income)
	}
	s.incomes[in.UserID][in.ID] = in
	return nil
}

func (s *Store) ListIncomes(ctx context.Context, userID string, month core.MonthKey) ([]core.Income, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Income
	for _, in := range s.incomes[userID] {
		if month == "" || in.Month == month {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteIncome(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incomes[userID][id]; !ok {
		return store.ErrNotFound
	}
	delete(s.incomes[userID], id)
	return nil
}

func (s *Store) SaveExpense(ctx context.Context, ex core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveExpenseLocked(ex)
	return nil
}

func (s *Store) saveExpenseLocked(ex core.Expense) {
	s.touchUser(ex.UserID)
	if s.expenses[ex.UserID] == nil {
		s.expenses[ex.UserID] = make(map[string]core.Expense)
	}
	s.expenses[ex.UserID][ex.ID] = ex
}

func (s *Store) ListExpenses(ctx context.Context, userID string, month core.MonthKey) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Expense
	for _, ex := range s.expenses[userID] {
		if month == "" || ex.Month == month {
			out = append(out, ex)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteExpense(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[userID][id]; !ok {
		return store.ErrNotFound
	}
	delete(s.expenses[userID], id)
	return nil
}

func (s *Store) SaveBudget(ctx context.Context, b core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchUser(b.UserID)
	if s.budgets[b.UserID] == nil {
		s.budgets[b.UserID] = make(map[string]core.Budget)
	}
	s.budgets[b.UserID][b.ID] = b
	return nil
}

func (s *Store) ListBudgets(ctx context.Context, userID string, month core.MonthKey) ([]core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Budget
	for _, b := range s.budgets[userID] {
		if month == "" || b.Month == month {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month.Before(out[j].Month)
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (s *Store) DeleteBudget(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgets[userID][id]; !ok {
		return store.ErrNotFound
	}
	delete(s.budgets[userID], id)
	return nil
}

// Debts

func (s *Store) SaveDebt(ctx context.Context, d core.Debt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveDebtLocked(d)
	return nil
}

func (s *Store) saveDebtLocked(d core.Debt) {
	s.touchUser(d.UserID)
	if s.debts[d.UserID] == nil {
		s.debts[d.UserID] = make(map[string]core.Debt)
	}
	s.debts[d.UserID][d.ID] = copyDebt(d)
}

func (s *Store) GetDebt(ctx context.Context, userID, id string) (core.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.debts[userID][id]
	if !ok {
		return core.Debt{}, store.ErrNotFound
	}
	return copyDebt(d), nil
}

func (s *Store) ListDebts(ctx context.Context, userID string) ([]core.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Debt, 0, len(s.debts[userID]))
	for _, d := range s.debts[userID] {
		out = append(out, copyDebt(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) DeleteDebt(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.debts[userID][id]; !ok {
		return store.ErrNotFound
	}
	delete(s.debts[userID], id)
	return nil
}

// Goals

func (s *Store) SaveGoal(ctx context.Context, g core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveGoalLocked(g)
	return nil
}

func (s *Store) saveGoalLocked(g core.Goal) {
	s.touchUser(g.UserID)
	if s.goals[g.UserID] == nil {
		s.goals[g.UserID] = make(map[string]core.Goal)
	}
	s.goals[g.UserID][g.ID] = copyGoal(g)
}

func (s *Store) GetGoal(ctx context.Context, userID, id string) (core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[userID][id]
	if !ok {
		return core.Goal{}, store.ErrNotFound
	}
	return copyGoal(g), nil
}

func (s *Store) GetGoalByDebt(ctx context.Context, userID, debtID string) (core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.goals[userID] {
		if g.DebtID == debtID {
			return copyGoal(g), nil
		}
	}
	return core.Goal{}, store.ErrNotFound
}

func (s *Store) ListGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Goal, 0, len(s.goals[userID]))
	for _, g := range s.goals[userID] {
		out = append(out, copyGoal(g))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) DeleteGoal(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[userID][id]; !ok {
		return store.ErrNotFound
	}
	delete(s.goals[userID], id)
	return nil
}

// Atomic ledger writes. Under one mutex these are trivially atomic.

func (s *Store) CommitPayment(ctx context.Context, res core.PaymentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.debts[res.Debt.UserID][res.Debt.ID]; !ok {
		return store.ErrNotFound
	}
	if res.Goal != nil {
		if _, ok := s.goals[res.Goal.UserID][res.Goal.ID]; !ok {
			return store.ErrNotFound
		}
	}
	s.saveDebtLocked(res.Debt)
	if res.Goal != nil {
		s.saveGoalLocked(*res.Goal)
	}
	s.saveExpenseLocked(res.Expense)
	return nil
}

func (s *Store) SavePropagation(ctx context.Context, userID string, res core.PropagationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range res.Debts {
		if _, ok := s.debts[userID][d.ID]; !ok {
			return store.ErrNotFound
		}
	}
	for _, g := range res.Goals {
		if _, ok := s.goals[userID][g.ID]; !ok {
			return store.ErrNotFound
		}
	}
	for _, d := range res.Debts {
		s.saveDebtLocked(d)
	}
	for _, g := range res.Goals {
		s.saveGoalLocked(g)
	}
	return nil
}

// Recommendations and alerts

func (s *Store) ReplaceRecommendations(ctx context.Context, userID string, recs []core.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchUser(userID)
	fresh := make(map[string]core.Recommendation, len(recs))
	for _, r := range recs {
		fresh[r.ID] = r
	}
	s.recs[userID] = fresh
	return nil
}

func (s *Store) ListRecommendations(ctx context.Context, userID string) ([]core.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Recommendation, 0, len(s.recs[userID]))
	for _, r := range s.recs[userID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) MarkRecommendationRead(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[userID][id]
	if !ok {
		return store.ErrNotFound
	}
	r.Read = true
	s.recs[userID][id] = r
	return nil
}

func (s *Store) AddAlert(ctx context.Context, a core.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchUser(a.UserID)
	if s.alerts[a.UserID] == nil {
		s.alerts[a.UserID] = make(map[string]core.Alert)
	}
	s.alerts[a.UserID][a.ID] = a
	return nil
}

func (s *Store) ListAlerts(ctx context.Context, userID string) ([]core.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Alert, 0, len(s.alerts[userID]))
	for _, a := range s.alerts[userID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) MarkAlertRead(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[userID][id]
	if !ok {
		return store.ErrNotFound
	}
	a.Read = true
	s.alerts[userID][id] = a
	return nil
}

// Profiles

func (s *Store) GetProfile(ctx context.Context, userID string) (core.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[userID]; ok {
		return copyProfile(p), nil
	}
	return defaultProfile(userID), nil
}

func (s *Store) SaveProfile(ctx context.Context, p core.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchUser(p.UserID)
	s.profiles[p.UserID] = copyProfile(p)
	return nil
}

// Scenarios

func (s *Store) SaveScenario(ctx context.Context, sc core.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchUser(sc.UserID)
	if s.scenarios[sc.UserID] == nil {
		s.scenarios[sc.UserID] = make(map[string]core.Scenario)
	}
	sc.Data = append([]byte(nil), sc.Data...)
	s.scenarios[sc.UserID][sc.ID] = sc
	return nil
}

func (s *Store) GetScenario(ctx context.Context, userID, id string) (core.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scenarios[userID][id]
	if !ok {
		return core.Scenario{}, store.ErrNotFound
	}
	sc.Data = append([]byte(nil), sc.Data...)
	return sc, nil
}

func (s *Store) ListScenarios(ctx context.Context, userID string) ([]core.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Scenario, 0, len(s.scenarios[userID]))
	for _, sc := range s.scenarios[userID] {
		sc.Data = append([]byte(nil), sc.Data...)
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteScenario(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scenarios[userID][id]; !ok {
		return store.ErrNotFound
	}
	delete(s.scenarios[userID], id)
	return nil
}

// Blobs

func (s *Store) SaveBlob(ctx context.Context, userID, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveBlobLocked(userID, key, data)
	return nil
}

func (s *Store) saveBlobLocked(userID, key string, data []byte) {
	s.touchUser(userID)
	if s.blobs[userID] == nil {
		s.blobs[userID] = make(map[string][]byte)
	}
	s.blobs[userID][key] = append([]byte(nil), data...)
}

func (s *Store) GetBlob(ctx context.Context, userID, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[userID][key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *Store) DeleteBlob(ctx context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[userID][key]; !ok {
		return store.ErrNotFound
	}
	delete(s.blobs[userID], key)
	return nil
}

func (s *Store) ListBlobKeys(ctx context.Context, userID, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for key := range s.blobs[userID] {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) SaveBlobs(ctx context.Context, userID string, blobs map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, data := range blobs {
		s.saveBlobLocked(userID, key, data)
	}
	return nil
}

// Users

func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.users))
	for u := range s.users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func copyDebt(d core.Debt) core.Debt {
	d.MonthlyPayments = copyAmounts(d.MonthlyPayments)
	d.MonthlyBalances = copyAmounts(d.MonthlyBalances)
	return d
}

func copyGoal(g core.Goal) core.Goal {
	g.MonthlyProgress = copyAmounts(g.MonthlyProgress)
	return g
}

func copyAmounts(m map[core.MonthKey]int64) map[core.MonthKey]int64 {
	if m == nil {
		return nil
	}
	out := make(map[core.MonthKey]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyProfile(p core.UserProfile) core.UserProfile {
	if p.Notifications != nil {
		n := make(map[string]bool, len(p.Notifications))
		for k, v := range p.Notifications {
			n[k] = v
		}
		p.Notifications = n
	}
	return p
}

func defaultProfile(userID string) core.UserProfile {
	return core.UserProfile{
		UserID: userID,
		Notifications: map[string]bool{
			"budget": true,
			"debt":   true,
			"goal":   true,
		},
	}
}
