// Package services orchestrates the ledger: store writes, derived-field
// recomputation, snapshot change fan-out, and alert generation.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finbook/internal/amqp"
	"finbook/internal/core"
	"finbook/internal/log"
	"finbook/internal/store"
)

// Publisher emits snapshot change notifications. The AMQP client implements
// it; a nil publisher disables fan-out.
type Publisher interface {
	PublishSnapshotChanged(msg amqp.SnapshotChangedMessage) error
}

// LedgerService coordinates store, core arithmetic, and messaging. Every
// mutation notifies downstream consumers best effort; a broker failure never
// fails the user's request.
type LedgerService struct {
	store  store.Store
	pub    Publisher
	logger *log.Logger
}

func NewLedgerService(st store.Store, pub Publisher, logger *log.Logger) *LedgerService {
	return &LedgerService{
		store:  st,
		pub:    pub,
		logger: logger.WithComponent(log.ComponentLedger),
	}
}

// RecordDebtPayment applies a payment to a debt, cascades it into a linked
// goal, and records the derived expense. The whole result commits atomically.
func (s *LedgerService) RecordDebtPayment(ctx context.Context, userID, debtID string, amountCents int64, date time.Time) (core.PaymentResult, error) {
	debt, err := s.store.GetDebt(ctx, userID, debtID)
	if err != nil {
		return core.PaymentResult{}, fmt.Errorf("load debt: %w", err)
	}

	var goal *core.Goal
	linked, err := s.store.GetGoalByDebt(ctx, userID, debtID)
	switch {
	case err == nil:
		goal = &linked
	case errors.Is(err, store.ErrNotFound):
		// No goal linked to this debt.
	default:
		return core.PaymentResult{}, fmt.Errorf("load linked goal: %w", err)
	}

	result, err := core.ApplyDebtPayment(debt, goal, amountCents, date)
	if err != nil {
		return core.PaymentResult{}, err
	}
	result.Expense.ID = uuid.NewString()

	if err := s.store.CommitPayment(ctx, result); err != nil {
		return core.PaymentResult{}, fmt.Errorf("commit payment: %w", err)
	}

	s.logger.InfoContext(ctx, "debt payment recorded",
		log.NewFields().
			WithUser(userID).
			WithPayment(debtID, amountCents, string(result.Expense.Month)).
			WithOperation(log.OpPayment).ToSlice()...)

	s.notify(ctx, userID, result.Expense.Month, amqp.ReasonDebtPayment)
	s.checkBudgetAlert(ctx, userID, result.Expense)
	if result.Goal != nil && result.Goal.Completed {
		s.raiseGoalCompletedAlert(ctx, userID, *result.Goal)
	}
	return result, nil
}

// AddGoalContribution records progress toward a goal for the month of date.
func (s *LedgerService) AddGoalContribution(ctx context.Context, userID, goalID string, amountCents int64, date time.Time) (core.Goal, error) {
	goal, err := s.store.GetGoal(ctx, userID, goalID)
	if err != nil {
		return core.Goal{}, fmt.Errorf("load goal: %w", err)
	}

	wasCompleted := goal.Completed
	updated, err := core.AddGoalContribution(goal, amountCents, date)
	if err != nil {
		return core.Goal{}, err
	}

	if err := s.store.SaveGoal(ctx, updated); err != nil {
		return core.Goal{}, fmt.Errorf("save goal: %w", err)
	}

	s.notify(ctx, userID, core.MonthOf(date), amqp.ReasonGoalProgress)
	if updated.Completed && !wasCompleted {
		s.raiseGoalCompletedAlert(ctx, userID, updated)
	}
	return updated, nil
}

// PropagateAllMonths carries debt balances and goal progress entries forward
// across the user's whole month list. All touched entities commit in one
// transaction; on any failure nothing changes.
func (s *LedgerService) PropagateAllMonths(ctx context.Context, userID string) (core.PropagationResult, error) {
	months, err := s.store.ListMonths(ctx, userID)
	if err != nil {
		return core.PropagationResult{}, fmt.Errorf("list months: %w", err)
	}
	debts, err := s.store.ListDebts(ctx, userID)
	if err != nil {
		return core.PropagationResult{}, fmt.Errorf("list debts: %w", err)
	}
	goals, err := s.store.ListGoals(ctx, userID)
	if err != nil {
		return core.PropagationResult{}, fmt.Errorf("list goals: %w", err)
	}

	result, err := core.PropagateMonths(months, debts, goals)
	if err != nil {
		return core.PropagationResult{}, err
	}

	if err := s.store.SavePropagation(ctx, userID, result); err != nil {
		return core.PropagationResult{}, fmt.Errorf("save propagation: %w", err)
	}

	s.logger.InfoContext(ctx, "months propagated",
		log.FieldUserID, userID,
		log.FieldOperation, log.OpPropagate,
		"months", len(months),
		"seeded_entries", result.Seeded)

	if len(months) > 0 {
		core.SortMonths(months)
		s.notify(ctx, userID, months[len(months)-1].ID, amqp.ReasonMonthPropagate)
	}
	return result, nil
}

// BuildSnapshot aggregates the user's stored entities into the month snapshot
// consumed by the advisor and the summary endpoint.
func (s *LedgerService) BuildSnapshot(ctx context.Context, userID string, month core.MonthKey) (core.Snapshot, error) {
	incomes, err := s.store.ListIncomes(ctx, userID, month)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("list incomes: %w", err)
	}
	expenses, err := s.store.ListExpenses(ctx, userID, month)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("list expenses: %w", err)
	}
	debts, err := s.store.ListDebts(ctx, userID)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("list debts: %w", err)
	}
	return core.BuildSnapshot(userID, month, incomes, expenses, debts), nil
}

// MonthSummary builds the dashboard summary for one month.
func (s *LedgerService) MonthSummary(ctx context.Context, userID string, month core.MonthKey) (core.MonthSummary, error) {
	snap, err := s.BuildSnapshot(ctx, userID, month)
	if err != nil {
		return core.MonthSummary{}, err
	}
	budgets, err := s.store.ListBudgets(ctx, userID, month)
	if err != nil {
		return core.MonthSummary{}, fmt.Errorf("list budgets: %w", err)
	}
	return core.Summarize(snap, budgets), nil
}

// CreateMonth registers a month, defaulting the display name.
func (s *LedgerService) CreateMonth(ctx context.Context, m core.Month) (core.Month, error) {
	if m.Name == "" {
		m.Name = m.ID.DisplayName()
	}
	if err := m.Validate(); err != nil {
		return core.Month{}, err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := s.store.UpsertMonth(ctx, m); err != nil {
		return core.Month{}, fmt.Errorf("save month: %w", err)
	}
	return m, nil
}

// ActivateMonth makes the given month the user's active one.
func (s *LedgerService) ActivateMonth(ctx context.Context, userID string, id core.MonthKey) error {
	if err := s.store.SetActiveMonth(ctx, userID, id); err != nil {
		return fmt.Errorf("activate month: %w", err)
	}
	return nil
}

// CreateIncome validates and stores an income entry.
func (s *LedgerService) CreateIncome(ctx context.Context, in core.Income) (core.Income, error) {
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Month == "" {
		in.Month = core.MonthOf(in.Date)
	}
	if err := s.store.SaveIncome(ctx, in); err != nil {
		return core.Income{}, fmt.Errorf("save income: %w", err)
	}
	s.notify(ctx, in.UserID, in.Month, amqp.ReasonEntryChanged)
	return in, nil
}

// CreateExpense validates and stores an expense entry, then checks the
// category budget.
func (s *LedgerService) CreateExpense(ctx context.Context, ex core.Expense) (core.Expense, error) {
	if err := ex.Validate(); err != nil {
		return core.Expense{}, err
	}
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.Month == "" {
		ex.Month = core.MonthOf(ex.Date)
	}
	if err := s.store.SaveExpense(ctx, ex); err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.notify(ctx, ex.UserID, ex.Month, amqp.ReasonEntryChanged)
	s.checkBudgetAlert(ctx, ex.UserID, ex)
	return ex, nil
}

// SaveBudget validates and stores a category budget.
func (s *LedgerService) SaveBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if err := s.store.SaveBudget(ctx, b); err != nil {
		return core.Budget{}, fmt.Errorf("save budget: %w", err)
	}
	s.notify(ctx, b.UserID, b.Month, amqp.ReasonEntryChanged)
	return b, nil
}

// SaveDebt stores a debt with derived fields recomputed from its payment map.
func (s *LedgerService) SaveDebt(ctx context.Context, d core.Debt) (core.Debt, error) {
	if err := d.Validate(); err != nil {
		return core.Debt{}, err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	core.RecomputeDebt(&d)
	if err := s.store.SaveDebt(ctx, d); err != nil {
		return core.Debt{}, fmt.Errorf("save debt: %w", err)
	}
	s.notify(ctx, d.UserID, "", amqp.ReasonEntryChanged)
	return d, nil
}

// SaveGoal stores a goal with derived fields recomputed from its progress map.
func (s *LedgerService) SaveGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	core.RecomputeGoal(&g)
	if err := s.store.SaveGoal(ctx, g); err != nil {
		return core.Goal{}, fmt.Errorf("save goal: %w", err)
	}
	s.notify(ctx, g.UserID, "", amqp.ReasonEntryChanged)
	return g, nil
}

// SaveScenario stores a named what-if snapshot.
func (s *LedgerService) SaveScenario(ctx context.Context, sc core.Scenario) (core.Scenario, error) {
	if err := sc.Validate(); err != nil {
		return core.Scenario{}, err
	}
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}
	if err := s.store.SaveScenario(ctx, sc); err != nil {
		return core.Scenario{}, fmt.Errorf("save scenario: %w", err)
	}
	return sc, nil
}

// notify publishes a snapshot change. Failures are logged, never returned;
// downstream refresh is a convenience, not part of the user's write.
func (s *LedgerService) notify(ctx context.Context, userID string, month core.MonthKey, reason string) {
	if s.pub == nil {
		return
	}
	msg := amqp.NewSnapshotChangedMessage(userID, string(month), reason)
	if err := s.pub.PublishSnapshotChanged(msg); err != nil {
		s.logger.WarnContext(ctx, "failed to publish snapshot change",
			log.FieldUserID, userID,
			log.FieldMonth, string(month),
			log.FieldError, err.Error())
	}
}

// checkBudgetAlert raises a budget overspend alert when the expense pushes
// its category past the month's limit and the user has budget notifications
// enabled. Best effort; alert failures only log.
func (s *LedgerService) checkBudgetAlert(ctx context.Context, userID string, ex core.Expense) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load profile for alert check", log.FieldError, err.Error())
		return
	}
	if !profile.Notifications["budget"] {
		return
	}

	budgets, err := s.store.ListBudgets(ctx, userID, ex.Month)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to list budgets for alert check", log.FieldError, err.Error())
		return
	}
	var limit int64 = -1
	for _, b := range budgets {
		if b.Category == ex.Category {
			limit = b.LimitCents
			break
		}
	}
	if limit < 0 {
		return
	}

	expenses, err := s.store.ListExpenses(ctx, userID, ex.Month)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to list expenses for alert check", log.FieldError, err.Error())
		return
	}
	var spent int64
	for _, e := range expenses {
		if e.Category == ex.Category {
			spent += e.AmountCents
		}
	}
	if spent <= limit {
		return
	}

	alert := core.Alert{
		ID:       uuid.NewString(),
		UserID:   userID,
		Category: "budget",
		Message: fmt.Sprintf("Spending in %s reached %s, over the %s budget for %s.",
			ex.Category, core.FormatCents(spent), core.FormatCents(limit), ex.Month.DisplayName()),
		Severity:  core.ImpactHigh,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AddAlert(ctx, alert); err != nil {
		s.logger.WarnContext(ctx, "failed to save budget alert", log.FieldError, err.Error())
	}
}

func (s *LedgerService) raiseGoalCompletedAlert(ctx context.Context, userID string, g core.Goal) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil || !profile.Notifications["goal"] {
		return
	}
	alert := core.Alert{
		ID:        uuid.NewString(),
		UserID:    userID,
		Category:  "goal",
		Message:   fmt.Sprintf("Goal %q is complete: %s saved.", g.Name, core.FormatCents(g.CurrentCents)),
		Severity:  core.ImpactLow,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AddAlert(ctx, alert); err != nil {
		s.logger.WarnContext(ctx, "failed to save goal alert", log.FieldError, err.Error())
	}
}

// Store exposes the underlying store for plain reads the handlers do
// directly (lists, deletes, profile, alerts).
func (s *LedgerService) Store() store.Store {
	return s.store
}

// Close releases the store.
func (s *LedgerService) Close() error {
	return s.store.Close()
}
