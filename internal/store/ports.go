// Package store defines the persistence ports for the ledger. Backends live
// in subpackages (memory) and in internal/storage (SQLite); services and
// handlers depend only on these interfaces.
package store

import (
	"context"
	"errors"

	"finbook/internal/core"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)

// MonthStore manages the per-user month list. Activation is exclusive: at
// most one month per user is active, whether set through SetActiveMonth or
// an UpsertMonth carrying the flag.
type MonthStore interface {
	UpsertMonth(ctx context.Context, m core.Month) error
	GetMonth(ctx context.Context, userID string, id core.MonthKey) (core.Month, error)
	ListMonths(ctx context.Context, userID string) ([]core.Month, error)
	SetActiveMonth(ctx context.Context, userID string, id core.MonthKey) error
	DeleteMonth(ctx context.Context, userID string, id core.MonthKey) error
}

// EntryStore manages the month-scoped entry entities. List calls accept an
// empty month key to mean all months.
type EntryStore interface {
	SaveIncome(ctx context.Context, in core.Income) error
	ListIncomes(ctx context.Context, userID string, month core.MonthKey) ([]core.Income, error)
	DeleteIncome(ctx context.Context, userID, id string) error

	SaveExpense(ctx context.Context, ex core.Expense) error
	ListExpenses(ctx context.Context, userID string, month core.MonthKey) ([]core.Expense, error)
	DeleteExpense(ctx context.Context, userID, id string) error

	SaveBudget(ctx context.Context, b core.Budget) error
	ListBudgets(ctx context.Context, userID string, month core.MonthKey) ([]core.Budget, error)
	DeleteBudget(ctx context.Context, userID, id string) error
}

// DebtStore manages debts including their month-keyed payment history.
type DebtStore interface {
	SaveDebt(ctx context.Context, d core.Debt) error
	GetDebt(ctx context.Context, userID, id string) (core.Debt, error)
	ListDebts(ctx context.Context, userID string) ([]core.Debt, error)
	DeleteDebt(ctx context.Context, userID, id string) error
}

// GoalStore manages savings goals. GetGoalByDebt resolves the goal linked to
// a debt, ErrNotFound when no goal is linked.
type GoalStore interface {
	SaveGoal(ctx context.Context, g core.Goal) error
	GetGoal(ctx context.Context, userID, id string) (core.Goal, error)
	GetGoalByDebt(ctx context.Context, userID, debtID string) (core.Goal, error)
	ListGoals(ctx context.Context, userID string) ([]core.Goal, error)
	DeleteGoal(ctx context.Context, userID, id string) error
}

// LedgerTx groups the multi-entity writes that must land atomically: a debt
// payment (debt + cascaded goal + derived expense) and a month propagation
// (every touched debt and goal). Backends commit all rows or none.
type LedgerTx interface {
	CommitPayment(ctx context.Context, res core.PaymentResult) error
	SavePropagation(ctx context.Context, userID string, res core.PropagationResult) error
}

// InsightStore holds advisor output and alerts. ReplaceRecommendations swaps
// the user's unread recommendation set in one step.
type InsightStore interface {
	ReplaceRecommendations(ctx context.Context, userID string, recs []core.Recommendation) error
	ListRecommendations(ctx context.Context, userID string) ([]core.Recommendation, error)
	MarkRecommendationRead(ctx context.Context, userID, id string) error

	AddAlert(ctx context.Context, a core.Alert) error
	ListAlerts(ctx context.Context, userID string) ([]core.Alert, error)
	MarkAlertRead(ctx context.Context, userID, id string) error
}

// ProfileStore manages user profiles. GetProfile returns a default profile
// with all notifications enabled when none has been saved yet.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (core.UserProfile, error)
	SaveProfile(ctx context.Context, p core.UserProfile) error
}

// ScenarioStore manages saved what-if scenarios.
type ScenarioStore interface {
	SaveScenario(ctx context.Context, s core.Scenario) error
	GetScenario(ctx context.Context, userID, id string) (core.Scenario, error)
	ListScenarios(ctx context.Context, userID string) ([]core.Scenario, error)
	DeleteScenario(ctx context.Context, userID, id string) error
}

// BlobStore is the raw key/value facade used by the legacy client sync
// endpoints. Keys follow the <entity>_<monthKey> convention but the store
// treats them as opaque. SaveBlobs writes the whole batch or nothing.
type BlobStore interface {
	SaveBlob(ctx context.Context, userID, key string, data []byte) error
	GetBlob(ctx context.Context, userID, key string) ([]byte, error)
	DeleteBlob(ctx context.Context, userID, key string) error
	ListBlobKeys(ctx context.Context, userID, prefix string) ([]string, error)
	SaveBlobs(ctx context.Context, userID string, blobs map[string][]byte) error
}

// UserStore enumerates users known to the backend, for background refresh.
type UserStore interface {
	ListUsers(ctx context.Context) ([]string, error)
}

// Store is the full backend surface.
type Store interface {
	MonthStore
	EntryStore
	DebtStore
	GoalStore
	LedgerTx
	InsightStore
	ProfileStore
	ScenarioStore
	BlobStore
	UserStore

	Ping(ctx context.Context) error
	Close() error
}
