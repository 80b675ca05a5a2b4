// Package storage implements the persistence ports on SQLite via
// modernc.org/sqlite. Month-keyed amount maps are stored as JSON columns;
// money is stored as integer cents.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"finbook/internal/core"
	"finbook/internal/store"
)

// SQLiteStore implements store.Store on a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the database at dbPath and configures it for a single-writer
// web service workload.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ensureUser(ctx context.Context, q execer, userID string) error {
	_, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO users (id) VALUES (?)`, userID)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Months

// UpsertMonth keeps activation exclusive: writing an active month clears the
// flag on the user's other months in the same transaction.
func (s *SQLiteStore) UpsertMonth(ctx context.Context, m core.Month) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.ensureUser(ctx, tx, m.UserID); err != nil {
			return err
		}
		if m.Active {
			if _, err := tx.ExecContext(ctx, `UPDATE months SET active = 0 WHERE user_id = ? AND id != ?`,
				m.UserID, string(m.ID)); err != nil {
				return fmt.Errorf("deactivate months: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO months (id, user_id, name, active, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_id, id) DO UPDATE SET name = excluded.name, active = excluded.active`,
			string(m.ID), m.UserID, m.Name, boolToInt(m.Active), fmtTime(m.CreatedAt))
		if err != nil {
			return fmt.Errorf("upsert month: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) GetMonth(ctx context.Context, userID string, id core.MonthKey) (core.Month, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, active, created_at FROM months WHERE user_id = ? AND id = ?`,
		userID, string(id))
	return scanMonth(row)
}

func (s *SQLiteStore) ListMonths(ctx context.Context, userID string) ([]core.Month, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, active, created_at FROM months WHERE user_id = ? ORDER BY id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list months: %w", err)
	}
	defer rows.Close()

	var months []core.Month
	for rows.Next() {
		m, err := scanMonth(rows)
		if err != nil {
			return nil, err
		}
		months = append(months, m)
	}
	return months, rows.Err()
}

func (s *SQLiteStore) SetActiveMonth(ctx context.Context, userID string, id core.MonthKey) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE months SET active = 1 WHERE user_id = ? AND id = ?`,
			userID, string(id))
		if err != nil {
			return fmt.Errorf("activate month: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `UPDATE months SET active = 0 WHERE user_id = ? AND id != ?`,
			userID, string(id)); err != nil {
			return fmt.Errorf("deactivate months: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) DeleteMonth(ctx context.Context, userID string, id core.MonthKey) error {
	return s.deleteRow(ctx, `DELETE FROM months WHERE user_id = ? AND id = ?`, userID, string(id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMonth(row rowScanner) (core.Month, error) {
	var m core.Month
	var id, createdAt string
	var active int
	if err := row.Scan(&id, &m.UserID, &m.Name, &active, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Month{}, store.ErrNotFound
		}
		return core.Month{}, fmt.Errorf("scan month: %w", err)
	}
	m.ID = core.MonthKey(id)
	m.Active = active != 0
	m.CreatedAt = parseTime(createdAt)
	return m, nil
}

// Incomes

func (s *SQLiteStore) SaveIncome(ctx context.Context, in core.Income) error {
	if err := s.ensureUser(ctx, s.db, in.UserID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incomes (id, user_id, month, source, amount_cents, date, recurring)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			month = excluded.month, source = excluded.source,
			amount_cents = excluded.amount_cents, date = excluded.date,
			recurring = excluded.recurring`,
		in.ID, in.UserID, string(in.Month), in.Source, in.AmountCents, fmtTime(in.Date), boolToInt(in.Recurring))
	if err != nil {
		return fmt.Errorf("save income: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListIncomes(ctx context.Context, userID string, month core.MonthKey) ([]core.Income, error) {
	query := `SELECT id, user_id, month, source, amount_cents, date, recurring
		FROM incomes WHERE user_id = ?`
	args := []any{userID}
	if month != "" {
		query += ` AND month = ?`
		args = append(args, string(month))
	}
	query += ` ORDER BY date, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()

	var incomes []core.Income
	for rows.Next() {
		var in core.Income
		var m, date string
		var recurring int
		if err := rows.Scan(&in.ID, &in.UserID, &m, &in.Source, &in.AmountCents, &date, &recurring); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		in.Month = core.MonthKey(m)
		in.Date = parseTime(date)
		in.Recurring = recurring != 0
		incomes = append(incomes, in)
	}
	return incomes, rows.Err()
}

func (s *SQLiteStore) DeleteIncome(ctx context.Context, userID, id string) error {
	return s.deleteRow(ctx, `DELETE FROM incomes WHERE user_id = ? AND id = ?`, userID, id)
}

// Expenses

func (s *SQLiteStore) SaveExpense(ctx context.Context, ex core.Expense) error {
	if err := s.ensureUser(ctx, s.db, ex.UserID); err != nil {
		return err
	}
	return saveExpenseTx(ctx, s.db, ex)
}

func saveExpenseTx(ctx context.Context, q execer, ex core.Expense) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO expenses (id, user_id, month, amount_cents, category, date, debt_id, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			month = excluded.month, amount_cents = excluded.amount_cents,
			category = excluded.category, date = excluded.date,
			debt_id = excluded.debt_id, description = excluded.description`,
		ex.ID, ex.UserID, string(ex.Month), ex.AmountCents, string(ex.Category),
		fmtTime(ex.Date), ex.DebtID, ex.Description)
	if err != nil {
		return fmt.Errorf("save expense: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListExpenses(ctx context.Context, userID string, month core.MonthKey) ([]core.Expense, error) {
	query := `SELECT id, user_id, month, amount_cents, category, date, debt_id, description
		FROM expenses WHERE user_id = ?`
	args := []any{userID}
	if month != "" {
		query += ` AND month = ?`
		args = append(args, string(month))
	}
	query += ` ORDER BY date, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		var ex core.Expense
		var m, category, date string
		if err := rows.Scan(&ex.ID, &ex.UserID, &m, &ex.AmountCents, &category, &date, &ex.DebtID, &ex.Description); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		ex.Month = core.MonthKey(m)
		ex.Category = core.ExpenseCategory(category)
		ex.Date = parseTime(date)
		expenses = append(expenses, ex)
	}
	return expenses, rows.Err()
}

func (s *SQLiteStore) DeleteExpense(ctx context.Context, userID, id string) error {
	return s.deleteRow(ctx, `DELETE FROM expenses WHERE user_id = ? AND id = ?`, userID, id)
}

// Budgets

func (s *SQLiteStore) SaveBudget(ctx context.Context, b core.Budget) error {
	if err := s.ensureUser(ctx, s.db, b.UserID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budgets (id, user_id, month, category, limit_cents)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			month = excluded.month, category = excluded.category,
			limit_cents = excluded.limit_cents`,
		b.ID, b.UserID, string(b.Month), string(b.Category), b.LimitCents)
	if err != nil {
		return fmt.Errorf("save budget: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListBudgets(ctx context.Context, userID string, month core.MonthKey) ([]core.Budget, error) {
	query := `SELECT id, user_id, month, category, limit_cents FROM budgets WHERE user_id = ?`
	args := []any{userID}
	if month != "" {
		query += ` AND month = ?`
		args = append(args, string(month))
	}
	query += ` ORDER BY month, category`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []core.Budget
	for rows.Next() {
		var b core.Budget
		var m, category string
		if err := rows.Scan(&b.ID, &b.UserID, &m, &category, &b.LimitCents); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b.Month = core.MonthKey(m)
		b.Category = core.ExpenseCategory(category)
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func (s *SQLiteStore) DeleteBudget(ctx context.Context, userID, id string) error {
	return s.deleteRow(ctx, `DELETE FROM budgets WHERE user_id = ? AND id = ?`, userID, id)
}

// Debts

func (s *SQLiteStore) SaveDebt(ctx context.Context, d core.Debt) error {
	if err := s.ensureUser(ctx, s.db, d.UserID); err != nil {
		return err
	}
	return saveDebtTx(ctx, s.db, d)
}

func saveDebtTx(ctx context.Context, q execer, d core.Debt) error {
	payments, err := marshalAmounts(d.MonthlyPayments)
	if err != nil {
		return err
	}
	balances, err := marshalAmounts(d.MonthlyBalances)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO debts (id, user_id, name, principal_cents, balance_cents,
			minimum_payment_cents, interest_rate, priority, monthly_payments,
			monthly_balances, total_paid_cents, paid_off, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, principal_cents = excluded.principal_cents,
			balance_cents = excluded.balance_cents,
			minimum_payment_cents = excluded.minimum_payment_cents,
			interest_rate = excluded.interest_rate, priority = excluded.priority,
			monthly_payments = excluded.monthly_payments,
			monthly_balances = excluded.monthly_balances,
			total_paid_cents = excluded.total_paid_cents, paid_off = excluded.paid_off`,
		d.ID, d.UserID, d.Name, d.PrincipalCents, d.BalanceCents,
		d.MinimumPaymentCents, d.InterestRate, d.Priority, payments,
		balances, d.TotalPaidCents, boolToInt(d.PaidOff), fmtTime(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("save debt: %w", err)
	}
	return nil
}

const debtColumns = `id, user_id, name, principal_cents, balance_cents,
	minimum_payment_cents, interest_rate, priority, monthly_payments,
	monthly_balances, total_paid_cents, paid_off, created_at`

func (s *SQLiteStore) GetDebt(ctx context.Context, userID, id string) (core.Debt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+debtColumns+` FROM debts WHERE user_id = ? AND id = ?`, userID, id)
	return scanDebt(row)
}

func (s *SQLiteStore) ListDebts(ctx context.Context, userID string) ([]core.Debt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+debtColumns+` FROM debts WHERE user_id = ? ORDER BY priority, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	defer rows.Close()

	var debts []core.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		debts = append(debts, d)
	}
	return debts, rows.Err()
}

func (s *SQLiteStore) DeleteDebt(ctx context.Context, userID, id string) error {
	return s.deleteRow(ctx, `DELETE FROM debts WHERE user_id = ? AND id = ?`, userID, id)
}

func scanDebt(row rowScanner) (core.Debt, error) {
	var d core.Debt
	var payments, balances, createdAt string
	var paidOff int
	err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.PrincipalCents, &d.BalanceCents,
		&d.MinimumPaymentCents, &d.InterestRate, &d.Priority, &payments,
		&balances, &d.TotalPaidCents, &paidOff, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Debt{}, store.ErrNotFound
		}
		return core.Debt{}, fmt.Errorf("scan debt: %w", err)
	}
	if d.MonthlyPayments, err = unmarshalAmounts(payments); err != nil {
		return core.Debt{}, err
	}
	if d.MonthlyBalances, err = unmarshalAmounts(balances); err != nil {
		return core.Debt{}, err
	}
	d.PaidOff = paidOff != 0
	d.CreatedAt = parseTime(createdAt)
	return d, nil
}

// Goals

func (s *SQLiteStore) SaveGoal(ctx context.Context, g core.Goal) error {
	if err := s.ensureUser(ctx, s.db, g.UserID); err != nil {
		return err
	}
	return saveGoalTx(ctx, s.db, g)
}

func saveGoalTx(ctx context.Context, q execer, g core.Goal) error {
	progress, err := marshalAmounts(g.MonthlyProgress)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO goals (id, user_id, name, type, target_cents, current_cents,
			target_date, priority, debt_id, monthly_progress, completed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, type = excluded.type,
			target_cents = excluded.target_cents, current_cents = excluded.current_cents,
			target_date = excluded.target_date, priority = excluded.priority,
			debt_id = excluded.debt_id, monthly_progress = excluded.monthly_progress,
			completed = excluded.completed`,
		g.ID, g.UserID, g.Name, string(g.Type), g.TargetCents, g.CurrentCents,
		fmtTime(g.TargetDate), g.Priority, g.DebtID, progress, boolToInt(g.Completed), fmtTime(g.CreatedAt))
	if err != nil {
		return fmt.Errorf("save goal: %w", err)
	}
	return nil
}

const goalColumns = `id, user_id, name, type, target_cents, current_cents,
	target_date, priority, debt_id, monthly_progress, completed, created_at`

func (s *SQLiteStore) GetGoal(ctx context.Context, userID, id string) (core.Goal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = ? AND id = ?`, userID, id)
	return scanGoal(row)
}

func (s *SQLiteStore) GetGoalByDebt(ctx context.Context, userID, debtID string) (core.Goal, error) {
	if debtID == "" {
		return core.Goal{}, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = ? AND debt_id = ? LIMIT 1`, userID, debtID)
	return scanGoal(row)
}

func (s *SQLiteStore) ListGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = ? ORDER BY priority, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (s *SQLiteStore) DeleteGoal(ctx context.Context, userID, id string) error {
	return s.deleteRow(ctx, `DELETE FROM goals WHERE user_id = ? AND id = ?`, userID, id)
}

func scanGoal(row rowScanner) (core.Goal, error) {
	var g core.Goal
	var goalType, targetDate, progress, createdAt string
	var completed int
	err := row.Scan(&g.ID, &g.UserID, &g.Name, &goalType, &g.TargetCents, &g.CurrentCents,
		&targetDate, &g.Priority, &g.DebtID, &progress, &completed, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Goal{}, store.ErrNotFound
		}
		return core.Goal{}, fmt.Errorf("scan goal: %w", err)
	}
	g.Type = core.GoalType(goalType)
	g.TargetDate = parseTime(targetDate)
	if g.MonthlyProgress, err = unmarshalAmounts(progress); err != nil {
		return core.Goal{}, err
	}
	g.Completed = completed != 0
	g.CreatedAt = parseTime(createdAt)
	return g, nil
}

// Atomic ledger writes

// CommitPayment lands the debt update, the cascaded goal and the derived
// expense in one transaction. A missing debt or goal rolls everything back.
func (s *SQLiteStore) CommitPayment(ctx context.Context, res core.PaymentResult) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireRow(ctx, tx, `SELECT 1 FROM debts WHERE user_id = ? AND id = ?`,
			res.Debt.UserID, res.Debt.ID); err != nil {
			return err
		}
		if res.Goal != nil {
			if err := requireRow(ctx, tx, `SELECT 1 FROM goals WHERE user_id = ? AND id = ?`,
				res.Goal.UserID, res.Goal.ID); err != nil {
				return err
			}
		}
		if err := saveDebtTx(ctx, tx, res.Debt); err != nil {
			return err
		}
		if res.Goal != nil {
			if err := saveGoalTx(ctx, tx, *res.Goal); err != nil {
				return err
			}
		}
		return saveExpenseTx(ctx, tx, res.Expense)
	})
}

// SavePropagation writes every touched debt and goal in one transaction.
func (s *SQLiteStore) SavePropagation(ctx context.Context, userID string, res core.PropagationResult) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, d := range res.Debts {
			if err := requireRow(ctx, tx, `SELECT 1 FROM debts WHERE user_id = ? AND id = ?`, userID, d.ID); err != nil {
				return err
			}
			if err := saveDebtTx(ctx, tx, d); err != nil {
				return err
			}
		}
		for _, g := range res.Goals {
			if err := requireRow(ctx, tx, `SELECT 1 FROM goals WHERE user_id = ? AND id = ?`, userID, g.ID); err != nil {
				return err
			}
			if err := saveGoalTx(ctx, tx, g); err != nil {
				return err
			}
		}
		return nil
	})
}

// Recommendations and alerts

func (s *SQLiteStore) ReplaceRecommendations(ctx context.Context, userID string, recs []core.Recommendation) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.ensureUser(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM recommendations WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("clear recommendations: %w", err)
		}
		for _, r := range recs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO recommendations (id, user_id, type, description, impact, read, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				r.ID, userID, r.Type, r.Description, string(r.Impact), boolToInt(r.Read), fmtTime(r.CreatedAt)); err != nil {
				return fmt.Errorf("insert recommendation: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListRecommendations(ctx context.Context, userID string) ([]core.Recommendation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, description, impact, read, created_at
		FROM recommendations WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	var recs []core.Recommendation
	for rows.Next() {
		var r core.Recommendation
		var impact, createdAt string
		var read int
		if err := rows.Scan(&r.ID, &r.UserID, &r.Type, &r.Description, &impact, &read, &createdAt); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		r.Impact = core.Impact(impact)
		r.Read = read != 0
		r.CreatedAt = parseTime(createdAt)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *SQLiteStore) MarkRecommendationRead(ctx context.Context, userID, id string) error {
	return s.markRead(ctx, `UPDATE recommendations SET read = 1 WHERE user_id = ? AND id = ?`, userID, id)
}

func (s *SQLiteStore) AddAlert(ctx context.Context, a core.Alert) error {
	if err := s.ensureUser(ctx, s.db, a.UserID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, user_id, category, message, severity, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Category, a.Message, string(a.Severity), boolToInt(a.Read), fmtTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("add alert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, userID string) ([]core.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, category, message, severity, read, created_at
		FROM alerts WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []core.Alert
	for rows.Next() {
		var a core.Alert
		var severity, createdAt string
		var read int
		if err := rows.Scan(&a.ID, &a.UserID, &a.Category, &a.Message, &severity, &read, &createdAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Severity = core.Impact(severity)
		a.Read = read != 0
		a.CreatedAt = parseTime(createdAt)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *SQLiteStore) MarkAlertRead(ctx context.Context, userID, id string) error {
	return s.markRead(ctx, `UPDATE alerts SET read = 1 WHERE user_id = ? AND id = ?`, userID, id)
}

// Profiles

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (core.UserProfile, error) {
	var p core.UserProfile
	var notifications string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, email, notifications FROM user_profiles WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.Email, &notifications)
	if errors.Is(err, sql.ErrNoRows) {
		return core.UserProfile{
			UserID:        userID,
			Notifications: map[string]bool{"budget": true, "debt": true, "goal": true},
		}, nil
	}
	if err != nil {
		return core.UserProfile{}, fmt.Errorf("get profile: %w", err)
	}
	if err := json.Unmarshal([]byte(notifications), &p.Notifications); err != nil {
		return core.UserProfile{}, fmt.Errorf("decode notifications: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, p core.UserProfile) error {
	if err := s.ensureUser(ctx, s.db, p.UserID); err != nil {
		return err
	}
	notifications, err := json.Marshal(p.Notifications)
	if err != nil {
		return fmt.Errorf("encode notifications: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, email, notifications)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			email = excluded.email, notifications = excluded.notifications`,
		p.UserID, p.Email, string(notifications))
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// Scenarios

func (s *SQLiteStore) SaveScenario(ctx context.Context, sc core.Scenario) error {
	if err := s.ensureUser(ctx, s.db, sc.UserID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scenarios (id, user_id, name, data, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, data = excluded.data`,
		sc.ID, sc.UserID, sc.Name, sc.Data, fmtTime(sc.CreatedAt))
	if err != nil {
		return fmt.Errorf("save scenario: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetScenario(ctx context.Context, userID, id string) (core.Scenario, error) {
	var sc core.Scenario
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, data, created_at FROM scenarios WHERE user_id = ? AND id = ?`,
		userID, id).Scan(&sc.ID, &sc.UserID, &sc.Name, &sc.Data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Scenario{}, store.ErrNotFound
	}
	if err != nil {
		return core.Scenario{}, fmt.Errorf("get scenario: %w", err)
	}
	sc.CreatedAt = parseTime(createdAt)
	return sc, nil
}

func (s *SQLiteStore) ListScenarios(ctx context.Context, userID string) ([]core.Scenario, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, data, created_at FROM scenarios WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()

	var scenarios []core.Scenario
	for rows.Next() {
		var sc core.Scenario
		var createdAt string
		if err := rows.Scan(&sc.ID, &sc.UserID, &sc.Name, &sc.Data, &createdAt); err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		sc.CreatedAt = parseTime(createdAt)
		scenarios = append(scenarios, sc)
	}
	return scenarios, rows.Err()
}

func (s *SQLiteStore) DeleteScenario(ctx context.Context, userID, id string) error {
	return s.deleteRow(ctx, `DELETE FROM scenarios WHERE user_id = ? AND id = ?`, userID, id)
}

// Blobs

func (s *SQLiteStore) SaveBlob(ctx context.Context, userID, key string, data []byte) error {
	if err := s.ensureUser(ctx, s.db, userID); err != nil {
		return err
	}
	return saveBlobTx(ctx, s.db, userID, key, data)
}

func saveBlobTx(ctx context.Context, q execer, userID, key string, data []byte) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO kv_blobs (user_id, key, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, key) DO UPDATE SET
			data = excluded.data, updated_at = excluded.updated_at`,
		userID, key, data, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save blob: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetBlob(ctx context.Context, userID, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM kv_blobs WHERE user_id = ? AND key = ?`, userID, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return data, nil
}

func (s *SQLiteStore) DeleteBlob(ctx context.Context, userID, key string) error {
	return s.deleteRow(ctx, `DELETE FROM kv_blobs WHERE user_id = ? AND key = ?`, userID, key)
}

func (s *SQLiteStore) ListBlobKeys(ctx context.Context, userID, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM kv_blobs WHERE user_id = ? AND key LIKE ? || '%' ORDER BY key`,
		userID, prefix)
	if err != nil {
		return nil, fmt.Errorf("list blob keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan blob key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// SaveBlobs writes the whole batch in one transaction.
func (s *SQLiteStore) SaveBlobs(ctx context.Context, userID string, blobs map[string][]byte) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.ensureUser(ctx, tx, userID); err != nil {
			return err
		}
		for key, data := range blobs {
			if err := saveBlobTx(ctx, tx, userID, key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Users

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// Helpers

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) deleteRow(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) markRead(ctx context.Context, query, userID, id string) error {
	res, err := s.db.ExecContext(ctx, query, userID, id)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func requireRow(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	var one int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("existence check: %w", err)
	}
	return nil
}

func marshalAmounts(m map[core.MonthKey]int64) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode amounts: %w", err)
	}
	return string(data), nil
}

func unmarshalAmounts(s string) (map[core.MonthKey]int64, error) {
	if s == "" || s == "{}" {
		return map[core.MonthKey]int64{}, nil
	}
	var m map[core.MonthKey]int64
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode amounts: %w", err)
	}
	return m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// Rows created by SQL defaults use datetime('now').
		t, err = time.Parse("2006-01-02 15:04:05", s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}
