package core

import (
	"errors"
	"strings"
	"time"
)

const (
	GoalDebtPayoff    GoalType = "debt_payoff"
	GoalEmergencyFund GoalType = "emergency_fund"
	GoalSavings       GoalType = "savings"
	GoalInvestment    GoalType = "investment"
	GoalEducation     GoalType = "education"
)

const (
	CategoryHousing       ExpenseCategory = "housing"
	CategoryTransport     ExpenseCategory = "transport"
	CategoryFood          ExpenseCategory = "food"
	CategoryUtilities     ExpenseCategory = "utilities"
	CategoryHealthcare    ExpenseCategory = "healthcare"
	CategoryEntertainment ExpenseCategory = "entertainment"
	CategorySubscriptions ExpenseCategory = "subscriptions"
	CategoryDebtPayment   ExpenseCategory = "debt_payment"
	CategorySavings       ExpenseCategory = "savings"
	CategoryOther         ExpenseCategory = "other"
)

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

type (
	GoalType        string
	ExpenseCategory string
	Impact          string

	// Month is one tracked calendar month. Exactly one month per user is active.
	Month struct {
		ID        MonthKey  `json:"id"`
		UserID    string    `json:"user_id"`
		Name      string    `json:"name"`
		Active    bool      `json:"active"`
		CreatedAt time.Time `json:"created_at"`
	}

	// Debt carries the full payment history keyed by month. BalanceCents,
	// TotalPaidCents and PaidOff are derived from MonthlyPayments and are
	// recomputed on every write, never trusted from stored state.
	Debt struct {
		ID                  string             `json:"id"`
		UserID              string             `json:"user_id"`
		Name                string             `json:"name"`
		PrincipalCents      int64              `json:"principal_cents"`
		BalanceCents        int64              `json:"balance_cents"`
		MinimumPaymentCents int64              `json:"minimum_payment_cents"`
		InterestRate        float64            `json:"interest_rate"`
		Priority            int                `json:"priority"`
		MonthlyPayments     map[MonthKey]int64 `json:"monthly_payments"`
		MonthlyBalances     map[MonthKey]int64 `json:"monthly_balances"`
		TotalPaidCents      int64              `json:"total_paid_cents"`
		PaidOff             bool               `json:"is_paid_off"`
		CreatedAt           time.Time          `json:"created_at"`
	}

	// Goal tracks progress toward a savings target. CurrentCents and Completed
	// are derived from MonthlyProgress. DebtID optionally links a debt_payoff
	// goal to the debt whose payments feed it.
	Goal struct {
		ID              string             `json:"id"`
		UserID          string             `json:"user_id"`
		Name            string             `json:"name"`
		Type            GoalType           `json:"type"`
		TargetCents     int64              `json:"target_cents"`
		CurrentCents    int64              `json:"current_cents"`
		TargetDate      time.Time          `json:"target_date"`
		Priority        int                `json:"priority"`
		DebtID          string             `json:"debt_id,omitempty"`
		MonthlyProgress map[MonthKey]int64 `json:"monthly_progress"`
		Completed       bool               `json:"completed"`
		CreatedAt       time.Time          `json:"created_at"`
	}

	Expense struct {
		ID          string          `json:"id"`
		UserID      string          `json:"user_id"`
		Month       MonthKey        `json:"month"`
		AmountCents int64           `json:"amount_cents"`
		Category    ExpenseCategory `json:"category"`
		Date        time.Time       `json:"date"`
		DebtID      string          `json:"debt_id,omitempty"`
		Description string          `json:"description"`
	}

	Income struct {
		ID          string    `json:"id"`
		UserID      string    `json:"user_id"`
		Month       MonthKey  `json:"month"`
		Source      string    `json:"source"`
		AmountCents int64     `json:"amount_cents"`
		Date        time.Time `json:"date"`
		Recurring   bool      `json:"recurring"`
	}

	// Budget is a per-month spending limit for one category. SpentCents is
	// derived from the month's expenses when the budget is read.
	Budget struct {
		ID         string          `json:"id"`
		UserID     string          `json:"user_id"`
		Month      MonthKey        `json:"month"`
		Category   ExpenseCategory `json:"category"`
		LimitCents int64           `json:"limit_cents"`
		SpentCents int64           `json:"spent_cents"`
	}

	Recommendation struct {
		ID          string    `json:"id"`
		UserID      string    `json:"user_id"`
		Type        string    `json:"type"`
		Description string    `json:"description"`
		Impact      Impact    `json:"impact"`
		Read        bool      `json:"read"`
		CreatedAt   time.Time `json:"created_at"`
	}

	Alert struct {
		ID        string    `json:"id"`
		UserID    string    `json:"user_id"`
		Category  string    `json:"category"`
		Message   string    `json:"message"`
		Severity  Impact    `json:"severity"`
		Read      bool      `json:"read"`
		CreatedAt time.Time `json:"created_at"`
	}

	// UserProfile holds notification toggles keyed by alert category
	// ("budget", "debt", "goal").
	UserProfile struct {
		UserID        string          `json:"user_id"`
		Email         string          `json:"email"`
		Notifications map[string]bool `json:"notifications"`
	}

	// Scenario is a named what-if snapshot saved by the client. The payload is
	// opaque to the server.
	Scenario struct {
		ID        string    `json:"id"`
		UserID    string    `json:"user_id"`
		Name      string    `json:"name"`
		Data      []byte    `json:"data"`
		CreatedAt time.Time `json:"created_at"`
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDate     = errors.New("invalid date")
	ErrEmptyName       = errors.New("empty name")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidGoalType = errors.New("invalid goal type")
)

// ExpenseCategories lists every accepted category, in display order.
var ExpenseCategories = []ExpenseCategory{
	CategoryHousing, CategoryTransport, CategoryFood, CategoryUtilities,
	CategoryHealthcare, CategoryEntertainment, CategorySubscriptions,
	CategoryDebtPayment, CategorySavings, CategoryOther,
}

func (c ExpenseCategory) Validate() error {
	for _, known := range ExpenseCategories {
		if c == known {
			return nil
		}
	}
	return ErrInvalidCategory
}

func (t GoalType) Validate() error {
	switch t {
	case GoalDebtPayoff, GoalEmergencyFund, GoalSavings, GoalInvestment, GoalEducation:
		return nil
	}
	return ErrInvalidGoalType
}

func (m Month) Validate() error {
	if err := m.ID.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(m.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

func (d Debt) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrEmptyName
	}
	if d.PrincipalCents <= 0 {
		return ErrInvalidAmount
	}
	if d.MinimumPaymentCents < 0 {
		return ErrInvalidAmount
	}
	if d.InterestRate < 0 {
		return errors.New("negative interest rate")
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if err := g.Type.Validate(); err != nil {
		return err
	}
	if g.TargetCents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e Expense) Validate() error {
	if e.AmountCents <= 0 {
		return ErrInvalidAmount
	}
	if err := e.Category.Validate(); err != nil {
		return err
	}
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

func (i Income) Validate() error {
	if strings.TrimSpace(i.Source) == "" {
		return ErrEmptyName
	}
	if i.AmountCents <= 0 {
		return ErrInvalidAmount
	}
	if i.Date.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (b Budget) Validate() error {
	if err := b.Month.Validate(); err != nil {
		return err
	}
	if err := b.Category.Validate(); err != nil {
		return err
	}
	if b.LimitCents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (s Scenario) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}
	return nil
}
