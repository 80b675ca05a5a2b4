package http

import (
	"net/http"
	"time"

	"finbook/internal/core"
)

// Entry endpoints accept amounts either as integer cents (amount_cents) or a
// decimal string (amount, "12.34" or "12,34"), matching what the client forms
// submit.

type incomeRequest struct {
	Month       core.MonthKey `json:"month"`
	Source      string        `json:"source"`
	AmountCents int64         `json:"amount_cents"`
	Amount      string        `json:"amount"`
	Date        time.Time     `json:"date"`
	Recurring   bool          `json:"recurring"`
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	month := core.MonthKey(r.URL.Query().Get("month"))
	incomes, err := s.store.ListIncomes(r.Context(), userID(r), month)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if incomes == nil {
		incomes = []core.Income{}
	}
	writeJSON(w, http.StatusOK, incomes)
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var req incomeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cents, err := amountCents(req.AmountCents, req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	income, err := s.service.CreateIncome(r.Context(), core.Income{
		UserID:      userID(r),
		Month:       req.Month,
		Source:      req.Source,
		AmountCents: cents,
		Date:        req.Date,
		Recurring:   req.Recurring,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateSummaries(r.Context(), income.UserID, income.Month)
	writeJSON(w, http.StatusCreated, income)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if err := s.store.DeleteIncome(r.Context(), uid, r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateSummaries(r.Context(), uid, "")
	w.WriteHeader(http.StatusNoContent)
}

type expenseRequest struct {
	Month       core.MonthKey        `json:"month"`
	AmountCents int64                `json:"amount_cents"`
	Amount      string               `json:"amount"`
	Category    core.ExpenseCategory `json:"category"`
	Date        time.Time            `json:"date"`
	DebtID      string               `json:"debt_id"`
	Description string               `json:"description"`
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	month := core.MonthKey(r.URL.Query().Get("month"))
	expenses, err := s.store.ListExpenses(r.Context(), userID(r), month)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cents, err := amountCents(req.AmountCents, req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	expense, err := s.service.CreateExpense(r.Context(), core.Expense{
		UserID:      userID(r),
		Month:       req.Month,
		AmountCents: cents,
		Category:    req.Category,
		Date:        req.Date,
		DebtID:      req.DebtID,
		Description: req.Description,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateSummaries(r.Context(), expense.UserID, expense.Month)
	writeJSON(w, http.StatusCreated, expense)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if err := s.store.DeleteExpense(r.Context(), uid, r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateSummaries(r.Context(), uid, "")
	w.WriteHeader(http.StatusNoContent)
}

type budgetRequest struct {
	ID         string               `json:"id"`
	Month      core.MonthKey        `json:"month"`
	Category   core.ExpenseCategory `json:"category"`
	LimitCents int64                `json:"limit_cents"`
	Limit      string               `json:"limit"`
}

// handleListBudgets fills SpentCents from the expenses of each budget's month.
func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	month := core.MonthKey(r.URL.Query().Get("month"))
	budgets, err := s.store.ListBudgets(r.Context(), uid, month)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if budgets == nil {
		budgets = []core.Budget{}
	}

	spent := map[core.MonthKey]map[core.ExpenseCategory]int64{}
	for i, b := range budgets {
		byCategory, ok := spent[b.Month]
		if !ok {
			expenses, err := s.store.ListExpenses(r.Context(), uid, b.Month)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			byCategory = make(map[core.ExpenseCategory]int64)
			for _, e := range expenses {
				byCategory[e.Category] += e.AmountCents
			}
			spent[b.Month] = byCategory
		}
		budgets[i].SpentCents = byCategory[b.Category]
	}
	writeJSON(w, http.StatusOK, budgets)
}

func (s *Server) handleSaveBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cents, err := amountCents(req.LimitCents, req.Limit)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid limit")
		return
	}

	budget, err := s.service.SaveBudget(r.Context(), core.Budget{
		ID:         req.ID,
		UserID:     userID(r),
		Month:      req.Month,
		Category:   req.Category,
		LimitCents: cents,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateSummaries(r.Context(), budget.UserID, budget.Month)
	writeJSON(w, http.StatusCreated, budget)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if err := s.store.DeleteBudget(r.Context(), uid, r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateSummaries(r.Context(), uid, "")
	w.WriteHeader(http.StatusNoContent)
}
