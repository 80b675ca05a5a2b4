package http

import (
	"net/http"
	"time"

	"finbook/internal/core"
)

func (s *Server) handleListDebts(w http.ResponseWriter, r *http.Request) {
	debts, err := s.store.ListDebts(r.Context(), userID(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if debts == nil {
		debts = []core.Debt{}
	}
	writeJSON(w, http.StatusOK, debts)
}

func (s *Server) handleSaveDebt(w http.ResponseWriter, r *http.Request) {
	var d core.Debt
	if !decodeJSON(w, r, &d) {
		return
	}
	d.UserID = userID(r)

	saved, err := s.service.SaveDebt(r.Context(), d)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateSummaries(r.Context(), saved.UserID, "")
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleDeleteDebt(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if err := s.store.DeleteDebt(r.Context(), uid, r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateSummaries(r.Context(), uid, "")
	w.WriteHeader(http.StatusNoContent)
}

type paymentRequest struct {
	AmountCents int64     `json:"amount_cents"`
	Amount      string    `json:"amount"`
	Date        time.Time `json:"date"`
}

// handleDebtPayment applies a payment: the debt, any linked goal and the
// derived expense all change in one commit. A missing debt is 404.
func (s *Server) handleDebtPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cents, err := amountCents(req.AmountCents, req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	uid := userID(r)
	result, err := s.service.RecordDebtPayment(r.Context(), uid, r.PathValue("id"), cents, req.Date)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.invalidateSummaries(r.Context(), uid, "")
	writeJSON(w, http.StatusOK, map[string]any{
		"debt":    result.Debt,
		"goal":    result.Goal,
		"expense": result.Expense,
	})
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.store.ListGoals(r.Context(), userID(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if goals == nil {
		goals = []core.Goal{}
	}
	writeJSON(w, http.StatusOK, goals)
}

func (s *Server) handleSaveGoal(w http.ResponseWriter, r *http.Request) {
	var g core.Goal
	if !decodeJSON(w, r, &g) {
		return
	}
	g.UserID = userID(r)

	saved, err := s.service.SaveGoal(r.Context(), g)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteGoal(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGoalContribution(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cents, err := amountCents(req.AmountCents, req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	goal, err := s.service.AddGoalContribution(r.Context(), userID(r), r.PathValue("id"), cents, req.Date)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}
