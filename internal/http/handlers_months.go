package http

import (
	"net/http"

	"finbook/internal/core"
	"finbook/internal/log"
)

func (s *Server) handleListMonths(w http.ResponseWriter, r *http.Request) {
	months, err := s.store.ListMonths(r.Context(), userID(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if months == nil {
		months = []core.Month{}
	}
	writeJSON(w, http.StatusOK, months)
}

func (s *Server) handleCreateMonth(w http.ResponseWriter, r *http.Request) {
	var m core.Month
	if !decodeJSON(w, r, &m) {
		return
	}
	m.UserID = userID(r)

	created, err := s.service.CreateMonth(r.Context(), m)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteMonth(w http.ResponseWriter, r *http.Request) {
	id := core.MonthKey(r.PathValue("id"))
	if err := s.store.DeleteMonth(r.Context(), userID(r), id); err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateSummaries(r.Context(), userID(r), id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivateMonth(w http.ResponseWriter, r *http.Request) {
	id := core.MonthKey(r.PathValue("id"))
	if err := s.service.ActivateMonth(r.Context(), userID(r), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMonthSummary serves the dashboard aggregate, cached per user+month.
func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	month := core.MonthKey(r.PathValue("id"))
	if err := month.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	key := s.summaryKey(uid, month)
	if summary, ok := s.summaryCache.Get(key); ok {
		writeJSON(w, http.StatusOK, summary)
		return
	}

	summary, err := s.service.MonthSummary(r.Context(), uid, month)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.summaryCache.Set(key, summary)
	writeJSON(w, http.StatusOK, summary)
}

// handlePropagate carries debt balances and goal progress into newer months.
// Fewer than two months is a user-facing rejection, not a server fault.
func (s *Server) handlePropagate(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	result, err := s.service.PropagateAllMonths(r.Context(), uid)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.invalidateSummaries(r.Context(), uid, "")
	s.logger.InfoContext(r.Context(), "propagation requested",
		log.FieldUserID, uid,
		log.FieldOperation, log.OpPropagate,
		"seeded_entries", result.Seeded)

	writeJSON(w, http.StatusOK, map[string]any{
		"seeded_entries": result.Seeded,
		"debts":          len(result.Debts),
		"goals":          len(result.Goals),
	})
}
