package http

import (
	"encoding/json"
	"net/http"

	"finbook/internal/core"
	"finbook/internal/log"
)

func (s *Server) handleListRecommendations(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.ListRecommendations(r.Context(), userID(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if recs == nil {
		recs = []core.Recommendation{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleMarkRecommendationRead(w http.ResponseWriter, r *http.Request) {
	if err := s.store.MarkRecommendationRead(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.ListAlerts(r.Context(), userID(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if alerts == nil {
		alerts = []core.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	if err := s.store.MarkAlertRead(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := s.store.ListScenarios(r.Context(), userID(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if scenarios == nil {
		scenarios = []core.Scenario{}
	}
	writeJSON(w, http.StatusOK, scenarios)
}

type scenarioRequest struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

func (s *Server) handleSaveScenario(w http.ResponseWriter, r *http.Request) {
	var req scenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	saved, err := s.service.SaveScenario(r.Context(), core.Scenario{
		ID:     req.ID,
		UserID: userID(r),
		Name:   req.Name,
		Data:   req.Data,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	scenario, err := s.store.GetScenario(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scenario)
}

func (s *Server) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteScenario(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.store.GetProfile(r.Context(), userID(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var profile core.UserProfile
	if !decodeJSON(w, r, &profile) {
		return
	}
	profile.UserID = userID(r)
	if profile.Notifications == nil {
		profile.Notifications = map[string]bool{}
	}

	if err := s.store.SaveProfile(r.Context(), profile); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleSampleData seeds the user with generated months, entries, a debt and
// goals so a fresh install has something to explore.
func (s *Server) handleSampleData(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if err := s.service.LoadSampleData(r.Context(), uid); err != nil {
		s.logger.ErrorContext(r.Context(), "sample data load failed",
			log.FieldUserID, uid,
			log.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "failed to load sample data")
		return
	}
	s.invalidateSummaries(r.Context(), uid, "")
	w.WriteHeader(http.StatusNoContent)
}
