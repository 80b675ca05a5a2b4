package http

import (
	"net/http"

	"finbook/internal/core"
)

// The insight endpoints mirror the advisor contract one to one. The advisor
// client already folds every upstream failure into a local fallback, so these
// handlers always answer 200 with usable content.

type snapshotRequest struct {
	Snapshot core.Snapshot `json:"snapshot"`
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	insights := s.advisor.Insights(r.Context(), req.Snapshot)
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}

func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusUnprocessableEntity, "description is required")
		return
	}
	category := s.advisor.Categorize(r.Context(), req.Description)
	writeJSON(w, http.StatusOK, map[string]string{"category": string(category)})
}

func (s *Server) handleAnalyzeHealth(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	report := s.advisor.AnalyzeHealth(r.Context(), req.Snapshot)
	writeJSON(w, http.StatusOK, map[string]any{
		"score":     report.Score,
		"feedback":  report.Summary,
		"strengths": report.Strengths,
		"concerns":  report.Concerns,
	})
}

func (s *Server) handlePrioritizeGoals(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Goals []core.Goal `json:"goals"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	priorities := s.advisor.PrioritizeGoals(r.Context(), req.Goals)
	if priorities == nil {
		priorities = []core.GoalPriority{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"priorities": priorities})
}

func (s *Server) handleGoalRecommendations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Goal     core.Goal     `json:"goal"`
		Snapshot core.Snapshot `json:"snapshot"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	recs := s.advisor.GoalRecommendations(r.Context(), req.Goal, req.Snapshot)
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": recs})
}

func (s *Server) handleAnalyzeSpending(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	areas := s.advisor.AnalyzeSpending(r.Context(), req.Snapshot)
	if areas == nil {
		areas = []core.SpendingArea{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"areas": areas})
}
