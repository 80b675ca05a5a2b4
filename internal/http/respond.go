package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"finbook/internal/core"
	"finbook/internal/store"
)

// errorBody is the wire shape of every non-2xx response.
type errorBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Message: message})
}

// writeStoreError maps service and store errors onto status codes: missing
// entities are 404, domain validation failures are 422, the rest 500.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case isValidationError(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrInvalidAmount,
		core.ErrInvalidDate,
		core.ErrEmptyName,
		core.ErrInvalidCategory,
		core.ErrInvalidGoalType,
		core.ErrInvalidMonthKey,
		core.ErrNotEnoughMonths,
		core.ErrGoalMismatch,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// decodeJSON reads a JSON body into v, answering 400 on malformed input.
// Returns false when the response has already been written.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// userID scopes every request. The SPA sends its user in X-User-ID; absent
// the header, requests fall into the shared default scope.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "default"
}

// amountCents resolves a request amount given either as integer cents or a
// decimal string ("12.34" or "12,34").
func amountCents(cents int64, decimal string) (int64, error) {
	if cents != 0 {
		return cents, nil
	}
	if decimal == "" {
		return 0, core.ErrInvalidAmount
	}
	return core.ParseDecimalToCents(decimal)
}
