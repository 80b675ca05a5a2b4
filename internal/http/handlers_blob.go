package http

import (
	"encoding/json"
	"net/http"

	"finbook/internal/log"
)

// The blob endpoints implement the legacy sync contract: named JSON payloads
// per user, keys following <entity>_<monthKey> by convention but opaque here.

type blobSaveRequest struct {
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

type blobSaveAllRequest struct {
	Data map[string]json.RawMessage `json:"data"`
}

func (s *Server) handleBlobSave(w http.ResponseWriter, r *http.Request) {
	var req blobSaveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusUnprocessableEntity, "key is required")
		return
	}
	if len(req.Data) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "data is required")
		return
	}

	if err := s.store.SaveBlob(r.Context(), userID(r), req.Key, req.Data); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": req.Key})
}

func (s *Server) handleBlobGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	data, err := s.store.GetBlob(r.Context(), userID(r), key)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]json.RawMessage{"data": data})
}

func (s *Server) handleBlobDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.store.DeleteBlob(r.Context(), userID(r), key); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBlobList(w http.ResponseWriter, r *http.Request) {
	prefix := r.PathValue("prefix")
	keys, err := s.store.ListBlobKeys(r.Context(), userID(r), prefix)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"keys": keys})
}

// handleBlobSaveAll persists the whole batch in one store call. Partial
// failure surfaces as a single error, never a half-written batch.
func (s *Server) handleBlobSaveAll(w http.ResponseWriter, r *http.Request) {
	var req blobSaveAllRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "data is required")
		return
	}

	blobs := make(map[string][]byte, len(req.Data))
	for key, raw := range req.Data {
		blobs[key] = raw
	}

	if err := s.store.SaveBlobs(r.Context(), userID(r), blobs); err != nil {
		s.logger.ErrorContext(r.Context(), "blob batch save failed",
			log.FieldUserID, userID(r),
			log.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "failed to save all")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"saved": len(blobs)})
}
