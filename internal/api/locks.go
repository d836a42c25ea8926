package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// LockResponse is the API view of a resource lease.
type LockResponse struct {
	ResourceID string `json:"resource_id"`
	Locked     bool   `json:"locked"`
	Holder     string `json:"holder,omitempty"`
}

// AcquireLockRequest leases a resource for an external holder.
type AcquireLockRequest struct {
	Holder string `json:"holder"`

	// TTLSeconds caps the lease; zero gets the configured default.
	TTLSeconds int `json:"ttl_seconds,omitempty"`
}

// handleGetLock reports whether a resource has a live lease.
func (s *Server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "resourceID")
	locked, holder, err := s.engine.IsLocked(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, LockResponse{ResourceID: id, Locked: locked, Holder: holder})
}

// handleAcquireLock leases a resource; 409 when another holder has it.
func (s *Server) handleAcquireLock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "resourceID")

	var req AcquireLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ok, err := s.engine.AcquireLock(r.Context(), id, req.Holder, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if !ok {
		_, holder, _ := s.engine.IsLocked(r.Context(), id)
		respondJSON(w, http.StatusConflict, LockResponse{ResourceID: id, Locked: true, Holder: holder})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "acquired"})
}

// handleReleaseLock releases a lease. The holder comes from the query so a
// DELETE needs no body; 409 when the lease belongs to someone else.
func (s *Server) handleReleaseLock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "resourceID")
	holder := r.URL.Query().Get("holder")

	released, err := s.engine.ReleaseLock(r.Context(), id, holder)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if !released {
		respondError(w, http.StatusConflict, "lock not held by "+holder)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "released"})
}
