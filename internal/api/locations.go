package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/labwire/workcell/internal/core"
)

// LocationResponse is the API view of a location.
type LocationResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Nodes      []string `json:"nodes"`
	ResourceID string   `json:"resource_id,omitempty"`
	Occupied   bool     `json:"occupied"`
}

func locationToResponse(loc *core.Location) LocationResponse {
	nodes := make([]string, 0, len(loc.Representations))
	for name := range loc.Representations {
		nodes = append(nodes, name)
	}
	return LocationResponse{
		ID:         string(loc.ID),
		Name:       loc.Name,
		Nodes:      nodes,
		ResourceID: loc.ResourceID,
		Occupied:   loc.Occupied(),
	}
}

// handleListLocations returns all locations.
func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.engine.Locations(r.Context())
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	response := make([]LocationResponse, 0, len(locations))
	for _, loc := range locations {
		response = append(response, locationToResponse(loc))
	}
	respondJSON(w, http.StatusOK, response)
}

// handleGetLocation returns one location.
func (s *Server) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "locationID")
	loc, err := s.engine.Location(r.Context(), core.LocationID(id))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, locationToResponse(loc))
}

// AttachResourceRequest places a resource at a location.
type AttachResourceRequest struct {
	ResourceID string `json:"resource_id"`
	ParentID   string `json:"parent_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// handleAttachResource registers a resource and attaches it to a location.
func (s *Server) handleAttachResource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "locationID")

	var req AttachResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	err := s.engine.RegisterResource(core.Resource{
		ID:       req.ResourceID,
		Name:     req.Name,
		ParentID: req.ParentID,
	})
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if err := s.engine.AttachResource(r.Context(), core.LocationID(id), req.ResourceID); err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "attached"})
}

// handleDetachResource clears the location's resource.
func (s *Server) handleDetachResource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "locationID")
	if err := s.engine.DetachResource(r.Context(), core.LocationID(id)); err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "detached"})
}
