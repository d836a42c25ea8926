package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/labwire/workcell/internal/core"
)

// NodeResponse is the API view of one instrument node.
type NodeResponse struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	URL      string    `json:"url"`
	Status   string    `json:"status"`
	Detail   string    `json:"detail,omitempty"`
	Actions  []string  `json:"actions,omitempty"`
	StatusAt time.Time `json:"status_at"`
}

// handleListNodes returns the cached node view.
func (s *Server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	nodes := s.engine.Nodes().List()
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })

	response := make([]NodeResponse, 0, len(nodes))
	for _, n := range nodes {
		response = append(response, NodeResponse{
			ID:       string(n.ID),
			Name:     n.Name,
			URL:      n.URL,
			Status:   string(n.Status),
			Detail:   n.StatusDetail,
			Actions:  n.Actions,
			StatusAt: n.StatusAt,
		})
	}
	respondJSON(w, http.StatusOK, response)
}

// NodeAdminRequest carries an administrative command.
type NodeAdminRequest struct {
	Command string `json:"command"`
}

var validAdminCommands = map[core.AdminCommand]bool{
	core.AdminPause:      true,
	core.AdminResume:     true,
	core.AdminCancel:     true,
	core.AdminSafetyStop: true,
}

// handleNodeAdmin forwards an administrative command to one node.
func (s *Server) handleNodeAdmin(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "nodeRef")

	var req NodeAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	command := core.AdminCommand(req.Command)
	if !validAdminCommands[command] {
		respondError(w, http.StatusBadRequest, "unknown admin command: "+req.Command)
		return
	}

	if err := s.engine.NodeAdmin(r.Context(), ref, command); err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}
