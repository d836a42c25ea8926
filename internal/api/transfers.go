package api

import (
	"encoding/json"
	"net/http"

	"github.com/labwire/workcell/internal/core"
)

// PlanTransferRequest asks for a transfer plan between two locations.
type PlanTransferRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	ResourceID  string `json:"resource_id,omitempty"`

	// Submit enqueues the composed plan as a workflow instead of just
	// returning it.
	Submit bool `json:"submit,omitempty"`
}

// TransferLegResponse is one edge of a planned path.
type TransferLegResponse struct {
	Source      string  `json:"source"`
	Destination string  `json:"destination"`
	Template    string  `json:"template"`
	Node        string  `json:"node"`
	Cost        float64 `json:"cost"`
}

// PlanTransferResponse carries the composed plan.
type PlanTransferResponse struct {
	Legs       []TransferLegResponse   `json:"legs"`
	TotalCost  float64                 `json:"total_cost"`
	Definition core.WorkflowDefinition `json:"definition"`
	WorkflowID string                  `json:"workflow_id,omitempty"`
}

// handlePlanTransfer plans (and optionally submits) a transfer.
func (s *Server) handlePlanTransfer(w http.ResponseWriter, r *http.Request) {
	var req PlanTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Source == "" || req.Destination == "" {
		respondError(w, http.StatusBadRequest, "source and destination are required")
		return
	}

	plan, err := s.engine.Planner().Plan(
		core.LocationID(req.Source),
		core.LocationID(req.Destination),
		req.ResourceID,
	)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	resp := PlanTransferResponse{
		TotalCost:  plan.TotalCost,
		Definition: plan.Definition,
	}
	for _, leg := range plan.Legs {
		resp.Legs = append(resp.Legs, TransferLegResponse{
			Source:      string(leg.Source),
			Destination: string(leg.Destination),
			Template:    leg.Template.Name,
			Node:        leg.Template.NodeName,
			Cost:        leg.Cost,
		})
	}

	if req.Submit {
		wf, err := s.engine.Submit(r.Context(), plan.Definition, core.OwnerContext{})
		if err != nil {
			s.respondDomainError(w, err)
			return
		}
		resp.WorkflowID = string(wf.ID)
		respondJSON(w, http.StatusCreated, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleTransferGraph returns the location adjacency derived from the
// current layout.
func (s *Server) handleTransferGraph(w http.ResponseWriter, _ *http.Request) {
	graph := s.engine.Planner().Graph()
	out := make(map[string][]string, len(graph))
	for id, neighbors := range graph {
		ns := make([]string, 0, len(neighbors))
		for _, n := range neighbors {
			ns = append(ns, string(n))
		}
		out[string(id)] = ns
	}
	respondJSON(w, http.StatusOK, out)
}
