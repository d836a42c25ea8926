package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/labwire/workcell/internal/core"
)

// WorkflowResponse is the API view of one run.
type WorkflowResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
	Steps     []StepResponse `json:"steps"`
	CreatedAt time.Time      `json:"created_at"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
}

// StepResponse is the API view of one step.
type StepResponse struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Node     string           `json:"node"`
	Action   string           `json:"action"`
	Status   string           `json:"status"`
	ActionID string           `json:"action_id,omitempty"`
	Retries  int              `json:"retries,omitempty"`
	Result   *core.StepResult `json:"result,omitempty"`
}

// WorkflowSummaryResponse is the compact listing view.
type WorkflowSummaryResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Steps     int       `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
}

// SubmitWorkflowRequest is the request body for submitting a run.
type SubmitWorkflowRequest struct {
	Definition core.WorkflowDefinition `json:"definition"`
	Owner      core.OwnerContext       `json:"owner,omitempty"`
}

func workflowToResponse(wf *core.Workflow) WorkflowResponse {
	resp := WorkflowResponse{
		ID:        string(wf.ID),
		Name:      wf.Definition.Name,
		Status:    string(wf.Status),
		Error:     wf.Error,
		CreatedAt: wf.CreatedAt,
		StartedAt: wf.StartedAt,
		EndedAt:   wf.EndedAt,
	}
	for _, st := range wf.Steps {
		resp.Steps = append(resp.Steps, StepResponse{
			ID:       string(st.ID),
			Name:     st.Definition.Name,
			Node:     st.Definition.Node,
			Action:   st.Definition.Action,
			Status:   string(st.Status),
			ActionID: st.ActionID,
			Retries:  st.Retries,
			Result:   st.Result,
		})
	}
	return resp
}

// handleListWorkflows returns all runs in submission order.
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.engine.List(r.Context())
	if err != nil {
		s.logger.Error("listing workflows", "error", err)
		s.respondDomainError(w, err)
		return
	}

	response := make([]WorkflowSummaryResponse, 0, len(workflows))
	for _, wf := range workflows {
		sum := wf.Summarize()
		response = append(response, WorkflowSummaryResponse{
			ID:        string(sum.ID),
			Name:      sum.Name,
			Status:    string(sum.Status),
			Steps:     sum.Steps,
			CreatedAt: sum.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, response)
}

// handleSubmitWorkflow accepts a new run.
func (s *Server) handleSubmitWorkflow(w http.ResponseWriter, r *http.Request) {
	var req SubmitWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	wf, err := s.engine.Submit(r.Context(), req.Definition, req.Owner)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, workflowToResponse(wf))
}

// handleGetWorkflow returns one run.
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workflowID")
	wf, err := s.engine.Get(r.Context(), core.WorkflowID(id))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, workflowToResponse(wf))
}

// handlePauseWorkflow pauses a run at the next step boundary.
func (s *Server) handlePauseWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workflowID")
	if err := s.engine.Pause(r.Context(), core.WorkflowID(id)); err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// handleResumeWorkflow resumes a paused run.
func (s *Server) handleResumeWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workflowID")
	if err := s.engine.Resume(r.Context(), core.WorkflowID(id)); err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

// handleCancelWorkflow cancels a run immediately.
func (s *Server) handleCancelWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workflowID")
	if err := s.engine.Cancel(r.Context(), core.WorkflowID(id)); err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
