// Package httpapi exposes the controller's verb surface over HTTP, a thin
// stand-in for the desktop app's RPC binding: a plain http.ServeMux with
// one handleXxx method per route and encoding/json request/response
// bodies.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/xycareh/gitbutler/internal/controller"
	"github.com/xycareh/gitbutler/internal/project"
	"github.com/xycareh/gitbutler/internal/vbranch"
)

// Server binds internal/controller's verbs onto a http.ServeMux.
type Server struct {
	Controller *controller.Controller
	Registry   *project.Registry
	Mux        *http.ServeMux
}

// New creates a Server routing onto ctrl/registry.
func New(ctrl *controller.Controller, registry *project.Registry) *Server {
	s := &Server{Controller: ctrl, Registry: registry, Mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Mux.HandleFunc("/ping", s.handlePing)
	s.Mux.HandleFunc("/api/projects", s.handleAddProject)
	s.Mux.HandleFunc("/api/branches/list", s.handleListBranches)
	s.Mux.HandleFunc("/api/branches/create", s.handleCreateBranch)
	s.Mux.HandleFunc("/api/branches/update", s.handleUpdateBranch)
	s.Mux.HandleFunc("/api/branches/delete", s.handleDeleteBranch)
	s.Mux.HandleFunc("/api/branches/apply", s.handleApplyBranch)
	s.Mux.HandleFunc("/api/branches/unapply", s.handleUnapplyBranch)
	s.Mux.HandleFunc("/api/branches/commit", s.handleCommitBranch)
	s.Mux.HandleFunc("/api/target/set", s.handleSetBaseBranch)
	s.Mux.HandleFunc("/api/target/update", s.handleUpdateBaseBranch)
	s.Mux.HandleFunc("/api/target/data", s.handleGetBaseBranchData)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Mux.ServeHTTP(w, r)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"message": "pong", "system": "gitbutler integration engine"})
}

type addProjectRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleAddProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req addProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p := project.Project{ID: uuid.New(), Path: req.Path}
	s.Registry.Add(p)
	writeJSON(w, map[string]string{"projectId": p.ID.String()})
}

func (s *Server) handleListBranches(w http.ResponseWriter, r *http.Request) {
	projectID, ok := s.projectIDParam(w, r)
	if !ok {
		return
	}
	branches, err := s.Controller.ListVirtualBranches(r.Context(), projectID)
	if !s.ok(w, err) {
		return
	}
	writeJSON(w, branches)
}

func (s *Server) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ProjectID uuid.UUID                   `json:"projectId"`
		Request   vbranch.BranchCreateRequest `json:"request"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, err := s.Controller.CreateVirtualBranch(r.Context(), req.ProjectID, req.Request)
	if !s.ok(w, err) {
		return
	}
	writeJSON(w, b)
}

func (s *Server) handleUpdateBranch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ProjectID uuid.UUID                   `json:"projectId"`
		BranchID  uuid.UUID                   `json:"branchId"`
		Request   vbranch.BranchUpdateRequest `json:"request"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, err := s.Controller.UpdateVirtualBranch(r.Context(), req.ProjectID, req.BranchID, req.Request)
	if !s.ok(w, err) {
		return
	}
	writeJSON(w, b)
}

func (s *Server) handleDeleteBranch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ProjectID uuid.UUID `json:"projectId"`
		BranchID  uuid.UUID `json:"branchId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err := s.Controller.DeleteVirtualBranch(r.Context(), req.ProjectID, req.BranchID)
	if !s.ok(w, err) {
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

type branchRequest struct {
	ProjectID uuid.UUID `json:"projectId"`
	BranchID  uuid.UUID `json:"branchId"`
}

func (s *Server) decodeBranchRequest(w http.ResponseWriter, r *http.Request) (branchRequest, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return branchRequest{}, false
	}
	var req branchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return branchRequest{}, false
	}
	return req, true
}

func (s *Server) handleApplyBranch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeBranchRequest(w, r)
	if !ok {
		return
	}
	if err := s.Controller.ApplyBranch(r.Context(), req.ProjectID, req.BranchID); !s.ok(w, err) {
		return
	}
	writeJSON(w, map[string]string{"status": "applied"})
}

func (s *Server) handleUnapplyBranch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeBranchRequest(w, r)
	if !ok {
		return
	}
	if err := s.Controller.UnapplyBranch(r.Context(), req.ProjectID, req.BranchID); !s.ok(w, err) {
		return
	}
	writeJSON(w, map[string]string{"status": "unapplied"})
}

func (s *Server) handleCommitBranch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		branchRequest
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, err := s.Controller.CommitVirtualBranch(r.Context(), req.ProjectID, req.BranchID, req.Message)
	if !s.ok(w, err) {
		return
	}
	writeJSON(w, b)
}

func (s *Server) handleSetBaseBranch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ProjectID uuid.UUID `json:"projectId"`
		RefName   string    `json:"refName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	target, err := s.Controller.SetBaseBranch(r.Context(), req.ProjectID, req.RefName)
	if !s.ok(w, err) {
		return
	}
	writeJSON(w, target)
}

func (s *Server) handleUpdateBaseBranch(w http.ResponseWriter, r *http.Request) {
	projectID, ok := s.projectIDParam(w, r)
	if !ok {
		return
	}
	target, err := s.Controller.UpdateBaseBranch(r.Context(), projectID)
	if !s.ok(w, err) {
		return
	}
	writeJSON(w, target)
}

func (s *Server) handleGetBaseBranchData(w http.ResponseWriter, r *http.Request) {
	projectID, ok := s.projectIDParam(w, r)
	if !ok {
		return
	}
	data, err := s.Controller.GetBaseBranchData(r.Context(), projectID)
	if !s.ok(w, err) {
		return
	}
	writeJSON(w, data)
}

func (s *Server) projectIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.URL.Query().Get("projectId")
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid or missing projectId", http.StatusBadRequest)
		return uuid.UUID{}, false
	}
	return id, true
}

// ok writes err as a translated HTTP status and returns false if non-nil.
func (s *Server) ok(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}
	log.Printf("httpapi: verb error: %v", err)
	http.Error(w, err.Error(), statusFor(err))
	return false
}

func statusFor(err error) int {
	switch err.(type) {
	case *controller.BranchNotFoundError, *controller.CommitNotFoundError:
		return http.StatusNotFound
	case *controller.WorkspaceMergeConflictError:
		return http.StatusConflict
	}
	switch err {
	case controller.ErrTargetMissing, controller.ErrDetachedHead, controller.ErrNoIntegrationCommit:
		return http.StatusConflict
	case controller.ErrDirtyWorkingTree, controller.ErrOwnershipOverlap, controller.ErrBranchStillApplied:
		return http.StatusConflict
	case controller.ErrCancelled:
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
