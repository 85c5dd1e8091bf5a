package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"mercator-hq/helios/pkg/approval"
	"mercator-hq/helios/pkg/audit"
	"mercator-hq/helios/pkg/audit/archive"
	"mercator-hq/helios/pkg/compliance"
	"mercator-hq/helios/pkg/governance"
	"mercator-hq/helios/pkg/policy/store"
)

type transitionRequest struct {
	Status governance.PolicyStatus `json:"status"`
}

type decisionRequest struct {
	Decision governance.Decision `json:"decision"`
	Comments string              `json:"comments,omitempty"`
}

type assignRequest struct {
	Assignee string `json:"assignee"`
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
}

type executeResponse struct {
	Execution *governance.Execution `json:"execution"`
	Violation *governance.Violation `json:"violation,omitempty"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func newList[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Count: len(items)}
}

func (s *Server) listPolicies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	all, err := boolParam(q, "all")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f := store.Filter{
		Text:            q.Get("q"),
		Statuses:        upper[governance.PolicyStatus](list(q, "status")),
		Types:           upper[governance.PolicyType](list(q, "type")),
		Framework:       q.Get("framework"),
		Owner:           q.Get("owner"),
		IncludeInactive: all,
	}
	writeJSON(w, http.StatusOK, newList(s.engine.ListPolicies(f)))
}

func (s *Server) createPolicy(w http.ResponseWriter, r *http.Request) {
	var d store.Draft
	if err := decode(w, r, &d); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.engine.CreatePolicy(r.Context(), d, actor(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/policies/"+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.GetPolicy(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updatePolicy(w http.ResponseWriter, r *http.Request) {
	var patch store.Patch
	if err := decode(w, r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.engine.UpdatePolicy(r.Context(), chi.URLParam(r, "id"), patch, actor(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deletePolicy(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeletePolicy(r.Context(), chi.URLParam(r, "id"), actor(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) transitionPolicy(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.engine.TransitionPolicy(r.Context(), chi.URLParam(r, "id"), req.Status, actor(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) requestApproval(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.RequestApproval(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/approvals/"+a.ID)
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) executePolicy(w http.ResponseWriter, r *http.Request) {
	exec, v, err := s.engine.ExecutePolicy(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Execution: exec, Violation: v})
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.engine.GetPolicy(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := intParam(r.URL.Query(), "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(s.engine.ListExecutions(id, limit)))
}

func (s *Server) listApprovals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := approval.Filter{
		PolicyID: q.Get("policy_id"),
		Statuses: upper[governance.ApprovalStatus](list(q, "status")),
	}
	writeJSON(w, http.StatusOK, newList(s.engine.ListApprovals(f)))
}

func (s *Server) getApproval(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.GetApproval(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) decideApproval(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.engine.DecideApproval(r.Context(), chi.URLParam(r, "id"), req.Decision, actor(r), req.Comments)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) listViolations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := compliance.Filter{
		PolicyID:   q.Get("policy_id"),
		Statuses:   upper[governance.ViolationStatus](list(q, "status")),
		Severities: upper[governance.Severity](list(q, "severity")),
	}
	writeJSON(w, http.StatusOK, newList(s.engine.ListViolations(f)))
}

func (s *Server) getViolation(w http.ResponseWriter, r *http.Request) {
	v, err := s.engine.GetViolation(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) assignViolation(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.engine.AssignViolation(r.Context(), chi.URLParam(r, "id"), req.Assignee)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) resolveViolation(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.engine.ResolveViolation(r.Context(), chi.URLParam(r, "id"), req.Resolution, actor(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) auditTrail(w http.ResponseWriter, r *http.Request) {
	f, page, err := auditParams(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.GetAuditTrail(f, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) auditArchive(w http.ResponseWriter, r *http.Request) {
	f, page, err := auditParams(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	query := archive.Query{
		PolicyID: f.PolicyID,
		Actions:  f.Actions,
		Actor:    f.Actor,
		Limit:    page.Limit,
		Offset:   page.Offset,
	}
	if !f.Since.IsZero() {
		query.Since = &f.Since
	}
	if !f.Until.IsZero() {
		query.Until = &f.Until
	}
	records, err := s.engine.QueryArchive(r.Context(), query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil && !s.engine.Config().Engine.Audit.Archive.Enabled {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: ErrorDetail{
			Type:    ErrorTypeUnavailable,
			Message: "audit archive is disabled",
		}})
		return
	}
	writeJSON(w, http.StatusOK, newList(records))
}

func auditParams(q url.Values) (audit.Filter, audit.Page, error) {
	since, err := timeParam(q, "since")
	if err != nil {
		return audit.Filter{}, audit.Page{}, err
	}
	until, err := timeParam(q, "until")
	if err != nil {
		return audit.Filter{}, audit.Page{}, err
	}
	offset, err := intParam(q, "offset")
	if err != nil {
		return audit.Filter{}, audit.Page{}, err
	}
	limit, err := intParam(q, "limit")
	if err != nil {
		return audit.Filter{}, audit.Page{}, err
	}
	f := audit.Filter{
		PolicyID: q.Get("policy_id"),
		Actions:  upper[governance.AuditAction](list(q, "action")),
		Actor:    q.Get("actor"),
		Since:    since,
		Until:    until,
	}
	return f, audit.Page{Offset: offset, Limit: limit}, nil
}

func (s *Server) metricsSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetMetricsSnapshot())
}

func (s *Server) orchestrationStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.OrchestrationStatus())
}

func (s *Server) startScheduler(w http.ResponseWriter, r *http.Request) {
	s.engine.Start()
	writeJSON(w, http.StatusOK, s.engine.OrchestrationStatus())
}

func (s *Server) stopScheduler(w http.ResponseWriter, r *http.Request) {
	s.engine.Stop()
	writeJSON(w, http.StatusOK, s.engine.OrchestrationStatus())
}

func (s *Server) tick(w http.ResponseWriter, r *http.Request) {
	report, ok := s.engine.Tick(r.Context())
	if !ok {
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: ErrorDetail{
			Type:    ErrorTypeConflict,
			Message: "a tick is already running",
		}})
		return
	}
	writeJSON(w, http.StatusOK, report)
}
