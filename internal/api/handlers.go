package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/alertd/internal/engine"
	"github.com/good-yellow-bee/alertd/internal/issues"
	"github.com/good-yellow-bee/alertd/internal/models"
	"github.com/good-yellow-bee/alertd/internal/storage"
)

// handleError maps core errors to API responses.
func handleError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	var terr *engine.TransientError
	switch {
	case errors.As(err, &verr):
		JSONError(w, NewValidationError(verr.Error()))
	case errors.As(err, &terr):
		JSONError(w, ErrTransient)
	case errors.Is(err, issues.ErrNoMembers):
		JSONError(w, NewBadRequest("no matching alerts to link"))
	case errors.Is(err, storage.ErrNotFound):
		JSONError(w, ErrNotFound)
	default:
		JSONError(w, ErrInternalServer)
	}
}

// handleSubmitEvent ingests one event through the pipeline.
func (s *Server) handleSubmitEvent(w http.ResponseWriter, r *http.Request) {
	var ev models.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		JSONError(w, NewBadRequest("invalid JSON body"))
		return
	}

	result, err := s.engine.SubmitEvent(r.Context(), &ev)
	if err != nil {
		handleError(w, err)
		return
	}
	switch {
	case result.Suppressed:
		Accepted(w, result)
	case result.Created:
		Created(w, result)
	default:
		OK(w, result)
	}
}

// handleGetAlert returns one alert with its history.
func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.engine.GetAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, err)
		return
	}
	OK(w, alert)
}

// handleListIssues returns all open issues.
func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.engine.ListOpenIssues(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	if issues == nil {
		issues = []*models.Issue{}
	}
	OK(w, issues)
}

// handleGetIssue returns one issue.
func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.engine.GetIssue(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, err)
		return
	}
	OK(w, issue)
}

// memberRequest carries alert ids for issue membership operations.
type memberRequest struct {
	AlertIDs []string `json:"alert_ids"`
	User     string   `json:"user,omitempty"`
}

// handleLinkAlerts mass-links alerts to an issue.
func (s *Server) handleLinkAlerts(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, NewBadRequest("invalid JSON body"))
		return
	}
	if len(req.AlertIDs) == 0 {
		JSONError(w, NewBadRequest("alert_ids is required"))
		return
	}

	issue, err := s.engine.LinkAlertsToIssue(r.Context(), chi.URLParam(r, "id"), req.AlertIDs, req.User)
	if err != nil {
		handleError(w, err)
		return
	}
	OK(w, issue)
}

// handleUnlinkAlerts mass-unlinks alerts from an issue.
func (s *Server) handleUnlinkAlerts(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, NewBadRequest("invalid JSON body"))
		return
	}
	if len(req.AlertIDs) == 0 {
		JSONError(w, NewBadRequest("alert_ids is required"))
		return
	}

	issue, err := s.engine.UnlinkAlertsFromIssue(r.Context(), chi.URLParam(r, "id"), req.AlertIDs, req.User)
	if err != nil {
		handleError(w, err)
		return
	}
	OK(w, issue)
}

// handleCloseIssue resolves an issue.
func (s *Server) handleCloseIssue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User string `json:"user,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JSONError(w, NewBadRequest("invalid JSON body"))
			return
		}
	}

	issue, err := s.engine.CloseIssue(r.Context(), chi.URLParam(r, "id"), req.User)
	if err != nil {
		handleError(w, err)
		return
	}
	OK(w, issue)
}

// heartbeatRequest is the POST body for a liveness beat.
type heartbeatRequest struct {
	Origin  string   `json:"origin"`
	Tenant  string   `json:"tenant,omitempty"`
	Timeout int64    `json:"timeout,omitempty"` // seconds
	Tags    []string `json:"tags,omitempty"`
	Type    string   `json:"type,omitempty"`
}

// handleHeartbeat records a beat.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, NewBadRequest("invalid JSON body"))
		return
	}

	hb, err := s.engine.RecordHeartbeat(r.Context(), req.Origin, req.Tenant,
		time.Duration(req.Timeout)*time.Second, req.Tags, req.Type)
	if err != nil {
		handleError(w, err)
		return
	}
	OK(w, hb)
}

// handleListHeartbeats lists heartbeats, optionally for one tenant.
func (s *Server) handleListHeartbeats(w http.ResponseWriter, r *http.Request) {
	beats, err := s.engine.Heartbeats().List(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		handleError(w, err)
		return
	}
	if beats == nil {
		beats = []*models.Heartbeat{}
	}
	OK(w, beats)
}

// handleDeleteHeartbeat removes an origin's record.
func (s *Server) handleDeleteHeartbeat(w http.ResponseWriter, r *http.Request) {
	err := s.engine.Heartbeats().Delete(r.Context(), chi.URLParam(r, "origin"), r.URL.Query().Get("tenant"))
	if err != nil {
		handleError(w, err)
		return
	}
	NoContent(w)
}
