package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/interview-agent/internal/engine"
	"github.com/jonathan/interview-agent/internal/profile"
	"github.com/jonathan/interview-agent/internal/session"
)

// CreateInterviewRequest carries the profiles for a new interview.
type CreateInterviewRequest struct {
	Job       *profile.Job       `json:"job"`
	Company   *profile.Company   `json:"company"`
	Candidate *profile.Candidate `json:"candidate"`
	Demo      *bool              `json:"demo,omitempty"`
}

// CreateInterviewResponse returns the new session ID.
type CreateInterviewResponse struct {
	SessionID string `json:"session_id"`
	Demo      bool   `json:"demo"`
}

// RespondRequest carries one candidate response.
type RespondRequest struct {
	Response string `json:"response"`
}

func (s *Server) handleCreateInterview(w http.ResponseWriter, r *http.Request) {
	var req CreateInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Job == nil || req.Company == nil || req.Candidate == nil {
		s.errorResponse(w, http.StatusBadRequest, "job, company, and candidate profiles are required")
		return
	}
	for _, record := range []any{req.Job, req.Company, req.Candidate} {
		if err := profile.Validate(record); err != nil {
			s.errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	demo := s.cfg.Demo
	if req.Demo != nil {
		demo = *req.Demo
	}
	s.createSession(w, req.Job, req.Company, req.Candidate, demo)
}

func (s *Server) handleCreateSample(w http.ResponseWriter, r *http.Request) {
	job, company, candidate := profile.SampleData()
	s.createSession(w, job, company, candidate, true)
}

func (s *Server) createSession(w http.ResponseWriter, job *profile.Job, company *profile.Company, candidate *profile.Candidate, demo bool) {
	iv := engine.New(s.deps, job, company, candidate, engine.Options{
		Demo:                demo,
		FollowUpBudget:      s.cfg.FollowUpBudget,
		SimilarityThreshold: s.cfg.SimilarityThreshold,
	})
	id := s.sessions.Create(iv)
	s.jsonResponse(w, http.StatusCreated, CreateInterviewResponse{SessionID: id, Demo: demo})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	iv, ok := s.session(w, r)
	if !ok {
		return
	}

	prompt, err := iv.Start(r.Context())
	if err != nil {
		s.engineError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, prompt)
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	iv, ok := s.session(w, r)
	if !ok {
		return
	}

	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Response == "" {
		s.errorResponse(w, http.StatusBadRequest, "response is required")
		return
	}

	prompt, err := iv.Respond(r.Context(), req.Response)
	if err != nil {
		s.engineError(w, err)
		return
	}

	if prompt.Status == "complete" {
		s.archiveCompleted(r, iv)
	}
	s.jsonResponse(w, http.StatusOK, prompt)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	iv, ok := s.session(w, r)
	if !ok {
		return
	}

	sum, err := iv.Summary()
	if err != nil {
		s.engineError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, sum)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	iv, ok := s.session(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, iv.Snapshot())
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.End(r.PathValue("id")); err != nil {
		s.errorResponse(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.errorResponse(w, http.StatusNotImplemented, "archive not configured")
		return
	}
	list, err := s.archive.ListArchived(r.Context(), 50)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, list)
}

func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.errorResponse(w, http.StatusNotImplemented, "archive not configured")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid interview id")
		return
	}
	iv, err := s.archive.GetArchived(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, iv)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*engine.Interview, bool) {
	iv, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "session not found")
		} else {
			s.errorResponse(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return iv, true
}

func (s *Server) engineError(w http.ResponseWriter, err error) {
	var stateErr *engine.InvalidStateError
	if errors.As(err, &stateErr) {
		s.errorResponse(w, http.StatusConflict, stateErr.Error())
		return
	}
	s.errorResponse(w, http.StatusInternalServerError, err.Error())
}

// archiveCompleted persists the finished interview when an archive store is
// configured. Failures are logged, never surfaced to the candidate.
func (s *Server) archiveCompleted(r *http.Request, iv *engine.Interview) {
	if s.archive == nil {
		return
	}
	sum, err := iv.Summary()
	if err != nil {
		return
	}
	id, err := s.archive.ArchiveInterview(r.Context(), r.PathValue("id"), iv.Script(), iv.Turns(), sum)
	if err != nil {
		s.logger.Error("failed to archive interview", zap.Error(err))
		return
	}
	s.logger.Info("interview archived", zap.String("archive_id", id.String()))
}
