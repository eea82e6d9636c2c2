package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/reelforge/scheduler/pkg/reelforge/job"
)

// handleScheduleJob implements POST /api/jobs/schedule.
func (s *Server) handleScheduleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}
	var req job.Request
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	id, err := s.content.ScheduleWithContext(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// handleScheduleBatch implements POST /api/jobs/schedule/batch.
func (s *Server) handleScheduleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}
	var reqs []job.Request
	if err := decodeJSON(r, &reqs); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	ids, errs := s.content.ScheduleBatch(r.Context(), reqs)
	results := make([]map[string]string, len(reqs))
	for i := range reqs {
		if errs[i] != nil {
			results[i] = map[string]string{"error": errs[i].Error()}
		} else {
			results[i] = map[string]string{"id": ids[i]}
		}
	}
	writeJSON(w, http.StatusOK, results)
}

// handleListJobs implements GET /api/jobs?status=.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}
	var filter job.Filter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := job.Status(raw)
		filter.Status = &status
	}
	jobs, err := s.content.List(r.Context(), filter)
	if err != nil {
		writeErr(w, err)
		return
	}
	if jobs == nil {
		jobs = []job.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// handleJobByID dispatches /api/jobs/{id}, /api/jobs/{id}/cancel,
// /api/jobs/{id}/pause, /api/jobs/{id}/resume, and
// /api/jobs/{id}/events (SPEC_FULL.md §C).
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		writeJSON(w, http.StatusNotFound, errorBody("job id required"))
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch action {
	case "":
		s.handleGetJob(w, r, id)
	case "cancel":
		s.handleJobAction(w, r, id, s.content.Cancel)
	case "pause":
		s.handleJobAction(w, r, id, s.content.Pause)
	case "resume":
		s.handleJobAction(w, r, id, s.content.Resume)
	case "events":
		s.hub.serveJobEventsSSE(w, r, id)
	default:
		writeJSON(w, http.StatusNotFound, errorBody("unknown job action"))
	}
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}
	j, err := s.content.Get(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// handleJobAction runs a no-body POST action (cancel/pause/resume)
// against a job and reports the outcome as a status-only JSON body.
func (s *Server) handleJobAction(w http.ResponseWriter, r *http.Request, id string, action func(ctx context.Context, id string) error) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}
	if err := action(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
