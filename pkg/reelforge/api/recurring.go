package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/reelforge/scheduler/pkg/reelforge/recurring"
)

// createRecurringRequest mirrors recurring.Schedule's creation fields;
// Kind selects which of the Create* convenience constructors to call.
type createRecurringRequest struct {
	Kind            recurring.Kind  `json:"kind"`
	Name            string          `json:"name"`
	TopicTemplate   string          `json:"topic_template"`
	Hour            int             `json:"hour"`
	Minute          int             `json:"minute"`
	Weekdays        []time.Weekday  `json:"weekdays,omitempty"`
	DaysOfMonth     []int           `json:"days_of_month,omitempty"`
	EverySeconds    int             `json:"every_seconds,omitempty"`
	Cron            string          `json:"cron,omitempty"`
	StartDate       time.Time       `json:"start_date"`
}

// handleCreateRecurring implements POST /api/recurring/create.
func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}
	var req createRecurringRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if req.StartDate.IsZero() {
		req.StartDate = time.Now()
	}

	var (
		id  string
		err error
	)
	switch req.Kind {
	case recurring.KindDaily:
		id, err = s.recurring.CreateDaily(r.Context(), req.Name, req.TopicTemplate, req.Hour, req.Minute, req.StartDate)
	case recurring.KindWeekly:
		id, err = s.recurring.CreateWeekly(r.Context(), req.Name, req.TopicTemplate, req.Weekdays, req.Hour, req.Minute, req.StartDate)
	case recurring.KindMonthly:
		id, err = s.recurring.CreateMonthly(r.Context(), req.Name, req.TopicTemplate, req.DaysOfMonth, req.Hour, req.Minute, req.StartDate)
	case recurring.KindInterval:
		id, err = s.recurring.CreateInterval(r.Context(), req.Name, req.TopicTemplate, time.Duration(req.EverySeconds)*time.Second, req.StartDate)
	case recurring.KindCron:
		id, err = s.recurring.CreateCron(r.Context(), req.Name, req.TopicTemplate, req.Cron, req.StartDate)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("unknown recurring schedule kind"))
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// handleListRecurring implements GET /api/recurring.
func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, s.recurring.List())
}

// handleRecurringByID dispatches /api/recurring/{id}/pause,
// /api/recurring/{id}/resume, and DELETE /api/recurring/{id}.
func (s *Server) handleRecurringByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/recurring/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		writeJSON(w, http.StatusNotFound, errorBody("schedule id required"))
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		if err := s.recurring.Delete(r.Context(), id); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case action == "" && r.Method == http.MethodGet:
		sched, ok := s.recurring.Get(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, errorBody("schedule not found"))
			return
		}
		writeJSON(w, http.StatusOK, sched)
	case action == "pause":
		s.recurringAction(w, r, id, s.recurring.Pause)
	case action == "resume":
		s.recurringAction(w, r, id, s.recurring.Resume)
	default:
		writeJSON(w, http.StatusNotFound, errorBody("unknown recurring action"))
	}
}

func (s *Server) recurringAction(w http.ResponseWriter, r *http.Request, id string, action func(ctx context.Context, id string) error) {
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
