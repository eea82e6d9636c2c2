package api

import (
	"errors"
	"net/http"

	"github.com/reelforge/scheduler/pkg/reelforge/calendar"
	"github.com/reelforge/scheduler/pkg/reelforge/job"
)

// writeErr maps the core's error taxonomy (spec §7) onto HTTP status
// codes and writes a JSON error body.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, job.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, job.ErrConflict), errors.Is(err, calendar.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, job.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
	}
}
