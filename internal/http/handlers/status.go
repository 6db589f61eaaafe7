package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mesh3d/internal/domain"
	"mesh3d/internal/jobs"
)

type statusResponse struct {
	JobID             string    `json:"job_id"`
	Status            string    `json:"status"`
	Position          int       `json:"position"`
	Message           string    `json:"message,omitempty"`
	Error             string    `json:"error,omitempty"`
	DownloadURL       string    `json:"download_url,omitempty"`
	ProcessingSeconds float64   `json:"processing_seconds,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

func statusResponseFrom(view jobs.StatusView) statusResponse {
	return statusResponse{
		JobID:             view.JobID,
		Status:            string(view.Status),
		Position:          view.Position,
		Message:           view.Message,
		Error:             view.Error,
		DownloadURL:       view.DownloadPath,
		ProcessingSeconds: view.ProcessingSeconds,
		CreatedAt:         view.CreatedAt,
	}
}

// JobStatus returns the current projection of one job.
// GET /v1/jobs/{job_id}
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	view, err := a.Jobs.Status(jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: status failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, statusResponseFrom(view))
}
