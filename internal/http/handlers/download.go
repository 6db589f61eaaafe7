package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mesh3d/internal/domain"
)

// DownloadArtifact streams the generated scene file for a completed job.
// GET /v1/jobs/{job_id}/download
func (a *App) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	dl, err := a.Jobs.DownloadArtifact(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "job not found")
		case errors.Is(err, domain.ErrNotReady):
			a.error(w, http.StatusConflict, "not_ready", err.Error())
		default:
			a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: download failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to read artifact")
		}
		return
	}
	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(dl.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(dl.Data)
}
