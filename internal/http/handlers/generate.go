package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"mesh3d/internal/domain"
	"mesh3d/internal/jobs"
)

type acceptedResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Position  int    `json:"position"`
	StatusURL string `json:"status_url"`
}

// Generate accepts a submission and returns immediately with the job id
// and queue position.
// POST /v1/generate
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req jobs.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid JSON payload")
		return
	}
	accepted, err := a.Jobs.Submit(r.Context(), req)
	if err != nil {
		a.submitError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, acceptedResponse{
		JobID:     accepted.JobID,
		Status:    string(domain.StatusQueued),
		Position:  accepted.Position,
		StatusURL: fmt.Sprintf("/v1/jobs/%s", accepted.JobID),
	})
}

// GenerateWait is the synchronous facade: it submits and then blocks until
// the job finishes or the wait timeout elapses. The job itself is
// unaffected by a timeout and stays pollable.
// POST /v1/generate/wait
func (a *App) GenerateWait(w http.ResponseWriter, r *http.Request) {
	var req jobs.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid JSON payload")
		return
	}
	accepted, err := a.Jobs.Submit(r.Context(), req)
	if err != nil {
		a.submitError(w, err)
		return
	}
	view, err := a.Jobs.Wait(r.Context(), accepted.JobID, a.Jobs.WaitTimeout())
	if err != nil {
		if errors.Is(err, domain.ErrWaitTimeout) {
			a.error(w, http.StatusGatewayTimeout, "timeout",
				fmt.Sprintf("job %s still running; poll /v1/jobs/%s", accepted.JobID, accepted.JobID))
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "wait failed")
		return
	}
	if view.Status == domain.StatusFailed {
		a.error(w, http.StatusBadGateway, "generation_failed", view.Error)
		return
	}
	a.json(w, http.StatusOK, statusResponseFrom(view))
}

func (a *App) submitError(w http.ResponseWriter, err error) {
	var capErr *jobs.CapacityError
	switch {
	case errors.As(err, &capErr):
		a.error(w, http.StatusTooManyRequests, "queue_full",
			fmt.Sprintf("queue is full (%d/%d); retry later", capErr.Queued, capErr.Limit))
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "invalid_input", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("handlers: submit failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue job")
	}
}
