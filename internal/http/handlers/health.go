package handlers

import "net/http"

// Health reports model and executor liveness, independent of queue depth.
// GET /v1/healthz
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"model_loaded": a.Engine.Loaded(),
		"worker_alive": a.Worker.Alive(),
	})
}
