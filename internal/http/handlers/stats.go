package handlers

import "net/http"

// QueueStats reports queue counters and configured limits. Monitoring
// polls this; it reads counters and mutates nothing.
// GET /v1/queue/stats
func (a *App) QueueStats(w http.ResponseWriter, r *http.Request) {
	st := a.Jobs.Stats()
	a.json(w, http.StatusOK, map[string]any{
		"queued":          st.Queued,
		"processing":      st.Processing,
		"max_queue_depth": st.MaxQueueDepth,
		"max_concurrent":  st.MaxConcurrent,
	})
}
