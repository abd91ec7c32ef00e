package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// StreamStoryEvents pushes status snapshots over Server-Sent Events until the
// job reaches a terminal state or the client disconnects.
func (a *App) StreamStoryEvents(w http.ResponseWriter, r *http.Request) {
	job, ok := a.ownedJob(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		a.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	snapshots, err := a.Notifier.Subscribe(r.Context(), job.ID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("handlers: subscribe to story status")
		a.respondError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}

	// The stream outlives the server's write timeout; lift the deadline for
	// this response only. Not every ResponseWriter supports it.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for snapshot := range snapshots {
		payload, err := json.Marshal(snapshot)
		if err != nil {
			a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("handlers: encode snapshot")
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}
