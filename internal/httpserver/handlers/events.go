package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/voicectl/internal/httpserver/deps"
	"github.com/MrSnakeDoc/voicectl/internal/supervisor"
)

const defaultEventLimit = 20

type eventsResponse struct {
	Service string             `json:"service"`
	Events  []supervisor.Event `json:"events"`
}

// Events returns the newest journaled lifecycle events of a service.
func Events(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if _, err := d.Controller.Registry().GetOrCreate(name); err != nil {
			writeFailure(w, d.Logger, err)
			return
		}

		if d.Store == nil {
			writeError(w, http.StatusServiceUnavailable, "event journal disabled (VOICECTL_REDIS_ADDR not set)")
			return
		}

		limit, ok := queryInt(r, "limit", defaultEventLimit)
		if !ok || limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}

		events, err := d.Store.Events(r.Context(), name, limit)
		if err != nil {
			d.Logger.Warnf("event journal read failed for %s: %v", name, err)
			writeError(w, http.StatusServiceUnavailable, "event journal unavailable")
			return
		}
		if events == nil {
			events = []supervisor.Event{}
		}
		writeJSON(w, http.StatusOK, eventsResponse{Service: name, Events: events})
	}
}
