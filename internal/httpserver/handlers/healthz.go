package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/voicectl/internal/httpserver/deps"
)

type healthzResponse struct {
	Status          string  `json:"status"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
	ServicesRunning int     `json:"services_running"`
	Version         string  `json:"version,omitempty"`
	Commit          string  `json:"commit,omitempty"`
	BuildDate       string  `json:"build_date,omitempty"`
	GoVersion       string  `json:"go_version,omitempty"`
}

func Healthz(d deps.Deps) http.HandlerFunc {
	start := d.StartTime
	return func(w http.ResponseWriter, r *http.Request) {
		running := 0
		for _, rec := range d.Controller.Registry().Records() {
			if rec.Running() {
				running++
			}
		}

		writeJSON(w, http.StatusOK, healthzResponse{
			Status:          "ok",
			Version:         d.Version,
			Commit:          d.Commit,
			BuildDate:       d.BuildDate,
			GoVersion:       d.GoVersion,
			ServicesRunning: running,
			UptimeSeconds:   d.Now().Sub(start).Seconds(),
		})
	}
}
