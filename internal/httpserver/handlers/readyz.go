package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/voicectl/internal/httpserver/deps"
)

type componentStatus struct {
	OK             bool   `json:"ok"`
	ServicesLoaded *int   `json:"services_loaded,omitempty"`
	Running        *int   `json:"running,omitempty"`
	LastCheck      string `json:"last_check,omitempty"`
	Mode           string `json:"mode,omitempty"`
	Impact         string `json:"impact,omitempty"`
	Error          string `json:"error,omitempty"`
}

type readyzResponse struct {
	Ready      bool                       `json:"ready"`
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

// Readyz reports whether the daemon can serve lifecycle requests. A missing
// or unreachable journal degrades the daemon but keeps it ready.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentStatus{
			"catalog": checkCatalog(d),
			"health":  checkHealthLoop(d),
			"journal": checkJournal(r.Context(), d),
		}

		mode := determineMode(components)
		status := http.StatusOK
		if mode == "critical" {
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, status, readyzResponse{
			Ready:      mode != "critical",
			Mode:       mode,
			Components: components,
		})
	}
}

func determineMode(components map[string]componentStatus) string {
	if c, ok := components["catalog"]; ok && !c.OK {
		return "critical"
	}
	if j, ok := components["journal"]; ok && !j.OK {
		return "degraded"
	}
	return "operational"
}

func checkCatalog(d deps.Deps) componentStatus {
	reg := d.Controller.Registry()
	loaded := len(reg.Names())
	running := 0
	for _, rec := range reg.Records() {
		if rec.Running() {
			running++
		}
	}
	return componentStatus{
		OK:             loaded > 0,
		ServicesLoaded: &loaded,
		Running:        &running,
	}
}

func checkHealthLoop(d deps.Deps) componentStatus {
	if d.Health == nil {
		return componentStatus{OK: true, Mode: "disabled"}
	}
	last := d.Health.LastCheck()
	lastStr := "never"
	if !last.IsZero() {
		lastStr = last.Format(time.RFC3339)
	}
	return componentStatus{OK: true, LastCheck: lastStr}
}

func checkJournal(ctx context.Context, d deps.Deps) componentStatus {
	if d.Store == nil {
		return componentStatus{
			OK:     true,
			Mode:   "disabled",
			Impact: "events-not-recorded",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.Store.Ping(ctx); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "events-not-recorded",
			Error:  err.Error(),
		}
	}

	return componentStatus{OK: true, Mode: "optimal"}
}
