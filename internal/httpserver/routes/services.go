package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/voicectl/internal/httpserver/deps"
	"github.com/MrSnakeDoc/voicectl/internal/httpserver/handlers"
)

func init() { Register(registerServices) }

func registerServices(r chi.Router, d deps.Deps) {
	c := controlAccess(r, d)

	c.Get("/api/services", handlers.Overview(d))
	c.Get("/api/services/{name}/health", handlers.ServiceHealth(d))

	c.Post("/api/services/{name}/start", handlers.StartService(d))
	c.Post("/api/services/{name}/stop", handlers.StopService(d))
	c.Post("/api/services/{name}/restart", handlers.RestartService(d))

	q := bounded(c, d)
	q.Get("/api/services/{name}", handlers.ServiceStatus(d))
	q.Get("/api/services/{name}/logs", handlers.ViewLogs(d))
	q.Get("/api/services/{name}/events", handlers.Events(d))

	// Long-lived; never under the query timeout.
	c.Get("/api/services/{name}/logs/stream", handlers.StreamLogs(d))
}
