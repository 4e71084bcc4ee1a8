package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/voicectl/internal/httpserver/deps"
	"github.com/MrSnakeDoc/voicectl/internal/httpserver/handlers"
)

func init() { Register(registerGPU) }

func registerGPU(r chi.Router, d deps.Deps) {
	q := bounded(controlAccess(r, d), d)
	q.Get("/api/gpu", handlers.GPUInfo(d))
	q.Get("/api/gpu/processes", handlers.GPUProcesses(d))
	q.Get("/api/models", handlers.Models(d))
}
