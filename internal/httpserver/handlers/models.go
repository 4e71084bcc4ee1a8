package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/voicectl/internal/httpserver/deps"
)

type modelInfo struct {
	Model    string `json:"model,omitempty"`
	Task     string `json:"task,omitempty"`
	Port     int    `json:"port"`
	Endpoint string `json:"endpoint,omitempty"`
	Input    string `json:"input,omitempty"`
	Output   string `json:"output,omitempty"`
}

// Models serves the static model metadata of the catalog, keyed by service.
func Models(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defs := d.Controller.Registry().Catalog().All()
		out := make(map[string]modelInfo, len(defs))
		for _, def := range defs {
			out[def.Name] = modelInfo{
				Model:    def.Model,
				Task:     def.Task,
				Port:     def.Port,
				Endpoint: def.Endpoint,
				Input:    def.Input,
				Output:   def.Output,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}
