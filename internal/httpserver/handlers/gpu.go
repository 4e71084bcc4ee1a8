package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/voicectl/internal/gpu"
	"github.com/MrSnakeDoc/voicectl/internal/httpserver/deps"
)

type gpuResponse struct {
	GPUs []gpu.Info `json:"gpus"`
}

type gpuProcessesResponse struct {
	Processes []gpu.Process `json:"processes"`
}

func GPUInfo(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gpus, err := d.GPU.GPUs(r.Context())
		if err != nil {
			d.Logger.Warnf("gpu query failed: %v", err)
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if gpus == nil {
			gpus = []gpu.Info{}
		}
		writeJSON(w, http.StatusOK, gpuResponse{GPUs: gpus})
	}
}

func GPUProcesses(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		procs, err := d.GPU.Processes(r.Context())
		if err != nil {
			d.Logger.Warnf("gpu process query failed: %v", err)
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if procs == nil {
			procs = []gpu.Process{}
		}
		writeJSON(w, http.StatusOK, gpuProcessesResponse{Processes: procs})
	}
}
